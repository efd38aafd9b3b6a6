package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/offline"
	"github.com/roach88/cadence/internal/remote"
	"github.com/roach88/cadence/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Database   string // overrides the config's database
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cadence CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cadence",
		Short: "cadence - offline-first journaling",
		Long: `Journal rituals, goals, wins, focus sessions and weekly reviews.

Every change is written to a local database first and synchronised with the
journaling service whenever it is reachable. Commands work offline; queued
changes are replayed by "cadence sync" or by a running "cadence daemon".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return &ExitError{
					Code:    ExitCommandError,
					ErrCode: CodeConfig,
					Message: fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats),
				}
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDaemonCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewRitualCommand(opts))
	cmd.AddCommand(NewGoalsCommand(opts))
	cmd.AddCommand(NewWinsCommand(opts))
	cmd.AddCommand(NewFocusCommand(opts))
	cmd.AddCommand(NewWeeklyCommand(opts))

	return cmd
}

// runOptions tunes runWithApp.
type runOptions struct {
	probe  bool // check reachability before fn
	daemon bool
}

// runWithApp opens the app, runs fn and reports its error in the
// configured format.
func runWithApp(cmd *cobra.Command, opts *RootOptions, ro runOptions, fn func(ctx context.Context, a *app, out *OutputFormatter) error) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(opts, cmd.ErrOrStderr(), ro.daemon)
	if err != nil {
		return out.Fail(err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}()

	if ro.probe {
		online := a.probe(ctx)
		a.logger.Debug("connectivity probed", "online", online)
	}

	if err := fn(ctx, a, out); err != nil {
		return out.Fail(classify(err))
	}
	return nil
}

// classify maps domain errors to exit codes.
func classify(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	switch {
	case errors.Is(err, offline.ErrNoCachedData):
		return &ExitError{Code: ExitFailure, ErrCode: CodeNoData, Message: "offline and nothing cached", Err: err}
	case remote.IsRejected(err):
		return &ExitError{Code: ExitFailure, ErrCode: CodeRejected, Message: "rejected by the service", Err: err}
	case errors.Is(err, engine.ErrOffline):
		return &ExitError{Code: ExitFailure, ErrCode: CodeOffline, Message: "service unreachable", Err: err}
	case errors.Is(err, engine.ErrSyncInProgress):
		return &ExitError{Code: ExitFailure, ErrCode: CodeSyncBusy, Message: "sync already running", Err: err}
	case errors.Is(err, store.ErrStorageUnavailable):
		return &ExitError{Code: ExitFailure, ErrCode: CodeStorage, Message: "local storage unavailable", Err: err}
	default:
		return &ExitError{Code: ExitFailure, ErrCode: CodeInternal, Message: "command failed", Err: err}
	}
}
