package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes and push unsynced rituals now",
		Long: `Run one sync pass against the journaling service.

Queued creates, updates and deletes are replayed oldest first, then rituals
saved while offline are pushed. Items that fail are retried on later runs and
dropped after 3 attempts.

Example:
  cadence sync --config ~/.config/cadence.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, runOptions{probe: true}, runSync)
		},
	}
}

func runSync(ctx context.Context, a *app, out *OutputFormatter) error {
	if err := a.requireRemote(); err != nil {
		return err
	}
	report, err := a.engine.SyncNow(ctx)
	if err != nil {
		return err
	}
	if err := out.Success(reportView(report)); err != nil {
		return err
	}
	if !report.OK() {
		return &ExitError{Code: ExitFailure, ErrCode: CodeSyncFails, Message: "sync finished with failures"}
	}
	return nil
}
