package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/roach88/cadence/internal/config"
	"github.com/roach88/cadence/internal/connectivity"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/logging"
	"github.com/roach88/cadence/internal/offline"
	"github.com/roach88/cadence/internal/remote"
	"github.com/roach88/cadence/internal/store"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	store  *store.Store
	remote *remote.Client       // nil without api.base_url
	tokens *remote.FileToken    // nil unless api.token_file is set
	prober *connectivity.Prober // nil without api.base_url
	status *connectivity.Status
	engine *engine.Engine
	client *offline.Client

	closers []io.Closer
}

// openApp loads configuration and wires the components.
//
// One-shot commands log at warn unless --verbose; the daemon uses the
// configured level. A store that cannot be opened degrades to
// store.Unavailable so network-only operation still works.
func openApp(opts *RootOptions, stderr io.Writer, daemon bool) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: CodeConfig, Message: "failed to load config", Err: err}
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	if !daemon {
		level = max(level, slog.LevelWarn)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger, logCloser := logging.New(logging.Options{Level: level, File: cfg.Log.File, Stderr: stderr})

	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	st, err := store.Open(cfg.Database,
		store.WithRecentRituals(cfg.Sync.RecentRituals),
		store.WithLogger(logger.With("component", "store")),
	)
	if err != nil {
		logger.Warn("local storage unavailable, continuing network-only", "path", cfg.Database, "error", err)
		st = store.Unavailable(store.WithLogger(logger.With("component", "store")))
	}
	a.store = st
	a.closers = append(a.closers, st)

	a.status = connectivity.NewStatus(false)

	var (
		engineRemote  engine.Remote
		offlineRemote offline.Remote
	)
	if cfg.RemoteConfigured() {
		if err := a.openRemote(); err != nil {
			a.Close()
			return nil, err
		}
		engineRemote, offlineRemote = a.remote, a.remote
		a.prober = connectivity.NewProber(a.status, a.remote,
			connectivity.WithProbeInterval(cfg.Sync.ProbeInterval),
			connectivity.WithProberLogger(logger.With("component", "prober")),
		)
	}

	a.engine = engine.New(st, engineRemote, a.status,
		engine.WithInterval(cfg.Sync.Interval),
		engine.WithLogger(logger.With("component", "engine")),
	)
	a.client = offline.New(st, offlineRemote, a.status, a.engine,
		offline.WithLogger(logger.With("component", "offline")),
	)
	return a, nil
}

func (a *app) openRemote() error {
	var tokens remote.TokenSource = remote.StaticToken(a.cfg.API.Token)
	if a.cfg.API.TokenFile != "" {
		ft, err := remote.NewFileToken(a.cfg.API.TokenFile, a.logger.With("component", "token"))
		if err != nil {
			return &ExitError{Code: ExitCommandError, ErrCode: CodeConfig, Message: "failed to read api.token_file", Err: err}
		}
		a.tokens, tokens = ft, ft
	}

	rc, err := remote.New(a.cfg.API.BaseURL, tokens,
		remote.WithTimeout(a.cfg.API.Timeout),
		remote.WithLogger(a.logger.With("component", "remote")),
	)
	if err != nil {
		return &ExitError{Code: ExitCommandError, ErrCode: CodeConfig, Message: "invalid api settings", Err: err}
	}
	a.remote = rc
	return nil
}

// probe checks reachability once. Without a configured service the app
// stays offline.
func (a *app) probe(ctx context.Context) bool {
	if a.prober == nil {
		return false
	}
	return a.prober.Probe(ctx)
}

func (a *app) requireRemote() error {
	if a.remote == nil {
		return &ExitError{Code: ExitCommandError, ErrCode: CodeConfig, Message: "api.base_url is not configured"}
	}
	return nil
}

// Close releases the store and the log file, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
