package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cadence/internal/engine"
)

// shutdownTimeout bounds the metrics server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep the local journal in sync in the background",
		Long: `Run the sync engine until interrupted.

The daemon probes the service, syncs when it becomes reachable, on every
sync.interval and whenever a command queues a change in this process. Send
SIGUSR1 to request a sync as if the journal had just been opened. With
metrics.addr set, Prometheus metrics are served on /metrics.

Example:
  cadence daemon --config ~/.config/cadence.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, rootOpts, runOptions{daemon: true}, runDaemon)
		},
	}
}

func runDaemon(ctx context.Context, a *app, out *OutputFormatter) error {
	if err := a.requireRemote(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.engine.Run(ctx) })
	g.Go(func() error { return a.prober.Run(ctx) })
	g.Go(func() error { return forwardVisibility(ctx, a.status) })
	g.Go(func() error {
		logRuns(ctx, a.engine, a.logger)
		return nil
	})
	if a.tokens != nil {
		g.Go(func() error { return a.tokens.Run(ctx) })
	}
	if addr := a.cfg.Metrics.Addr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return WrapExitError(ExitCommandError, "metrics listener", err)
		}
		g.Go(func() error { return serveMetrics(ctx, ln, a.logger) })
	}

	a.logger.Info("daemon started", "base_url", a.cfg.API.BaseURL, "database", a.cfg.Database)
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("daemon stopped")
	return nil
}

// logRuns logs the outcome of every run until ctx is done.
func logRuns(ctx context.Context, eng *engine.Engine, logger *slog.Logger) {
	signals, cancel := eng.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			switch sig.Type {
			case engine.SignalComplete:
				logger.Info("sync complete", "run", sig.Report.Run, "succeeded", sig.Report.Succeeded,
					"rituals", sig.Report.RitualsSynced, "duration", sig.Report.Duration())
			case engine.SignalError:
				logger.Warn("sync finished with errors", "run", sig.Report.Run, "failed", sig.Report.Failed,
					"dropped", len(sig.Report.Dropped), "error", sig.Err)
			}
		}
	}
}

// serveMetrics serves the default Prometheus registry on ln until ctx is done.
func serveMetrics(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
