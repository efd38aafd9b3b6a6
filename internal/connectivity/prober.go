package connectivity

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/roach88/cadence/internal/remote"
)

// DefaultProbeInterval is the probe period while online.
const DefaultProbeInterval = 30 * time.Second

// HealthChecker is satisfied by *remote.Client.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Prober feeds a Status from periodic health checks.
//
// While online it probes every interval. While offline the delay grows
// exponentially up to the interval, so a recovered service is noticed
// quickly without hammering a dead one.
type Prober struct {
	status   *Status
	checker  HealthChecker
	interval time.Duration
	backoff  *backoff.ExponentialBackOff
	logger   *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeInterval sets the online probe period and the backoff ceiling.
func WithProbeInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithProberLogger sets the logger.
func WithProberLogger(logger *slog.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

// NewProber creates a prober for status.
func NewProber(status *Status, checker HealthChecker, opts ...ProberOption) *Prober {
	p := &Prober{
		status:   status,
		checker:  checker,
		interval: DefaultProbeInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(time.Second, p.interval)
	b.MaxInterval = p.interval
	b.MaxElapsedTime = 0 // never give up
	b.Reset()
	p.backoff = b

	return p
}

// Probe runs one health check and records the result.
// A rejection still proves the service is reachable.
func (p *Prober) Probe(ctx context.Context) bool {
	err := p.checker.Health(ctx)
	online := err == nil || remote.IsRejected(err)

	if online != p.status.Online() {
		p.logger.Info("connectivity changed", "online", online, "error", err)
	}
	p.status.Set(online)
	return online
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	for {
		var wait time.Duration
		if p.Probe(ctx) {
			p.backoff.Reset()
			wait = p.interval
		} else {
			wait = p.backoff.NextBackOff()
			if wait == backoff.Stop {
				wait = p.interval
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
