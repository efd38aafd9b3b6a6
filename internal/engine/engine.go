package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/roach88/cadence/internal/connectivity"
	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/store"
)

// Remote is the subset of the REST client the engine replays against.
// Satisfied by *remote.Client.
type Remote interface {
	Create(ctx context.Context, kind model.Kind, entity model.Entity) (model.Record, error)
	Update(ctx context.Context, kind model.Kind, id model.ID, entity model.Entity) (model.Record, error)
	Delete(ctx context.Context, kind model.Kind, id model.ID) error
}

const (
	stateIdle    = "idle"
	stateRunning = "running"

	eventStart  = "start"
	eventFinish = "finish"
)

// signalBuffer is how many undelivered signals a subscriber may hold.
const signalBuffer = 16

// Engine is the single-consumer sync engine.
//
// Thread-safety model:
//   - Trigger(), NotifyQueued(), Subscribe(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - SyncNow(): safe from any goroutine, fails while a run is in flight
type Engine struct {
	store    *store.Store
	remote   Remote
	status   *connectivity.Status
	state    *fsm.FSM
	triggers *triggerQueue
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	runSeq   atomic.Int64

	subMu   sync.Mutex
	subs    map[int]chan Signal
	nextSub int
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval enables the periodic trigger. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine. Nothing runs until Run or SyncNow is called.
func New(s *store.Store, r Remote, status *connectivity.Status, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		remote:   r,
		status:   status,
		triggers: newTriggerQueue(),
		logger:   slog.Default(),
		now:      time.Now,
		subs:     make(map[int]chan Signal),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.state = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{stateIdle}, Dst: stateRunning},
			{Name: eventFinish, Src: []string{stateRunning}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				e.logger.Debug("sync engine state", "from", ev.Src, "to", ev.Dst)
			},
		},
	)

	return e
}

// Running reports whether a run is in flight.
func (e *Engine) Running() bool {
	return e.state.Current() == stateRunning
}

// Trigger requests a run. Returns false when the request was dropped
// because a run is already in flight.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Trigger(reason Reason) bool {
	if e.Running() {
		triggersTotal.WithLabelValues(string(reason), "dropped").Inc()
		e.logger.Debug("sync trigger dropped, run in flight", "reason", reason)
		return false
	}
	triggersTotal.WithLabelValues(string(reason), "accepted").Inc()
	e.triggers.Push(reason)
	return true
}

// NotifyQueued tells the engine a mutation was enqueued.
func (e *Engine) NotifyQueued() {
	e.Trigger(ReasonQueued)
}

// Subscribe returns a channel of lifecycle signals and a function that ends
// the subscription. Slow subscribers miss signals rather than stall a run.
func (e *Engine) Subscribe() (<-chan Signal, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Signal, signalBuffer)
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
}

func (e *Engine) publish(sig Signal) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- sig:
		default:
		}
	}
}

// Run consumes triggers until ctx is cancelled, then waits for the run in
// flight to stop.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("sync engine starting", "interval", e.interval)

	events, unsubscribe := e.status.Subscribe()
	defer unsubscribe()

	// A transition that landed before Subscribe produced no event.
	if e.status.Online() {
		e.Trigger(ReasonStartup)
	}

	var tick <-chan time.Time
	if e.interval > 0 {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync engine stopping: context cancelled")
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev {
			case connectivity.EventOnline:
				e.Trigger(ReasonOnline)
			case connectivity.EventVisible:
				if e.status.Online() {
					e.Trigger(ReasonVisible)
				}
			}

		case <-tick:
			e.Trigger(ReasonInterval)

		case <-e.triggers.Wait():
			reasons := e.triggers.Take()
			if len(reasons) == 0 {
				continue
			}
			if err := e.begin(ctx); err != nil {
				e.logger.Debug("sync run skipped", "reasons", reasons, "error", err)
				continue
			}
			// The drain runs beside the loop so triggers arriving meanwhile
			// are seen, and dropped, instead of piling up.
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				e.execute(ctx, reasons)
			}()
		}
	}
}

// SyncNow runs synchronously in the caller's goroutine.
func (e *Engine) SyncNow(ctx context.Context) (Report, error) {
	if err := e.begin(ctx); err != nil {
		return Report{}, err
	}
	return e.execute(ctx, []Reason{ReasonManual})
}

// begin moves idle→running. It is the only way a run starts.
func (e *Engine) begin(ctx context.Context) error {
	if !e.status.Online() {
		return ErrOffline
	}
	if err := e.state.Event(ctx, eventStart); err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return ErrSyncInProgress
		}
		return err
	}
	return nil
}

// finish moves running→idle.
func (e *Engine) finish() {
	if err := e.state.Event(context.Background(), eventFinish); err != nil {
		e.logger.Error("sync engine state transition failed", "error", err)
	}
}
