// Package offline is the offline-first request layer.
//
// Every read and write decides between the remote service, the local store
// and the sync queue. Writes always land locally first, so callers see
// their change even without a network; connectivity loss alone never fails
// a write. Only rejections from a reachable service are returned.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/roach88/cadence/internal/connectivity"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/store"
)

// ErrNoCachedData is returned by reads that cannot reach the service and
// find nothing in the local store.
var ErrNoCachedData = errors.New("no cached data")

// Remote is the REST surface the client needs. Satisfied by *remote.Client.
type Remote interface {
	List(ctx context.Context, kind model.Kind, query url.Values) ([]model.Record, error)
	Get(ctx context.Context, kind model.Kind, id model.ID) (model.Record, error)
	Create(ctx context.Context, kind model.Kind, entity model.Entity) (model.Record, error)
	Update(ctx context.Context, kind model.Kind, id model.ID, entity model.Entity) (model.Record, error)
	Delete(ctx context.Context, kind model.Kind, id model.ID) error
}

// Notifier is told whenever a mutation is queued. Satisfied by *engine.Engine.
type Notifier interface {
	NotifyQueued()
}

type nopNotifier struct{}

func (nopNotifier) NotifyQueued() {}

// Client is the per-entity API surface.
type Client struct {
	Goals         *Resource[model.Goal]
	Wins          *Resource[model.Win]
	FocusSessions *Resource[model.FocusSession]
	WeeklyReviews *Resource[model.WeeklyReview]
	Rituals       *Rituals

	core *core
}

// Option configures a Client.
type Option func(*core)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *core) {
		c.logger = logger
	}
}

// New creates a client. notifier may be nil.
func New(s *store.Store, r Remote, status *connectivity.Status, notifier Notifier, opts ...Option) *Client {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	c := &core{
		store:    s,
		remote:   r,
		status:   status,
		notifier: notifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return &Client{
		Goals:         &Resource[model.Goal]{core: c, kind: model.KindGoals},
		Wins:          &Resource[model.Win]{core: c, kind: model.KindWins},
		FocusSessions: &Resource[model.FocusSession]{core: c, kind: model.KindFocusSessions},
		WeeklyReviews: &Resource[model.WeeklyReview]{core: c, kind: model.KindWeeklyData},
		Rituals:       &Rituals{core: c},
		core:          c,
	}
}

// Status is the sync state shown to the user.
type Status struct {
	Online          bool               `json:"online"`
	Pending         int                `json:"pending"`
	PendingByStore  map[model.Kind]int `json:"pending_by_store,omitempty"`
	UnsyncedRituals int                `json:"unsynced_rituals"`
	LastSync        *engine.Report     `json:"last_sync,omitempty"`
}

// Status reports queue depth and the last sync run.
func (c *Client) Status(ctx context.Context) (Status, error) {
	st := Status{Online: c.core.status.Online()}

	items, err := c.core.store.GetSyncQueue(ctx)
	if err != nil {
		return st, fmt.Errorf("status: %w", err)
	}
	st.Pending = len(items)
	if len(items) > 0 {
		st.PendingByStore = make(map[model.Kind]int)
		for _, it := range items {
			st.PendingByStore[it.Store]++
		}
	}

	rituals, err := c.core.store.GetUnsyncedRituals(ctx)
	if err != nil {
		return st, fmt.Errorf("status: %w", err)
	}
	st.UnsyncedRituals = len(rituals)

	var last engine.Report
	ok, err := c.core.store.GetSetting(ctx, engine.SettingLastSync, &last)
	if err != nil {
		return st, fmt.Errorf("status: %w", err)
	}
	if ok {
		st.LastSync = &last
	}
	return st, nil
}

// core holds the shared collaborators and the generic strategy.
type core struct {
	store    *store.Store
	remote   Remote
	status   *connectivity.Status
	notifier Notifier
	logger   *slog.Logger
}

func (c *core) online() bool {
	return c.status.Online()
}

// enqueue records a mutation for the engine and wakes it.
func (c *core) enqueue(ctx context.Context, action model.Action, kind model.Kind, id model.ID, payload model.Entity) error {
	item := model.NewQueueItem(action, kind, id, payload, c.store.Now())
	if _, err := c.store.AddToSyncQueue(ctx, item); err != nil {
		return fmt.Errorf("%s %s %s: queue: %w", action, kind, id, err)
	}
	c.logger.Debug("mutation queued", "action", action, "store", kind, "entity_id", id)
	c.notifier.NotifyQueued()
	return nil
}

// hasQueued reports whether mutations for the record are waiting; direct
// remote calls would overtake them.
func (c *core) hasQueued(ctx context.Context, kind model.Kind, id model.ID) (bool, error) {
	items, err := c.store.QueueItemsForEntity(ctx, kind, id)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// localOnly reads from the store, mapping emptiness and an unavailable
// store to ErrNoCachedData.
func (c *core) localOnly(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	recs, err := c.store.GetAll(ctx, kind)
	if errors.Is(err, store.ErrStorageUnavailable) {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoCachedData)
	}
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoCachedData)
	}
	return recs, nil
}

// cache merges a remote listing into the store.
//
// Local unsynced records win over the remote copy. Synced local records the
// service no longer has are pruned. Pending records are untouched.
func (c *core) cache(ctx context.Context, kind model.Kind, fetched []model.Record) error {
	local, err := c.store.GetAll(ctx, kind)
	if err != nil {
		return err
	}
	localByID := make(map[string]model.Record, len(local))
	for _, rec := range local {
		localByID[rec.ID.String()] = rec
	}

	seen := make(map[string]bool, len(fetched))
	for _, rec := range fetched {
		key := rec.ID.String()
		seen[key] = true
		if l, ok := localByID[key]; ok && !l.Synced {
			continue
		}
		if _, err := c.store.Put(ctx, model.Record{ID: rec.ID, Entity: rec.Entity, Synced: true}); err != nil {
			return err
		}
	}

	for _, rec := range local {
		if rec.Synced && !rec.ID.IsPending() && !seen[rec.ID.String()] {
			if err := c.store.Delete(ctx, kind, rec.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// restore puts back the record a rejected write replaced.
func (c *core) restore(ctx context.Context, kind model.Kind, id model.ID, prev model.Record, hadPrev bool) {
	var err error
	if hadPrev {
		_, err = c.store.Put(ctx, prev)
	} else {
		err = c.store.Delete(ctx, kind, id)
	}
	if err != nil && !errors.Is(err, store.ErrStorageUnavailable) {
		c.logger.Warn("local state not restored after rejection", "store", kind, "id", id, "error", err)
	}
}
