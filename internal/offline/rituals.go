package offline

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/remote"
	"github.com/roach88/cadence/internal/store"
)

// Rituals is the API for daily rituals.
//
// Rituals are keyed by (date, type) and never go through the sync queue.
// A ritual saved while the service is unreachable stays synced=false and the
// engine pushes it on a later run.
type Rituals struct {
	core *core
}

// Save upserts the ritual for (date, type).
//
// Network failures are absorbed; a rejection is returned and the ritual
// it replaced is put back.
func (r *Rituals) Save(ctx context.Context, ritualType, date string, data map[string]any) (model.Record, error) {
	c := r.core

	prev, hadPrev, err := c.store.GetRitualByDateAndType(ctx, date, ritualType)
	if err != nil && !errors.Is(err, store.ErrStorageUnavailable) {
		return model.Record{}, err
	}

	rec, err := c.store.SaveRitual(ctx, ritualType, date, data, false)
	stored := err == nil
	if err != nil && !errors.Is(err, store.ErrStorageUnavailable) {
		return model.Record{}, err
	}
	if !stored {
		rec = model.Record{
			ID:     store.RitualID(date, ritualType),
			Entity: model.Ritual{Date: date, Type: store.NormalizeRitualType(ritualType), Data: data},
		}
	}

	if !c.online() {
		if !stored {
			return model.Record{}, fmt.Errorf("save ritual: no network and %w", store.ErrStorageUnavailable)
		}
		c.notifier.NotifyQueued()
		return rec, nil
	}

	_, err = c.remote.Create(ctx, model.KindRituals, rec.Entity)
	switch {
	case err == nil:
		rec.Synced = true
		if stored {
			if err := c.store.MarkRitualSynced(ctx, rec.ID); err != nil {
				c.logger.Warn("ritual pushed but not marked synced", "id", rec.ID, "error", err)
				rec.Synced = false
			}
		}
		return rec, nil

	case remote.IsNetworkFailure(err):
		if !stored {
			return model.Record{}, fmt.Errorf("save ritual: %w", err)
		}
		c.logger.Info("ritual push deferred", "id", rec.ID, "error", err)
		c.notifier.NotifyQueued()
		return rec, nil

	default:
		if stored {
			r.restore(ctx, rec.ID, prev, hadPrev)
		}
		return model.Record{}, err
	}
}

// restore undoes a rejected save so the engine does not push it again.
func (r *Rituals) restore(ctx context.Context, id model.ID, prev model.Record, hadPrev bool) {
	c := r.core
	var err error
	if hadPrev {
		ritual, _ := prev.Entity.(model.Ritual)
		_, err = c.store.SaveRitual(ctx, ritual.Type, ritual.Date, ritual.Data, prev.Synced)
	} else {
		err = c.store.DeleteRitual(ctx, id)
	}
	if err != nil {
		c.logger.Warn("ritual not restored after rejection", "id", id, "error", err)
	}
}

// ForDate returns the rituals recorded on date, refreshed from the service
// when online.
func (r *Rituals) ForDate(ctx context.Context, date string) ([]model.Record, error) {
	c := r.core
	if c.online() {
		fetched, err := c.remote.List(ctx, model.KindRituals, url.Values{"date": {date}})
		switch {
		case err == nil:
			if !c.store.Available() {
				return fetched, nil
			}
			if err := r.cacheDate(ctx, date, fetched); err != nil {
				c.logger.Warn("remote rituals not cached", "date", date, "error", err)
				return fetched, nil
			}
			return c.store.GetRitualsByDate(ctx, date)

		case remote.IsNetworkFailure(err):
			c.logger.Debug("rituals falling back to local store", "date", date, "error", err)

		default:
			return nil, err
		}
	}

	recs, err := c.store.GetRitualsByDate(ctx, date)
	if errors.Is(err, store.ErrStorageUnavailable) || (err == nil && len(recs) == 0) {
		return nil, fmt.Errorf("rituals on %s: %w", date, ErrNoCachedData)
	}
	return recs, err
}

// Get returns the ritual for (date, type).
func (r *Rituals) Get(ctx context.Context, date, ritualType string) (model.Record, error) {
	recs, err := r.ForDate(ctx, date)
	if err != nil {
		return model.Record{}, err
	}
	want := store.RitualID(date, ritualType)
	for _, rec := range recs {
		if rec.ID == want {
			return rec, nil
		}
	}
	return model.Record{}, fmt.Errorf("ritual %s: %w", want, ErrNoCachedData)
}

// Recent returns the recent rituals projection, newest first.
func (r *Rituals) Recent(ctx context.Context) ([]model.Record, error) {
	recs, err := r.core.store.RecentRituals(ctx)
	if errors.Is(err, store.ErrStorageUnavailable) || (err == nil && len(recs) == 0) {
		return nil, fmt.Errorf("recent rituals: %w", ErrNoCachedData)
	}
	return recs, err
}

// cacheDate stores the service's rituals for date under their natural keys.
// Unsynced local rituals win; synced ones the service no longer has are pruned.
func (r *Rituals) cacheDate(ctx context.Context, date string, fetched []model.Record) error {
	s := r.core.store
	local, err := s.GetRitualsByDate(ctx, date)
	if err != nil {
		return err
	}
	localByID := make(map[model.ID]model.Record, len(local))
	for _, rec := range local {
		localByID[rec.ID] = rec
	}

	seen := make(map[model.ID]bool, len(fetched))
	for _, rec := range fetched {
		ritual, ok := rec.Entity.(model.Ritual)
		if !ok || ritual.Date != date {
			continue
		}
		id := store.RitualID(ritual.Date, ritual.Type)
		seen[id] = true
		if l, ok := localByID[id]; ok && !l.Synced {
			continue
		}
		if _, err := s.SaveRitual(ctx, ritual.Type, ritual.Date, ritual.Data, true); err != nil {
			return err
		}
	}

	for _, rec := range local {
		if rec.Synced && !seen[rec.ID] {
			if err := s.Delete(ctx, model.KindRituals, rec.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
