package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/remote"
	"github.com/roach88/cadence/internal/store"
)

// Item is a typed record.
type Item[T model.Entity] struct {
	ID        model.ID  `json:"id"`
	Value     T         `json:"value"`
	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updated_at"`
}

func itemOf[T model.Entity](rec model.Record) (Item[T], error) {
	v, ok := rec.Entity.(T)
	if !ok {
		return Item[T]{}, fmt.Errorf("record %s holds %T", rec.ID, rec.Entity)
	}
	return Item[T]{ID: rec.ID, Value: v, Synced: rec.Synced, UpdatedAt: rec.UpdatedAt}, nil
}

func itemsOf[T model.Entity](recs []model.Record) ([]Item[T], error) {
	out := make([]Item[T], 0, len(recs))
	for _, rec := range recs {
		it, err := itemOf[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// Resource is the offline-first API for one entity kind.
type Resource[T model.Entity] struct {
	core *core
	kind model.Kind
}

// Kind returns the store this resource reads and writes.
func (r *Resource[T]) Kind() model.Kind { return r.kind }

// List returns every record.
//
// Online, the remote listing is cached and the merged local view returned.
// Offline or on network failure, the local store answers; an empty store
// yields ErrNoCachedData.
func (r *Resource[T]) List(ctx context.Context) ([]Item[T], error) {
	c := r.core
	if c.online() {
		fetched, err := c.remote.List(ctx, r.kind, nil)
		switch {
		case err == nil:
			if !c.store.Available() {
				return itemsOf[T](fetched)
			}
			if err := c.cache(ctx, r.kind, fetched); err != nil {
				c.logger.Warn("remote listing not cached", "store", r.kind, "error", err)
				return itemsOf[T](fetched)
			}
			local, err := c.store.GetAll(ctx, r.kind)
			if err != nil {
				return nil, err
			}
			return itemsOf[T](local)

		case remote.IsNetworkFailure(err):
			c.logger.Debug("list falling back to local store", "store", r.kind, "error", err)

		default:
			return nil, err
		}
	}

	local, err := c.localOnly(ctx, r.kind)
	if err != nil {
		return nil, err
	}
	return itemsOf[T](local)
}

// Get returns one record. Pending ids are served locally only.
func (r *Resource[T]) Get(ctx context.Context, id model.ID) (Item[T], error) {
	c := r.core
	if c.online() && !id.IsPending() {
		fetched, err := c.remote.Get(ctx, r.kind, id)
		switch {
		case err == nil:
			local, ok, lerr := c.store.Get(ctx, r.kind, id)
			if lerr == nil && ok && !local.Synced {
				return itemOf[T](local)
			}
			fetched.ID = id
			if lerr == nil {
				if stored, err := c.store.Put(ctx, fetched); err == nil {
					return itemOf[T](stored)
				}
			}
			return itemOf[T](fetched)

		case remote.IsNetworkFailure(err):
			c.logger.Debug("get falling back to local store", "store", r.kind, "id", id, "error", err)

		default:
			return Item[T]{}, err
		}
	}

	rec, ok, err := c.store.Get(ctx, r.kind, id)
	if errors.Is(err, store.ErrStorageUnavailable) || (err == nil && !ok) {
		return Item[T]{}, fmt.Errorf("%s %s: %w", r.kind, id, ErrNoCachedData)
	}
	if err != nil {
		return Item[T]{}, err
	}
	return itemOf[T](rec)
}

// Create writes v locally under a pending id, then tries the service.
//
// A network failure queues the create and returns the optimistic record.
// A rejection removes the pending record and returns the error.
func (r *Resource[T]) Create(ctx context.Context, v T) (Item[T], error) {
	c := r.core
	id := model.NewPendingID()

	local, err := c.store.Put(ctx, model.Record{ID: id, Entity: v})
	stored := err == nil
	if err != nil && !errors.Is(err, store.ErrStorageUnavailable) {
		return Item[T]{}, fmt.Errorf("create %s: %w", r.kind, err)
	}

	if c.online() {
		server, err := c.remote.Create(ctx, r.kind, v)
		switch {
		case err == nil:
			if !stored {
				return itemOf[T](server)
			}
			saved, err := c.store.Put(ctx, server)
			if err != nil {
				c.logger.Warn("confirmed record not stored, pending copy kept", "store", r.kind, "id", id, "server_id", server.ID, "error", err)
				return itemOf[T](server)
			}
			if err := c.store.Delete(ctx, r.kind, id); err != nil {
				c.logger.Warn("pending record not removed", "store", r.kind, "id", id, "error", err)
			}
			return itemOf[T](saved)

		case remote.IsRejected(err):
			if stored {
				c.restore(ctx, r.kind, id, model.Record{}, false)
			}
			return Item[T]{}, err

		default:
			c.logger.Info("create deferred", "store", r.kind, "id", id, "error", err)
		}
	}

	if !stored {
		return Item[T]{}, fmt.Errorf("create %s: no network and %w", r.kind, store.ErrStorageUnavailable)
	}
	if err := c.enqueue(ctx, model.ActionCreate, r.kind, id, v); err != nil {
		return Item[T]{}, err
	}
	return itemOf[T](local)
}

// Update replaces the record under id with v.
//
// Edits to a record still awaiting its create are folded into the queued
// create. A rejection restores the previous local record.
func (r *Resource[T]) Update(ctx context.Context, id model.ID, v T) (Item[T], error) {
	c := r.core

	prev, hadPrev, err := c.store.Get(ctx, r.kind, id)
	stored := err == nil
	if err != nil && !errors.Is(err, store.ErrStorageUnavailable) {
		return Item[T]{}, fmt.Errorf("update %s %s: %w", r.kind, id, err)
	}
	var local model.Record
	if stored {
		local, err = c.store.Put(ctx, model.Record{ID: id, Entity: v})
		if err != nil {
			return Item[T]{}, fmt.Errorf("update %s %s: %w", r.kind, id, err)
		}
	}

	if id.IsPending() {
		if !stored {
			return Item[T]{}, fmt.Errorf("update %s %s: %w", r.kind, id, store.ErrStorageUnavailable)
		}
		folded, err := r.foldIntoCreate(ctx, id, v)
		if err != nil {
			return Item[T]{}, err
		}
		if !folded {
			if err := c.enqueue(ctx, model.ActionUpdate, r.kind, id, v); err != nil {
				return Item[T]{}, err
			}
		}
		return itemOf[T](local)
	}

	queued := false
	if stored {
		if queued, err = c.hasQueued(ctx, r.kind, id); err != nil {
			return Item[T]{}, err
		}
	}

	if c.online() && !queued {
		server, err := c.remote.Update(ctx, r.kind, id, v)
		switch {
		case err == nil:
			server.ID = id
			if stored {
				if saved, err := c.store.Put(ctx, server); err == nil {
					return itemOf[T](saved)
				}
			}
			return itemOf[T](server)

		case remote.IsRejected(err):
			if stored {
				c.restore(ctx, r.kind, id, prev, hadPrev)
			}
			return Item[T]{}, err

		default:
			c.logger.Info("update deferred", "store", r.kind, "id", id, "error", err)
		}
	}

	if !stored {
		return Item[T]{}, fmt.Errorf("update %s %s: no network and %w", r.kind, id, store.ErrStorageUnavailable)
	}
	if err := c.enqueue(ctx, model.ActionUpdate, r.kind, id, v); err != nil {
		return Item[T]{}, err
	}
	return itemOf[T](local)
}

// foldIntoCreate rewrites the payload of the queued create for id.
func (r *Resource[T]) foldIntoCreate(ctx context.Context, id model.ID, v T) (bool, error) {
	items, err := r.core.store.QueueItemsForEntity(ctx, r.kind, id)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.Action != model.ActionCreate {
			continue
		}
		if _, err := r.core.store.UpdateSyncQueueItem(ctx, it.ID, store.QueueUpdate{Payload: v}); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// The engine confirmed it meanwhile.
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Delete removes the record under id.
//
// A pending record never reached the service: its queued mutations are
// dropped and no remote call is made. A rejection restores the record.
func (r *Resource[T]) Delete(ctx context.Context, id model.ID) error {
	c := r.core

	prev, hadPrev, err := c.store.Get(ctx, r.kind, id)
	stored := err == nil
	if err != nil && !errors.Is(err, store.ErrStorageUnavailable) {
		return fmt.Errorf("delete %s %s: %w", r.kind, id, err)
	}
	if stored {
		if err := c.store.Delete(ctx, r.kind, id); err != nil {
			return fmt.Errorf("delete %s %s: %w", r.kind, id, err)
		}
	}

	if id.IsPending() {
		if !stored {
			return nil
		}
		n, err := c.store.RemoveQueueItemsForEntity(ctx, r.kind, id)
		if err != nil {
			return fmt.Errorf("delete %s %s: %w", r.kind, id, err)
		}
		c.logger.Debug("pending record discarded", "store", r.kind, "id", id, "queue_items", n)
		return nil
	}

	queued := false
	if stored {
		if queued, err = c.hasQueued(ctx, r.kind, id); err != nil {
			return err
		}
	}

	if c.online() && !queued {
		err := c.remote.Delete(ctx, r.kind, id)
		var re *remote.Error
		switch {
		case err == nil:
			return nil
		case errors.As(err, &re) && re.StatusCode == http.StatusNotFound:
			return nil
		case remote.IsRejected(err):
			if stored {
				c.restore(ctx, r.kind, id, prev, hadPrev)
			}
			return err
		default:
			c.logger.Info("delete deferred", "store", r.kind, "id", id, "error", err)
		}
	}

	if !stored {
		return fmt.Errorf("delete %s %s: no network and %w", r.kind, id, store.ErrStorageUnavailable)
	}
	return c.enqueue(ctx, model.ActionDelete, r.kind, id, nil)
}
