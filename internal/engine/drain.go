package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/remote"
	"github.com/roach88/cadence/internal/store"
)

// execute performs one run. The caller must have called begin.
func (e *Engine) execute(ctx context.Context, reasons []Reason) (Report, error) {
	defer e.finish()

	report := Report{
		Run:     e.runSeq.Add(1),
		Reasons: reasons,
		Started: e.now().UTC(),
	}
	e.logger.Info("sync run started", "run", report.Run, "reasons", reasons)
	e.publish(Signal{Type: SignalStart})

	queueErr := e.drainQueue(ctx, &report)
	ritualErr := e.pushRituals(ctx, &report)
	report.Finished = e.now().UTC()

	runDuration.Observe(report.Duration().Seconds())
	if n, err := e.store.CountSyncQueue(ctx); err == nil {
		queueDepth.Set(float64(n))
	}
	if err := e.store.PutSetting(ctx, SettingLastSync, report); err != nil {
		e.logger.Warn("last sync report not persisted", "error", err)
	}

	// Storage failures abort a pass; item failures do not.
	if err := errors.Join(queueErr, ritualErr); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		e.logger.Error("sync run failed", "run", report.Run, "error", err)
		e.publish(Signal{Type: SignalError, Report: report, Err: err})
		return report, err
	}

	if !report.OK() {
		runsTotal.WithLabelValues("error").Inc()
		err := &RunFailedError{Failed: report.Failed, RitualsFailed: report.RitualsFailed}
		e.logger.Warn("sync run finished with failures",
			"run", report.Run,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"dropped", len(report.Dropped),
			"rituals_synced", report.RitualsSynced,
			"rituals_failed", report.RitualsFailed,
		)
		e.publish(Signal{Type: SignalError, Report: report, Err: err})
		return report, nil
	}

	runsTotal.WithLabelValues("ok").Inc()
	e.logger.Info("sync run complete",
		"run", report.Run,
		"succeeded", report.Succeeded,
		"rituals_synced", report.RitualsSynced,
		"duration", report.Duration(),
	)
	e.publish(Signal{Type: SignalComplete, Report: report})
	return report, nil
}

// drainQueue replays a snapshot of the queue in timestamp order.
func (e *Engine) drainQueue(ctx context.Context, report *Report) error {
	snapshot, err := e.store.GetSyncQueue(ctx)
	if err != nil {
		return fmt.Errorf("read sync queue: %w", err)
	}

	for _, queued := range snapshot {
		if ctx.Err() != nil {
			return nil
		}

		// The offline client may fold edits into a queued create, and a
		// confirmed create remaps later items, so the snapshot copy is stale.
		item, ok, err := e.store.GetSyncQueueItem(ctx, queued.ID)
		if err != nil {
			return fmt.Errorf("read queue item %s: %w", queued.ID, err)
		}
		if !ok {
			continue
		}

		if err := e.replay(ctx, item); err != nil {
			if ctx.Err() != nil {
				// Shutdown, not a failure of the item.
				return nil
			}
			e.recordFailure(ctx, item, err, report)
			continue
		}

		if err := e.store.RemoveSyncQueueItem(ctx, item.ID); err != nil {
			return fmt.Errorf("remove synced item %s: %w", item.ID, err)
		}
		report.Succeeded++
		itemsTotal.WithLabelValues(string(item.Store), "synced").Inc()
		e.logger.Debug("queue item synced",
			"id", item.ID,
			"action", item.Action,
			"store", item.Store,
			"entity_id", item.EntityID,
		)
	}
	return nil
}

// replay issues the remote call for one item and applies the confirmed
// state locally.
func (e *Engine) replay(ctx context.Context, item model.QueueItem) error {
	switch item.Action {
	case model.ActionCreate:
		if item.Payload == nil {
			return errors.New("create item has no payload")
		}
		rec, err := e.remote.Create(ctx, item.Store, item.Payload)
		if err != nil {
			return err
		}
		return e.confirmCreate(ctx, item, rec)

	case model.ActionUpdate:
		if item.EntityID.IsPending() {
			return fmt.Errorf("update %s %s: %w", item.Store, item.EntityID, ErrPendingEntity)
		}
		if item.Payload == nil {
			return errors.New("update item has no payload")
		}
		if _, err := e.remote.Update(ctx, item.Store, item.EntityID, item.Payload); err != nil {
			return err
		}
		return e.confirmUpdate(ctx, item)

	case model.ActionDelete:
		if item.EntityID.IsPending() {
			return fmt.Errorf("delete %s %s: %w", item.Store, item.EntityID, ErrPendingEntity)
		}
		err := e.remote.Delete(ctx, item.Store, item.EntityID)
		var re *remote.Error
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			// Already gone remotely.
			return nil
		}
		return err

	default:
		return fmt.Errorf("unknown action %q", item.Action)
	}
}

// confirmCreate swaps the pending record for the server record.
//
// When later queue items still target the entity, the local (newer) payload
// is kept unsynced under the server id so those items carry it forward.
func (e *Engine) confirmCreate(ctx context.Context, item model.QueueItem, server model.Record) error {
	remapped, err := e.store.RemapQueueEntity(ctx, item.Store, item.EntityID, server.ID)
	if err != nil {
		return fmt.Errorf("remap queue for %s: %w", item.EntityID, err)
	}
	// The create item itself was remapped too.
	later := remapped > 1

	local, hadLocal, err := e.store.Get(ctx, item.Store, item.EntityID)
	if err != nil {
		return fmt.Errorf("read pending record %s: %w", item.EntityID, err)
	}
	if err := e.store.Delete(ctx, item.Store, item.EntityID); err != nil {
		return fmt.Errorf("delete pending record %s: %w", item.EntityID, err)
	}

	confirmed := model.Record{ID: server.ID, Entity: server.Entity, Synced: true}
	if later && hadLocal {
		confirmed = model.Record{ID: server.ID, Entity: local.Entity, Synced: false}
	}
	if _, err := e.store.Put(ctx, confirmed); err != nil {
		return fmt.Errorf("store confirmed record %s: %w", server.ID, err)
	}

	e.logger.Debug("pending record confirmed",
		"store", item.Store,
		"pending_id", item.EntityID,
		"server_id", server.ID,
		"later_items", remapped-1,
	)
	return nil
}

// confirmUpdate marks the local record synced unless more edits are queued.
func (e *Engine) confirmUpdate(ctx context.Context, item model.QueueItem) error {
	queued, err := e.store.QueueItemsForEntity(ctx, item.Store, item.EntityID)
	if err != nil {
		return err
	}
	for _, q := range queued {
		if q.ID != item.ID {
			return nil
		}
	}
	err = e.store.MarkSynced(ctx, item.Store, item.EntityID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted locally since; the queued delete follows.
		return nil
	}
	return err
}

// recordFailure bumps retries or drops the item at the ceiling.
func (e *Engine) recordFailure(ctx context.Context, item model.QueueItem, cause error, report *Report) {
	report.Failed++
	item.Retries++
	item.Error = cause.Error()

	if item.Exhausted() {
		exhausted := &QueueExhaustedError{Item: item, Err: cause}
		if err := e.store.RemoveSyncQueueItem(ctx, item.ID); err != nil {
			e.logger.Error("exhausted queue item not removed", "id", item.ID, "error", err)
			return
		}
		report.Dropped = append(report.Dropped, item)
		itemsTotal.WithLabelValues(string(item.Store), "dropped").Inc()
		e.logger.Warn("queue item dropped",
			"id", item.ID,
			"action", item.Action,
			"store", item.Store,
			"entity_id", item.EntityID,
			"retries", item.Retries,
			"error", exhausted,
		)
		return
	}

	itemsTotal.WithLabelValues(string(item.Store), "failed").Inc()
	if _, err := e.store.UpdateSyncQueueItem(ctx, item.ID, store.QueueUpdate{
		Retries: &item.Retries,
		Error:   &item.Error,
	}); err != nil {
		e.logger.Error("queue item retry not persisted", "id", item.ID, "error", err)
		return
	}
	e.logger.Info("queue item failed, will retry",
		"id", item.ID,
		"action", item.Action,
		"store", item.Store,
		"retries", item.Retries,
		"error", cause,
	)
}

// pushRituals sends rituals saved with synced=false. There is no retry
// counter on this path; a ritual that failed in transit is tried again next
// run. A rejected ritual is marked synced so it is never resent.
func (e *Engine) pushRituals(ctx context.Context, report *Report) error {
	if ctx.Err() != nil {
		return nil
	}
	rituals, err := e.store.GetUnsyncedRituals(ctx)
	if err != nil {
		return fmt.Errorf("read unsynced rituals: %w", err)
	}

	for _, rec := range rituals {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := e.remote.Create(ctx, model.KindRituals, rec.Entity); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			report.RitualsFailed++
			if remote.IsRejected(err) {
				ritualsTotal.WithLabelValues("rejected").Inc()
				e.logger.Warn("ritual rejected, not resending", "id", rec.ID, "error", err)
				if err := e.store.MarkRitualSynced(ctx, rec.ID); err != nil {
					e.logger.Error("rejected ritual not retired", "id", rec.ID, "error", err)
				}
				continue
			}
			ritualsTotal.WithLabelValues("failed").Inc()
			e.logger.Debug("ritual push failed", "id", rec.ID, "error", err)
			continue
		}
		if err := e.store.MarkRitualSynced(ctx, rec.ID); err != nil {
			report.RitualsFailed++
			ritualsTotal.WithLabelValues("failed").Inc()
			e.logger.Warn("ritual pushed but not marked synced", "id", rec.ID, "error", err)
			continue
		}
		report.RitualsSynced++
		ritualsTotal.WithLabelValues("synced").Inc()
	}
	return nil
}
