package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/cadence/internal/model"
)

// QueueUpdate is a partial update of a queue item. Nil fields are left as-is.
type QueueUpdate struct {
	Retries  *int
	Error    *string
	Payload  model.Entity
	EntityID *model.ID
}

// AddToSyncQueue appends a mutation. A missing id or timestamp is filled in.
func (s *Store) AddToSyncQueue(ctx context.Context, item model.QueueItem) (model.QueueItem, error) {
	db, err := s.conn()
	if err != nil {
		return model.QueueItem{}, err
	}
	if _, err := model.ParseAction(string(item.Action)); err != nil {
		return model.QueueItem{}, fmt.Errorf("enqueue: %w", err)
	}
	if !item.Store.Syncable() {
		return model.QueueItem{}, fmt.Errorf("enqueue: store %q is not syncable", item.Store)
	}
	if item.Store == model.KindRituals {
		return model.QueueItem{}, errors.New("enqueue: rituals are pushed directly, not queued")
	}
	if item.ID == "" {
		item.ID = uuid.Must(uuid.NewV7()).String()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = s.Now()
	}

	payload, err := marshalEntity(item.Payload)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("enqueue: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, seq, action, store, entity_id, payload, timestamp, retries, error)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sync_queue), ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID,
		string(item.Action),
		string(item.Store),
		item.EntityID.String(),
		payload,
		formatTime(item.Timestamp),
		item.Retries,
		item.Error,
	)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("enqueue %s %s: %w", item.Action, item.Store, err)
	}
	return item, nil
}

// GetSyncQueue returns every queued item in replay order.
func (s *Store) GetSyncQueue(ctx context.Context) ([]model.QueueItem, error) {
	return s.queryQueue(ctx, "", nil)
}

// GetSyncQueueByStore returns the queued items for one store in replay order.
func (s *Store) GetSyncQueueByStore(ctx context.Context, kind model.Kind) ([]model.QueueItem, error) {
	return s.queryQueue(ctx, "store = ?", []any{string(kind)})
}

// QueueItemsForEntity returns the queued items that target one record.
func (s *Store) QueueItemsForEntity(ctx context.Context, kind model.Kind, id model.ID) ([]model.QueueItem, error) {
	return s.queryQueue(ctx, "store = ? AND entity_id = ?", []any{string(kind), id.String()})
}

// GetSyncQueueItem returns one item by id.
func (s *Store) GetSyncQueueItem(ctx context.Context, id string) (model.QueueItem, bool, error) {
	items, err := s.queryQueue(ctx, "id = ?", []any{id})
	if err != nil {
		return model.QueueItem{}, false, err
	}
	if len(items) == 0 {
		return model.QueueItem{}, false, nil
	}
	return items[0], true, nil
}

// CountSyncQueue returns the number of pending items.
func (s *Store) CountSyncQueue(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return n, nil
}

// RemoveSyncQueueItem deletes an item. Removing a missing item is not an error.
func (s *Store) RemoveSyncQueueItem(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("remove queue item %s: %w", id, err)
	}
	return nil
}

// UpdateSyncQueueItem merges upd into the stored item and returns the result.
// Returns ErrNotFound when the item is gone.
func (s *Store) UpdateSyncQueueItem(ctx context.Context, id string, upd QueueUpdate) (model.QueueItem, error) {
	db, err := s.conn()
	if err != nil {
		return model.QueueItem{}, err
	}
	item, ok, err := s.GetSyncQueueItem(ctx, id)
	if err != nil {
		return model.QueueItem{}, err
	}
	if !ok {
		return model.QueueItem{}, fmt.Errorf("update queue item %s: %w", id, ErrNotFound)
	}

	if upd.Retries != nil {
		item.Retries = *upd.Retries
	}
	if upd.Error != nil {
		item.Error = *upd.Error
	}
	if upd.Payload != nil {
		item.Payload = upd.Payload
	}
	if upd.EntityID != nil {
		item.EntityID = *upd.EntityID
	}

	payload, err := marshalEntity(item.Payload)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("update queue item %s: %w", id, err)
	}
	_, err = db.ExecContext(ctx, `
		UPDATE sync_queue SET retries = ?, error = ?, payload = ?, entity_id = ?
		WHERE id = ?
	`, item.Retries, item.Error, payload, item.EntityID.String(), id)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("update queue item %s: %w", id, err)
	}
	return item, nil
}

// RemapQueueEntity rewrites the entity id of queued items, used once a
// pending create is confirmed so later updates target the server id.
func (s *Store) RemapQueueEntity(ctx context.Context, kind model.Kind, from, to model.ID) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE sync_queue SET entity_id = ? WHERE store = ? AND entity_id = ?
	`, to.String(), string(kind), from.String())
	if err != nil {
		return 0, fmt.Errorf("remap queue %s %s: %w", kind, from, err)
	}
	return res.RowsAffected()
}

// RemoveQueueItemsForEntity drops every queued item that targets one record.
func (s *Store) RemoveQueueItemsForEntity(ctx context.Context, kind model.Kind, id model.ID) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `
		DELETE FROM sync_queue WHERE store = ? AND entity_id = ?
	`, string(kind), id.String())
	if err != nil {
		return 0, fmt.Errorf("remove queue items for %s %s: %w", kind, id, err)
	}
	return res.RowsAffected()
}

func (s *Store) queryQueue(ctx context.Context, where string, args []any) ([]model.QueueItem, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	q := `SELECT id, action, store, entity_id, payload, timestamp, retries, error FROM sync_queue`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY timestamp ASC, seq ASC"

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync queue: %w", err)
	}
	defer rows.Close()

	items := []model.QueueItem{}
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync queue: %w", err)
	}
	return items, nil
}

func scanQueueItem(row rowScanner) (model.QueueItem, error) {
	var (
		id, action, store, entityID, payload, ts, errMsg string
		retries                                          int
	)
	if err := row.Scan(&id, &action, &store, &entityID, &payload, &ts, &retries, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.QueueItem{}, err
		}
		return model.QueueItem{}, fmt.Errorf("scan queue item: %w", err)
	}

	act, err := model.ParseAction(action)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("scan queue item %s: %w", id, err)
	}
	kind, err := model.ParseKind(store)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("scan queue item %s: %w", id, err)
	}
	eid, err := model.ParseID(entityID)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("scan queue item %s: %w", id, err)
	}
	entity, err := unmarshalEntity(kind, payload)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("scan queue item %s: %w", id, err)
	}
	timestamp, err := parseTime(ts)
	if err != nil {
		return model.QueueItem{}, fmt.Errorf("scan queue item %s: %w", id, err)
	}

	return model.QueueItem{
		ID:        id,
		Action:    act,
		Store:     kind,
		EntityID:  eid,
		Payload:   entity,
		Timestamp: timestamp,
		Retries:   retries,
		Error:     errMsg,
	}, nil
}
