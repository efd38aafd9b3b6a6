package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cadence/internal/model"
)

// Index names a secondary index usable with GetByIndex.
type Index string

const (
	IndexDate     Index = "date"
	IndexType     Index = "type"
	IndexSynced   Index = "synced"
	IndexDateType Index = "date_type" // value is []string{date, type}
)

// indexColumns resolves an index to its columns for a record store.
func indexColumns(kind model.Kind, idx Index) ([]string, error) {
	switch {
	case idx == IndexSynced:
		return []string{"synced"}, nil
	case kind == model.KindRituals && idx == IndexDate:
		return []string{"date"}, nil
	case kind == model.KindRituals && idx == IndexType:
		return []string{"type"}, nil
	case kind == model.KindRituals && idx == IndexDateType:
		return []string{"date", "type"}, nil
	default:
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownIndex, idx, kind)
	}
}

// indexArgs converts a lookup value to query arguments for cols.
func indexArgs(cols []string, value any) ([]any, error) {
	if len(cols) == 1 {
		if b, ok := value.(bool); ok {
			return []any{boolToInt(b)}, nil
		}
		return []any{value}, nil
	}
	parts, ok := value.([]string)
	if !ok || len(parts) != len(cols) {
		return nil, fmt.Errorf("composite index wants %d strings, got %v", len(cols), value)
	}
	args := make([]any, len(parts))
	for i, p := range parts {
		args[i] = p
	}
	return args, nil
}

// Put inserts or replaces a record by primary key and returns what was stored.
// UpdatedAt is stamped when zero.
func (s *Store) Put(ctx context.Context, rec model.Record) (model.Record, error) {
	db, err := s.conn()
	if err != nil {
		return model.Record{}, err
	}
	if rec.Entity == nil {
		return model.Record{}, errors.New("put: record has no entity")
	}
	if rec.ID.IsZero() {
		return model.Record{}, errors.New("put: record has no id")
	}
	kind := rec.Kind()
	table, err := entityTable(kind)
	if err != nil {
		return model.Record{}, fmt.Errorf("put: %w", err)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.Now()
	}

	data, err := marshalEntity(rec.Entity)
	if err != nil {
		return model.Record{}, fmt.Errorf("put: %w", err)
	}

	if ritual, ok := rec.Entity.(model.Ritual); ok {
		_, err = db.ExecContext(ctx, `
			INSERT INTO rituals (id, date, type, data, synced, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				date = excluded.date,
				type = excluded.type,
				data = excluded.data,
				synced = excluded.synced,
				updated_at = excluded.updated_at
		`, rec.ID.String(), ritual.Date, ritual.Type, data, boolToInt(rec.Synced), formatTime(rec.UpdatedAt))
	} else {
		_, err = db.ExecContext(ctx, `
			INSERT INTO `+table+` (id, data, synced, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				data = excluded.data,
				synced = excluded.synced,
				updated_at = excluded.updated_at
		`, rec.ID.String(), data, boolToInt(rec.Synced), formatTime(rec.UpdatedAt))
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("put %s %s: %w", kind, rec.ID, err)
	}

	return rec, nil
}

// Get returns the record with id. Absence is reported as ok=false.
func (s *Store) Get(ctx context.Context, kind model.Kind, id model.ID) (model.Record, bool, error) {
	db, err := s.conn()
	if err != nil {
		return model.Record{}, false, err
	}
	table, err := entityTable(kind)
	if err != nil {
		return model.Record{}, false, fmt.Errorf("get: %w", err)
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, data, synced, updated_at FROM `+table+` WHERE id = ?
	`, id.String())
	rec, err := scanRecord(kind, row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, false, nil
	}
	if err != nil {
		return model.Record{}, false, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return rec, true, nil
}

// GetAll returns every record in storage order.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) GetAll(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	return s.query(ctx, kind, "", nil)
}

// GetByIndex returns every record whose indexed field equals value.
func (s *Store) GetByIndex(ctx context.Context, kind model.Kind, idx Index, value any) ([]model.Record, error) {
	cols, err := indexColumns(kind, idx)
	if err != nil {
		return nil, err
	}
	args, err := indexArgs(cols, value)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", idx, err)
	}
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = c + " = ?"
	}
	return s.query(ctx, kind, strings.Join(conds, " AND "), args)
}

// GetByIndexRange returns every record whose indexed field lies in [from, to].
// Only single-column indexes support ranges.
func (s *Store) GetByIndexRange(ctx context.Context, kind model.Kind, idx Index, from, to any) ([]model.Record, error) {
	cols, err := indexColumns(kind, idx)
	if err != nil {
		return nil, err
	}
	if len(cols) != 1 {
		return nil, fmt.Errorf("%w: range over composite index %s", ErrUnknownIndex, idx)
	}
	return s.query(ctx, kind, cols[0]+" >= ? AND "+cols[0]+" <= ?", []any{from, to})
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, kind model.Kind, id model.ID) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	table, err := entityTable(kind)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return nil
}

// MarkSynced flips synced=true on an existing record.
// The store has no partial update, so this reads, modifies and puts.
func (s *Store) MarkSynced(ctx context.Context, kind model.Kind, id model.ID) error {
	rec, ok, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mark synced %s %s: %w", kind, id, ErrNotFound)
	}
	rec.Synced = true
	rec.UpdatedAt = s.Now()
	_, err = s.Put(ctx, rec)
	return err
}

// query runs a SELECT over a record table with an optional WHERE clause.
func (s *Store) query(ctx context.Context, kind model.Kind, where string, args []any) ([]model.Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	table, err := entityTable(kind)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	q := "SELECT id, data, synced, updated_at FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY rowid ASC"

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		rec, err := scanRecord(kind, rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return records, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(kind model.Kind, row rowScanner) (model.Record, error) {
	var (
		id, data, updatedAt string
		synced              int
	)
	if err := row.Scan(&id, &data, &synced, &updatedAt); err != nil {
		return model.Record{}, err
	}

	parsedID, err := model.ParseID(id)
	if err != nil {
		return model.Record{}, fmt.Errorf("scan %s: %w", kind, err)
	}
	entity, err := unmarshalEntity(kind, data)
	if err != nil {
		return model.Record{}, fmt.Errorf("scan %s %s: %w", kind, id, err)
	}
	ts, err := parseTime(updatedAt)
	if err != nil {
		return model.Record{}, fmt.Errorf("scan %s %s: %w", kind, id, err)
	}

	return model.Record{
		ID:        parsedID,
		Entity:    entity,
		Synced:    synced != 0,
		UpdatedAt: ts,
	}, nil
}
