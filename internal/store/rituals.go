package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cadence/internal/model"
)

// settingRecentRituals holds the denormalised projection of recent rituals.
const settingRecentRituals = "recentRituals"

// recentRitual is one entry of the recent rituals projection.
type recentRitual struct {
	ID        model.ID     `json:"id"`
	Ritual    model.Ritual `json:"ritual"`
	Synced    bool         `json:"synced"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NormalizeRitualType canonicalises a ritual type so visually identical
// names share one (date, type) key.
func NormalizeRitualType(ritualType string) string {
	return norm.NFC.String(strings.TrimSpace(ritualType))
}

// RitualID returns the natural key id for a ritual.
func RitualID(date, ritualType string) model.ID {
	return model.ConfirmedID(model.RitualKey(date, NormalizeRitualType(ritualType)))
}

// SaveRitual upserts the ritual for (date, type) and refreshes the recent
// rituals projection. Saving twice for the same day and type overwrites.
func (s *Store) SaveRitual(ctx context.Context, ritualType, date string, data map[string]any, synced bool) (model.Record, error) {
	ritualType = NormalizeRitualType(ritualType)
	if ritualType == "" {
		return model.Record{}, errors.New("save ritual: empty type")
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return model.Record{}, fmt.Errorf("save ritual: date %q: %w", date, err)
	}
	if data == nil {
		data = map[string]any{}
	}

	rec, err := s.Put(ctx, model.Record{
		ID:     RitualID(date, ritualType),
		Entity: model.Ritual{Date: date, Type: ritualType, Data: data},
		Synced: synced,
	})
	if err != nil {
		return model.Record{}, fmt.Errorf("save ritual: %w", err)
	}

	if err := s.refreshRecentRituals(ctx); err != nil {
		s.logger.Warn("recent rituals projection not refreshed", "error", err)
	}
	return rec, nil
}

// GetRitualByDateAndType returns the ritual for (date, type), if any.
func (s *Store) GetRitualByDateAndType(ctx context.Context, date, ritualType string) (model.Record, bool, error) {
	recs, err := s.GetByIndex(ctx, model.KindRituals, IndexDateType, []string{date, NormalizeRitualType(ritualType)})
	if err != nil {
		return model.Record{}, false, err
	}
	if len(recs) == 0 {
		return model.Record{}, false, nil
	}
	return recs[0], true, nil
}

// GetRitualsByDate returns every ritual recorded on date.
func (s *Store) GetRitualsByDate(ctx context.Context, date string) ([]model.Record, error) {
	return s.GetByIndex(ctx, model.KindRituals, IndexDate, date)
}

// GetUnsyncedRituals returns rituals not yet confirmed remotely.
// This filters GetAll instead of using the synced index; it only runs
// during sync and the table is small.
func (s *Store) GetUnsyncedRituals(ctx context.Context) ([]model.Record, error) {
	all, err := s.GetAll(ctx, model.KindRituals)
	if err != nil {
		return nil, err
	}
	unsynced := []model.Record{}
	for _, rec := range all {
		if !rec.Synced {
			unsynced = append(unsynced, rec)
		}
	}
	return unsynced, nil
}

// MarkRitualSynced flips synced=true on a ritual and refreshes the projection.
func (s *Store) MarkRitualSynced(ctx context.Context, id model.ID) error {
	if err := s.MarkSynced(ctx, model.KindRituals, id); err != nil {
		return err
	}
	if err := s.refreshRecentRituals(ctx); err != nil {
		s.logger.Warn("recent rituals projection not refreshed", "error", err)
	}
	return nil
}

// DeleteRitual removes a ritual and refreshes the projection. Deleting a
// missing ritual is not an error.
func (s *Store) DeleteRitual(ctx context.Context, id model.ID) error {
	if err := s.Delete(ctx, model.KindRituals, id); err != nil {
		return err
	}
	if err := s.refreshRecentRituals(ctx); err != nil {
		s.logger.Warn("recent rituals projection not refreshed", "error", err)
	}
	return nil
}

// RecentRituals reads the projection written by SaveRitual, newest first,
// without touching the rituals table.
func (s *Store) RecentRituals(ctx context.Context) ([]model.Record, error) {
	var recent []recentRitual
	ok, err := s.GetSetting(ctx, settingRecentRituals, &recent)
	if err != nil {
		return nil, err
	}
	records := make([]model.Record, 0, len(recent))
	if !ok {
		return records, nil
	}
	for _, r := range recent {
		records = append(records, model.Record{
			ID:        r.ID,
			Entity:    r.Ritual,
			Synced:    r.Synced,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return records, nil
}

// refreshRecentRituals rewrites the projection from the newest rituals.
func (s *Store) refreshRecentRituals(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, data, synced, updated_at FROM rituals
		ORDER BY date DESC, updated_at DESC
		LIMIT ?
	`, s.recentLimit)
	if err != nil {
		return fmt.Errorf("query recent rituals: %w", err)
	}
	defer rows.Close()

	recent := []recentRitual{}
	for rows.Next() {
		rec, err := scanRecord(model.KindRituals, rows)
		if err != nil {
			return err
		}
		ritual, _ := rec.Entity.(model.Ritual)
		recent = append(recent, recentRitual{
			ID:        rec.ID,
			Ritual:    ritual,
			Synced:    rec.Synced,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate recent rituals: %w", err)
	}

	return s.PutSetting(ctx, settingRecentRituals, recent)
}
