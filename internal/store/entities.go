package store

import (
	"context"

	"github.com/roach88/cadence/internal/model"
)

// SaveGoal upserts a goal under id.
func (s *Store) SaveGoal(ctx context.Context, id model.ID, goal model.Goal, synced bool) (model.Record, error) {
	return s.Put(ctx, model.Record{ID: id, Entity: goal, Synced: synced})
}

// SaveWin upserts a win under id.
func (s *Store) SaveWin(ctx context.Context, id model.ID, win model.Win, synced bool) (model.Record, error) {
	return s.Put(ctx, model.Record{ID: id, Entity: win, Synced: synced})
}

// SaveFocusSession upserts a focus session under id.
func (s *Store) SaveFocusSession(ctx context.Context, id model.ID, session model.FocusSession, synced bool) (model.Record, error) {
	return s.Put(ctx, model.Record{ID: id, Entity: session, Synced: synced})
}

// SaveWeeklyReview upserts a weekly review under id.
func (s *Store) SaveWeeklyReview(ctx context.Context, id model.ID, review model.WeeklyReview, synced bool) (model.Record, error) {
	return s.Put(ctx, model.Record{ID: id, Entity: review, Synced: synced})
}

// GetUnsynced returns the records of kind that still await confirmation.
func (s *Store) GetUnsynced(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	return s.GetByIndex(ctx, kind, IndexSynced, false)
}
