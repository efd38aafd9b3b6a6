package store

import (
	"context"
	"testing"

	"github.com/roach88/cadence/internal/model"
)

func TestSaveRitual_OverwritesSameDayAndType(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	if _, err := s.SaveRitual(ctx, "morning", "2024-01-01", map[string]any{"intention": "first"}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRitual(ctx, "morning", "2024-01-01", map[string]any{"intention": "second"}, false); err != nil {
		t.Fatal(err)
	}

	rec, ok, err := s.GetRitualByDateAndType(ctx, "2024-01-01", "morning")
	if err != nil || !ok {
		t.Fatalf("GetRitualByDateAndType() = %v, %v", ok, err)
	}
	if got := rec.Entity.(model.Ritual).Data["intention"]; got != "second" {
		t.Errorf("intention = %v, want second", got)
	}

	all, err := s.GetAll(ctx, model.KindRituals)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("rituals = %d, want 1", len(all))
	}
	if rec.ID.String() != "2024-01-01_morning" {
		t.Errorf("id = %s, want 2024-01-01_morning", rec.ID)
	}
}

func TestSaveRitual_NormalizesType(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	// decomposed accent first, then precomposed with padding
	if _, err := s.SaveRitual(ctx, "re\u0301flexion", "2024-01-01", nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRitual(ctx, " r\u00e9flexion ", "2024-01-01", nil, false); err != nil {
		t.Fatal(err)
	}

	all, _ := s.GetAll(ctx, model.KindRituals)
	if len(all) != 1 {
		t.Errorf("rituals = %d, want 1 after normalisation", len(all))
	}
}

func TestSaveRitual_Validation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	if _, err := s.SaveRitual(ctx, "", "2024-01-01", nil, false); err == nil {
		t.Error("expected error for empty type")
	}
	if _, err := s.SaveRitual(ctx, "morning", "01/01/2024", nil, false); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestGetRitualsByDate(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	s.SaveRitual(ctx, "morning", "2024-01-01", nil, false)
	s.SaveRitual(ctx, "evening", "2024-01-01", nil, false)
	s.SaveRitual(ctx, "morning", "2024-01-02", nil, false)

	recs, err := s.GetRitualsByDate(ctx, "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("rituals on 2024-01-01 = %d, want 2", len(recs))
	}
}

func TestUnsyncedAndMarkRitualSynced(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rec, _ := s.SaveRitual(ctx, "morning", "2024-01-01", nil, false)
	s.SaveRitual(ctx, "evening", "2024-01-01", nil, true)

	unsynced, err := s.GetUnsyncedRituals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unsynced) != 1 || unsynced[0].ID != rec.ID {
		t.Fatalf("unsynced = %+v, want only %s", unsynced, rec.ID)
	}

	if err := s.MarkRitualSynced(ctx, rec.ID); err != nil {
		t.Fatalf("MarkRitualSynced() failed: %v", err)
	}
	unsynced, _ = s.GetUnsyncedRituals(ctx)
	if len(unsynced) != 0 {
		t.Errorf("unsynced after mark = %d, want 0", len(unsynced))
	}

	got, _, _ := s.GetRitualByDateAndType(ctx, "2024-01-01", "morning")
	if got.Entity.(model.Ritual).Type != "morning" {
		t.Error("mark synced lost the ritual payload")
	}
}

func TestRecentRituals_Projection(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithRecentRituals(2))

	s.SaveRitual(ctx, "morning", "2024-01-01", nil, false)
	s.SaveRitual(ctx, "morning", "2024-01-03", nil, false)
	s.SaveRitual(ctx, "morning", "2024-01-02", nil, false)

	recent, err := s.RecentRituals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	if d := recent[0].Entity.(model.Ritual).Date; d != "2024-01-03" {
		t.Errorf("newest = %s, want 2024-01-03", d)
	}
	if d := recent[1].Entity.(model.Ritual).Date; d != "2024-01-02" {
		t.Errorf("second = %s, want 2024-01-02", d)
	}
}

func TestRecentRituals_EmptyStore(t *testing.T) {
	s := createTestStore(t)

	recent, err := s.RecentRituals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("recent = %d, want 0", len(recent))
	}
}
