package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/cadence/internal/model"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if !s.Available() {
		t.Error("opened store reports unavailable")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"rituals", "goals", "wins", "focus_sessions", "weekly_data", "sync_queue", "settings"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPathIsStorageUnavailable(t *testing.T) {
	// A regular file where a directory is expected
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(filepath.Join(blocker, "sub", "test.db"))
	if err == nil {
		t.Fatal("expected error for invalid path, got nil")
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestUnavailable_EveryOperationFails(t *testing.T) {
	ctx := context.Background()
	s := Unavailable()
	id := model.ConfirmedID("1")

	checks := map[string]error{}
	_, checks["put"] = s.Put(ctx, model.Record{ID: id, Entity: model.Goal{Title: "x"}})
	_, _, checks["get"] = s.Get(ctx, model.KindGoals, id)
	_, checks["getAll"] = s.GetAll(ctx, model.KindGoals)
	_, checks["getByIndex"] = s.GetByIndex(ctx, model.KindGoals, IndexSynced, false)
	checks["delete"] = s.Delete(ctx, model.KindGoals, id)
	checks["clear"] = s.Clear(ctx, model.KindGoals)
	checks["clearAll"] = s.ClearAll(ctx)
	_, checks["saveRitual"] = s.SaveRitual(ctx, "morning", "2024-01-01", nil, false)
	_, checks["enqueue"] = s.AddToSyncQueue(ctx, model.QueueItem{Action: model.ActionCreate, Store: model.KindGoals, EntityID: id})
	_, checks["queue"] = s.GetSyncQueue(ctx)
	checks["setting"] = s.PutSetting(ctx, "k", 1)

	for name, err := range checks {
		if !errors.Is(err, ErrStorageUnavailable) {
			t.Errorf("%s: error = %v, want ErrStorageUnavailable", name, err)
		}
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	if s.Available() {
		t.Error("closed store reports available")
	}
	if _, err := s.GetAll(context.Background(), model.KindWins); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestSchema_RitualIndexes(t *testing.T) {
	s := createTestStore(t)

	indexes := []string{"idx_rituals_date", "idx_rituals_type", "idx_rituals_synced", "idx_rituals_date_type"}
	for _, idx := range indexes {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q not found: %v", idx, err)
		}
	}
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	// Simulate a v0 database without the store index
	if _, err := s.db.Exec("DROP INDEX idx_sync_queue_store"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("reset user_version: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_sync_queue_store'",
	).Scan(&name)
	if err != nil {
		t.Errorf("idx_sync_queue_store missing after upgrade: %v", err)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	if _, err := s.SaveGoal(ctx, model.ConfirmedID("1"), model.Goal{Title: "Run"}, true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRitual(ctx, "morning", "2024-01-01", nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddToSyncQueue(ctx, model.QueueItem{Action: model.ActionDelete, Store: model.KindGoals, EntityID: model.ConfirmedID("1")}); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() failed: %v", err)
	}

	for _, kind := range model.EntityKinds {
		recs, err := s.GetAll(ctx, kind)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 0 {
			t.Errorf("%s has %d records after ClearAll", kind, len(recs))
		}
	}
	n, err := s.CountSyncQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("queue has %d items after ClearAll", n)
	}
}
