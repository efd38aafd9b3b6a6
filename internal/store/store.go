package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/cadence/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added idx_sync_queue_store for per-store queue lookups
const currentSchemaVersion = 1

// DefaultRecentRituals is how many rituals the recent projection keeps.
const DefaultRecentRituals = 30

// Store is the durable local store.
// Uses SQLite with WAL mode; a single connection serialises writers.
type Store struct {
	mu  sync.RWMutex
	db  *sql.DB
	now func() time.Time

	recentLimit int
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for updated_at and queue timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithRecentRituals sets the size of the recent rituals projection.
func WithRecentRituals(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

// WithLogger sets the logger for non-fatal store warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func newStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		now:         time.Now,
		recentLimit: DefaultRecentRituals,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// Any failure to bring the database up is reported wrapped in
// ErrStorageUnavailable.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %w", ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrStorageUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connect to database: %w", ErrStorageUnavailable, err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply pragmas: %w", ErrStorageUnavailable, err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %w", ErrStorageUnavailable, err)
	}

	return newStore(db, opts...), nil
}

// Unavailable returns a store with no backing database.
// Every operation on it fails with ErrStorageUnavailable.
func Unavailable(opts ...Option) *Store {
	return newStore(nil, opts...)
}

// Available reports whether the store has an open database.
func (s *Store) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Close closes the database connection. The store is unavailable afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// conn returns the open database or ErrStorageUnavailable.
func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrStorageUnavailable
	}
	return s.db, nil
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// Clear wipes one store. Used for resets, not normal operation.
func (s *Store) Clear(ctx context.Context, kind model.Kind) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	return nil
}

// ClearAll wipes every store in one transaction.
func (s *Store) ClearAll(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear all: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, kind := range model.AllKinds {
		table, err := tableFor(kind)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear all: %s: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear all: commit: %w", err)
	}
	return nil
}

// tableFor maps a logical store to its SQLite table.
func tableFor(kind model.Kind) (string, error) {
	switch kind {
	case model.KindRituals:
		return "rituals", nil
	case model.KindGoals:
		return "goals", nil
	case model.KindWins:
		return "wins", nil
	case model.KindFocusSessions:
		return "focus_sessions", nil
	case model.KindWeeklyData:
		return "weekly_data", nil
	case model.KindSyncQueue:
		return "sync_queue", nil
	case model.KindSettings:
		return "settings", nil
	default:
		return "", fmt.Errorf("unknown store %q", kind)
	}
}

// entityTable is tableFor restricted to stores that hold records.
func entityTable(kind model.Kind) (string, error) {
	if kind == model.KindSyncQueue || kind == model.KindSettings {
		return "", fmt.Errorf("store %q holds no records", kind)
	}
	return tableFor(kind)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the per-store queue index for databases created before it
// existed in schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sync_queue_store ON sync_queue(store)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	var value string
	if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
