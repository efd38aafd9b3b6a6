// Package store provides the SQLite-backed durable local store.
//
// The store keeps one table per logical store:
//   - rituals: one record per (date, type), natural key "date_type"
//   - goals, wins, focus_sessions, weekly_data: optimistic domain records
//   - sync_queue: mutations awaiting remote confirmation
//   - settings: key/value pairs persisted across sessions
//
// # Invariants
//
// Single-record atomicity
//   - Put, Delete and the queue helpers are one statement each
//   - There is no transaction spanning a domain write and its queue item;
//     a crash between the two can leave them inconsistent
//
// Pending vs confirmed ids
//   - A pending record is deleted and replaced, never merged, when its
//     server id arrives
//
// Queue order
//   - GetSyncQueue orders by timestamp, then insertion seq
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// When the database cannot be opened, Unavailable returns a store whose every
// operation fails with ErrStorageUnavailable. Callers treat that the same as
// being offline with an empty cache.
package store
