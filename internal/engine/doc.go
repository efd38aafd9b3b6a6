// Package engine implements the cadence sync engine.
//
// The engine drains the sync queue against the remote service, then pushes
// rituals that were saved directly with synced=false.
//
// ARCHITECTURE:
//
// Single Consumer:
// Run() owns the drain loop. Producers never call into the drain directly,
// they publish triggers:
//   - connectivity.EventOnline (offline to online transition)
//   - Run() starting while the status is already online
//   - connectivity.EventVisible, honoured only while online
//   - NotifyQueued(), published by the offline client after an enqueue
//   - Trigger(ReasonManual)
//   - the periodic ticker (WithInterval)
//
// Single Flight:
// A two-state machine (idle, running) guards every run. A trigger that
// arrives while running is dropped; triggers that arrive while idle are
// coalesced into the next run. SyncNow() runs in the caller's goroutine
// under the same guard and fails with ErrSyncInProgress instead of waiting.
//
// Run Flow:
// 1. Snapshot the queue in timestamp order
// 2. For each item, re-read it (payload and entity id may have changed) and
//    replay it: create→POST, update→PUT, delete→DELETE
// 3. On success remove it; a confirmed create replaces the pending record
//    with the server record and remaps later queue items to the server id
// 4. On failure bump retries; at model.MaxRetries the item is dropped
// 5. Push unsynced rituals; transient failures stay unsynced for the next
//    run, rejected ones are marked synced and not sent again
//
// Item failures never abort a run. Partial success is a normal outcome.
package engine
