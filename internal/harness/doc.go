// Package harness runs offline-sync scenarios described in YAML.
//
// A scenario drives the real offline client, sync engine and local store
// against an in-process fake of the journaling service, then checks the
// final local, queued and remote state.
//
// # Scenario Format
//
//	name: offline_win_confirmed
//	description: "What this scenario validates"
//	online: false
//	seed:
//	  - store: goals
//	    id: "1"
//	    value: { title: Existing }
//	steps:
//	  - op: create
//	    store: wins
//	    as: w
//	    value: { title: Shipped v1 }
//	  - op: go_online
//	  - op: sync
//	assertions:
//	  - type: queue_count
//	    count: 0
//	  - type: local_state
//	    store: wins
//	    where: { title: Shipped v1 }
//	    expect: { synced: true, pending: false }
//
// # Steps
//
//   - create, update, delete, list: offline client calls; update and delete
//     name the record created earlier under `as` via `ref`
//   - save_ritual: Rituals.Save with ritual_type, date and value
//   - go_online, go_offline: flip connectivity
//   - fail: script the next `times` requests of method against store to
//     answer `status`
//   - sync: one engine run
//
// A step may set expect_error to one of no_cached_data, rejected, offline,
// storage_unavailable; any other error fails the scenario.
//
// # Assertion Types
//
//   - queue_count: queued mutations, optionally for one store
//   - local_count, remote_count: records matching `where`
//   - local_state, remote_state: the single record matching `where` has the
//     `expect` fields; local records also expose id, synced and pending
//   - request_count: requests of method against store seen by the service
//
// # Deterministic Traces
//
// Pending ids are random, so traces name them temp_<as>. Server ids come
// from the fake's counter. The trace and request log are compared against
// testdata/golden/<name>.golden.
package harness
