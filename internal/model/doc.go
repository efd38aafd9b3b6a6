// Package model defines the record, identifier and queue types shared by the
// local store, the sync engine and the offline client.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Entities form a closed sum type; every switch over Kind is total
//   - IDs are either Pending (client token) or Confirmed (server id), never both
//   - All JSON tags use snake_case
package model
