// Package store provides SQLite-backed persistence for state tree snapshots.
//
// A snapshot is stored as three kinds of rows:
//   - Snapshots: one header per (name, hash), with the root node id
//   - Route records: the route record of every routed field
//   - Node records: the position and JSON state of every live node
//
// # Critical Patterns
//
// Content-addressed idempotency
//   - UNIQUE(name, hash) constraint on snapshots
//   - Saving an identical tree under the same name is a no-op that returns
//     the existing snapshot id
//
// Deterministic reads
//   - Child rows are read ORDER BY node_id, field COLLATE BINARY
//   - Listings are ordered by name COLLATE BINARY, then id
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: 5s unless set with WithBusyTimeout
//   - foreign_keys=ON: Child rows are deleted with their snapshot
//
// Schema changes are numbered migrations tracked in PRAGMA user_version.
//
// Snapshot hashes are computed by route.Snapshot.Hash using canonical JSON
// and SHA-256 with domain separation.
package store
