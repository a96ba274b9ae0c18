// Package store provides SQLite-backed checkpoints of the project layout.
//
// The layout is the flat map from resource id to that resource's record.
// The store keeps:
//   - Resources: the current layout, one canonical record per id
//   - Checkpoints: an append-only list of SaveCheckpoint calls
//
// # Patterns
//
// Canonical records: records are stored as RFC 8785 canonical JSON with the
// content hash next to them. LoadLayout recomputes the hash and leaves out,
// and reports, rows that no longer match.
//
// Logical time: checkpoints are ordered by seq, never by wall time. A
// resource row remembers the seq of the checkpoint that last changed it.
//
// Deterministic reads: every listing uses ORDER BY id COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes (file databases only)
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// MemoryPath opens a private in-memory database on a single connection;
// the scenario harness uses one per run.
package store
