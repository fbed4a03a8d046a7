// Package store provides SQLite-backed durable storage for progression
// dimensions and their audit history.
//
// Two relations back the engine:
//   - progression_dimensions: one row per dimension, unique on name
//   - progression_history: append-only audit log, indexed by dimension and
//     creation time
//
// # Atomicity
//
// Every dimension write goes through CompareAndUpdate. The row is read with
// its version, the caller's mutator computes the next state, and the UPDATE
// only applies if the version is unchanged. The history entry is inserted
// in the same transaction, so an accepted transition always produces exactly
// one entry. A version mismatch re-runs the whole read-mutate-write cycle up
// to a small bound before a CONFLICT error surfaces.
//
// # Validation
//
// Rows are decoded into progression.Dimension and validated on every read,
// and the mutated dimension is validated again before it is written. A
// malformed row surfaces as a CONFIG_ERROR for that dimension only.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: History rows must reference a dimension
package store
