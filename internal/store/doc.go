// Package store provides SQLite-backed durable storage for optimization runs.
//
// Two tables make up the log:
//   - runs: one row per optimization run with its node, parameters and outcome
//   - run_steps: the per-iteration loss history of a run
//
// Runs are ordered by seq, the logical clock value the engine assigned when
// the job was submitted. Timestamps are recorded for display only.
//
// Parameters are stored as canonical JSON (see ir.MarshalCanonical) next to
// their content hash, so runs with identical settings can be grouped.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
