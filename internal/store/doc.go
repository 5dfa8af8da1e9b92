// Package store provides SQLite-backed durable storage for refinement
// history.
//
// Each finished refinement is written once, in a single transaction:
//   - runs: one row per refinement with status, timing and fit statistics
//   - iterations: the full step history, accepted and rejected
//   - parameters: final values and uncertainties of every parameter
//
// Runs are immutable. Saving a run ID that already exists is a no-op, so
// retrying a save is safe.
//
// # Non-finite values
//
// Reduced χ² and R_exp are NaN when there are no degrees of freedom, and a
// diverged step has a non-finite objective. These are stored as NULL and
// read back as NaN.
//
// # Deterministic ordering
//
// Every query ends with a tiebreaker on the primary key so that listing
// the same database twice yields the same order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
