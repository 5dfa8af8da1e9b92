// Package engine implements the refinement engine: a damped nonlinear
// least-squares (Levenberg–Marquardt) loop over the free parameters of a
// registry.
//
// ARCHITECTURE:
//
// Single Sequential Loop:
// One refinement is one goroutine. Every iteration reads the free vector,
// evaluates the objective through the pattern calculator, and either
// accepts the trial (parameters stay mutated) or restores the last accepted
// snapshot. Independent jobs run in parallel one level up, each with its
// own registry.
//
// Iteration Flow:
// 1. Jacobian of the residual vector by forward differences
// 2. Normal equations (JᵀJ + λ·diag(JᵀJ))δ = −Jᵀr solved by Cholesky
// 3. Trial vector applied through the registry (bounds enforced there)
// 4. Objective compared with the last accepted value
// 5. Pure transition functions decide the next State
//
// The loop records every trial in an analysis.Recorder, accepted or not.
//
// Determinism:
// The Jacobian steps, the evaluation order and the damping schedule are
// fixed. Two runs on identical inputs produce identical histories.
package engine
