// Package param holds refinable scalars, constraint expressions and the
// registry that maps stable keys to parameters.
//
// The registry owns the optimizer's view of a job: insertion order of free
// parameters defines the vector layout, and constrained parameters are
// recomputed in topological order after every update.
package param
