// Package pattern computes simulated powder patterns.
//
// The Calculator is a pure function of its inputs: identical parameter
// values and grid always give bit-identical output. Reflection lists depend
// only on the space group, the cell and the visible d-spacing window, so
// they are shared through a bounded Cache keyed by the canonical hash of
// those values.
package pattern
