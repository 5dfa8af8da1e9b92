// Package crystal models crystal structures: unit cells, space-group
// symmetry, atom sites, scattering data and structure factors.
//
// A Model owns its parameters. Symmetry expansion is cached against the
// current fractional coordinates and recomputed when any coordinate
// changes. Structure factors are pure functions of the current values.
//
// The space-group table is a fixed, read-only set of common groups built
// once from generator operators.
package crystal
