// Package analysis records refinement progress and exposes the immutable
// outcome of a run: iteration history, final parameters with
// uncertainties, terminal status and goodness-of-fit statistics.
package analysis
