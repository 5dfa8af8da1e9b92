package engine

import (
	"log/slog"
	"time"

	"github.com/easyscience/EasyDiffractionLib/internal/metrics"
)

// Defaults for a Refiner built without options.
const (
	DefaultMaxIterations   = 100
	DefaultTolerance       = 1e-8
	DefaultPatience        = 3
	DefaultInitialDamping  = 1e-3
	DefaultSingularRetries = 5
)

// Option configures a Refiner.
type Option func(*Refiner)

// WithMaxIterations caps the number of trial steps. Every trial counts,
// accepted or not.
func WithMaxIterations(n int) Option {
	return func(r *Refiner) {
		r.limits.MaxIterations = n
	}
}

// WithTolerance sets the relative objective improvement below which an
// iteration counts as stalled.
func WithTolerance(tol float64) Option {
	return func(r *Refiner) {
		r.limits.Tolerance = tol
	}
}

// WithPatience sets how many consecutive stalled iterations mean converged.
func WithPatience(n int) Option {
	return func(r *Refiner) {
		r.limits.Patience = n
	}
}

// WithInitialDamping sets the starting Levenberg–Marquardt λ.
func WithInitialDamping(lambda float64) Option {
	return func(r *Refiner) {
		r.damping = lambda
	}
}

// WithSingularRetries sets how many consecutive singular solves are
// retried with higher damping before the run fails.
func WithSingularRetries(n int) Option {
	return func(r *Refiner) {
		r.limits.SingularRetries = n
	}
}

// WithMetrics records iterations and run outcomes. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Refiner) {
		r.metrics = m
	}
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Refiner) {
		r.logger = l
	}
}

// WithRunIDGenerator replaces the UUIDv7 generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Refiner) {
		r.runIDs = g
	}
}

// WithTimeSource replaces time.Now for the started and finished stamps.
func WithTimeSource(now func() time.Time) Option {
	return func(r *Refiner) {
		r.now = now
	}
}
