// Package metrics defines the Prometheus instruments of the calculation
// and refinement core.
//
// Every method is safe on a nil *Metrics, so components accept nil when
// metrics are not wanted.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "easydiffraction"

// Metrics holds all Prometheus metrics for the core.
type Metrics struct {
	// PatternEvaluations counts full pattern calculations.
	PatternEvaluations prometheus.Counter

	// ReflectionCacheLookups counts reflection-list lookups.
	// Labels: result (hit, miss)
	ReflectionCacheLookups *prometheus.CounterVec

	// ReflectionCacheEvictions counts lists dropped by the FIFO bound.
	ReflectionCacheEvictions prometheus.Counter

	// Iterations counts optimizer iterations.
	// Labels: outcome (accepted, rejected)
	Iterations *prometheus.CounterVec

	// Refinements counts finished refinements by terminal status.
	// Labels: status
	Refinements *prometheus.CounterVec

	// RefinementDuration measures wall time per refinement.
	RefinementDuration prometheus.Histogram
}

// New creates the metrics and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid global collisions.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PatternEvaluations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pattern",
			Name:      "evaluations_total",
			Help:      "Total number of pattern calculations",
		}),
		ReflectionCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reflection_cache",
			Name:      "lookups_total",
			Help:      "Reflection list lookups by result",
		}, []string{"result"}),
		ReflectionCacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reflection_cache",
			Name:      "evictions_total",
			Help:      "Reflection lists evicted from the cache",
		}),
		Iterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "iterations_total",
			Help:      "Optimizer iterations by outcome",
		}, []string{"outcome"}),
		Refinements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "runs_total",
			Help:      "Finished refinements by terminal status",
		}, []string{"status"}),
		RefinementDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "duration_seconds",
			Help:      "Wall time per refinement in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}
}

// RecordEvaluation increments the pattern evaluation counter.
func (m *Metrics) RecordEvaluation() {
	if m == nil {
		return
	}
	m.PatternEvaluations.Inc()
}

// RecordCacheLookup records a reflection cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ReflectionCacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheEviction increments the eviction counter.
func (m *Metrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.ReflectionCacheEvictions.Inc()
}

// RecordIteration records one optimizer iteration.
func (m *Metrics) RecordIteration(accepted bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.Iterations.WithLabelValues(outcome).Inc()
}

// RecordRefinement records a finished refinement.
func (m *Metrics) RecordRefinement(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Refinements.WithLabelValues(status).Inc()
	m.RefinementDuration.Observe(elapsed.Seconds())
}
