package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestResult builds a two-step result started offset seconds after
// the test epoch.
func createTestResult(runID string, status analysis.Status, offset int, reducedChi2 float64) *analysis.Result {
	started := testutil.Epoch.Add(time.Duration(offset) * time.Second)
	rec := analysis.NewRecorder(runID, []string{"cub.cell.length_a", "xrd.linked_phases.cub.scale"}, started)
	rec.Add(analysis.Record{Iteration: 1, Values: []float64{5.1, 0.9}, Objective: 40, ReducedChiSquare: 2, Accepted: true, Damping: 1e-3})
	rec.Add(analysis.Record{Iteration: 2, Values: []float64{5.3, 0.8}, Objective: math.Inf(1), ReducedChiSquare: math.NaN(), Accepted: false, Damping: 1e-4})

	params := []analysis.ParamValue{
		{Key: "cub.cell.length_a", Value: 5.1, Uncertainty: 0.002, HasUncertainty: true, Free: true, Units: "Å"},
		{Key: "cub.cell.length_b", Value: 5.1, Units: "Å"},
		{Key: "xrd.linked_phases.cub.scale", Value: 0.9, Uncertainty: 0.01, HasUncertainty: true, Free: true},
	}
	stats := analysis.Stats{ChiSquare: 40, ReducedChiSquare: reducedChi2, Rp: 0.05, Rwp: 0.07, Rexp: 0.06, N: 22, P: 2}
	return rec.Finalize(status, params, stats, started.Add(500*time.Millisecond))
}
