package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/testutil"
)

func TestOpenAppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.SaveRun(ctx, Run{JobName: "cubic", JobHash: "h", Result: createTestResult("run-1", analysis.StatusConverged, 0, 1.1)})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	runs, err := s2.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1, "reopening keeps existing runs")
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer")
}

func TestCloseNilDB(t *testing.T) {
	var s Store
	assert.NoError(t, s.Close())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := createTestResult("run-1", analysis.StatusConverged, 0, 1.1)

	inserted, err := s.SaveRun(ctx, Run{JobName: "cubic", JobHash: "abc", Result: res})
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := s.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "cubic", got.JobName)
	assert.Equal(t, "abc", got.JobHash)
	assert.Empty(t, got.Error)

	r := got.Result
	assert.Equal(t, "run-1", r.RunID())
	assert.Equal(t, analysis.StatusConverged, r.Status())
	assert.Equal(t, res.FreeKeys(), r.FreeKeys())
	assert.True(t, res.Started().Equal(r.Started()))
	assert.True(t, res.Finished().Equal(r.Finished()))
	assert.Equal(t, res.Stats(), r.Stats())
	assert.Equal(t, res.Parameters(), r.Parameters())

	hist := r.History()
	require.Len(t, hist, 2)
	assert.Equal(t, res.History()[0], hist[0])
	assert.True(t, math.IsNaN(hist[1].Objective), "non-finite objective comes back as NaN")
	assert.True(t, math.IsNaN(hist[1].ReducedChiSquare))
	assert.False(t, hist[1].Accepted)
	assert.Equal(t, []float64{5.3, 0.8}, hist[1].Values)
}

func TestSaveKeepsNaNStatistics(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := createTestResult("run-nan", analysis.StatusFailed, 0, math.NaN())

	_, err := s.SaveRun(ctx, Run{JobName: "cubic", Error: "NUMERICAL_DIVERGENCE: boom", Result: res})
	require.NoError(t, err)

	got, err := s.LoadRun(ctx, "run-nan")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.Result.Stats().ReducedChiSquare))
	assert.Equal(t, "NUMERICAL_DIVERGENCE: boom", got.Error)
}

func TestSaveRunIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := createTestResult("run-1", analysis.StatusConverged, 0, 1.1)

	inserted, err := s.SaveRun(ctx, Run{JobName: "first", Result: res})
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.SaveRun(ctx, Run{JobName: "second", Result: res})
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.JobName, "existing run is not overwritten")
	assert.Len(t, got.Result.History(), 2, "history is not duplicated")
}

func TestSaveRunNilResult(t *testing.T) {
	s := createTestStore(t)
	_, err := s.SaveRun(context.Background(), Run{JobName: "x"})
	assert.Error(t, err)
}

func TestLoadRunNotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.LoadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsFilters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	save := func(id, job, hash string, status analysis.Status, offset int, chi2 float64) {
		t.Helper()
		_, err := s.SaveRun(ctx, Run{JobName: job, JobHash: hash, Result: createTestResult(id, status, offset, chi2)})
		require.NoError(t, err)
	}
	save("run-a", "cubic", "h1", analysis.StatusConverged, 0, 1.0)
	save("run-b", "cubic", "h1", analysis.StatusMaxIterations, 10, 3.5)
	save("run-c", "lbco", "h2", analysis.StatusConverged, 20, 1.2)
	save("run-d", "lbco", "h2", analysis.StatusFailed, 30, math.NaN())

	ids := func(f RunFilter) []string {
		t.Helper()
		runs, err := s.ListRuns(ctx, f)
		require.NoError(t, err)
		out := make([]string, len(runs))
		for i, r := range runs {
			out[i] = r.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{"all newest first", RunFilter{}, []string{"run-d", "run-c", "run-b", "run-a"}},
		{"by job", RunFilter{JobName: "cubic"}, []string{"run-b", "run-a"}},
		{"by hash", RunFilter{JobHash: "h2"}, []string{"run-d", "run-c"}},
		{"by status", RunFilter{Status: analysis.StatusConverged}, []string{"run-c", "run-a"}},
		{"by fit", RunFilter{MaxReducedChiSquare: 1.5}, []string{"run-c", "run-a"}},
		{"since", RunFilter{Since: testutil.Epoch.Add(15 * time.Second)}, []string{"run-d", "run-c"}},
		{"limit", RunFilter{Limit: 2}, []string{"run-d", "run-c"}},
		{"combined", RunFilter{JobName: "lbco", Status: analysis.StatusConverged}, []string{"run-c"}},
		{"no match", RunFilter{JobName: "ghost"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(tt.filter))
		})
	}
}

func TestListRunsTieBreaksByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"run-z", "run-m", "run-a"} {
		_, err := s.SaveRun(ctx, Run{JobName: "same", Result: createTestResult(id, analysis.StatusConverged, 0, 1)})
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-a", runs[0].ID)
	assert.Equal(t, "run-m", runs[1].ID)
	assert.Equal(t, "run-z", runs[2].ID)
}

func TestListRunsSummaryFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := createTestResult("run-1", analysis.StatusConverged, 5, 1.1)
	_, err := s.SaveRun(ctx, Run{JobName: "cubic", JobHash: "abc", Result: res})
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	sum := runs[0]
	assert.Equal(t, "cubic", sum.JobName)
	assert.Equal(t, analysis.StatusConverged, sum.Status)
	assert.Equal(t, 2, sum.Iterations)
	assert.Equal(t, res.FreeKeys(), sum.FreeKeys)
	assert.Equal(t, res.Stats(), sum.Stats)
	assert.True(t, testutil.Epoch.Add(5*time.Second).Equal(sum.Started))
}
