package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

// writeScenarioDir writes one scenario against the harness cubic job.
func writeScenarioDir(t *testing.T, assertion string) string {
	t.Helper()
	jobPath, err := filepath.Abs("../harness/testdata/jobs/cubic.cue")
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "lattice.yaml", `name: lattice
job: `+jobPath+`
job_name: cubic
description: Lattice constant of the harness cubic job
run_id: run-cli-001
synthesize:
  start: 10
  stop: 40
  step: 0.02
  truth:
    cub.cell.length_a: 5.0
  noise: 0.01
  seed: 7
assertions:
`+assertion)
	return dir
}

func TestRunHarnessScenarios(t *testing.T) {
	out, err := run(t, NewTestCommand(&RootOptions{Format: "text"}), harnessScenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cubic_lattice")
	assert.Contains(t, out, "✓ lattice_and_scale")
	assert.Contains(t, out, "Results: 2 passed, 0 failed, 2 total")
}

func TestRunScenariosJSON(t *testing.T) {
	out, err := run(t, NewTestCommand(&RootOptions{Format: "json"}), harnessScenarios, "--filter", "cubic_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "cubic_lattice", resp.Data.Scenarios[0].Name)
}

func TestRunScenariosFailingAssertion(t *testing.T) {
	dir := writeScenarioDir(t, `  - type: parameter
    key: cub.cell.length_a
    value: 5.2
    tolerance: 0.001
`)

	out, err := run(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ lattice")
	assert.Contains(t, out, "Assertion failed: parameter")
	assert.Contains(t, out, "Results: 0 passed, 1 failed, 1 total")
}

func TestRunScenariosGoldenUpdateAndCompare(t *testing.T) {
	dir := writeScenarioDir(t, `  - type: status
    status: converged
`)
	goldenPath := filepath.Join(dir, "golden", "lattice.golden")

	_, err := run(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), "run_id: run-cli-001")
	assert.Contains(t, string(golden), "cub.cell.length_a = 5.00")

	// Unchanged run matches.
	_, err = run(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	// A tampered golden file fails the scenario.
	require.NoError(t, os.WriteFile(goldenPath, []byte("scenario: lattice\n"), 0644))
	out, err := run(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestRunScenariosMissingDirectory(t *testing.T) {
	out, err := run(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "scenarios directory not found")
}

func TestRunScenariosEmptyDirectory(t *testing.T) {
	out, err := run(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "cubic.golden"), goldenFilePath(filepath.Join("scenarios", "cubic.yaml")))
}
