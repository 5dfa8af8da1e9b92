package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Summary renders the deterministic part of a scenario result: the run
// identity, status and free-parameter values rounded to two decimals.
// Iteration counts and fit statistics are left out since they move with
// any change to the optimizer's numerics.
func Summary(scenarioName string, result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)
	fmt.Fprintf(&buf, "job: %s\n", result.Job)
	fmt.Fprintf(&buf, "run_id: %s\n", result.RunID)
	fmt.Fprintf(&buf, "status: %s\n", result.Status)
	if result.Refined != nil {
		fmt.Fprintf(&buf, "points: %d\n", result.Refined.Stats().N)
		buf.WriteString("free:\n")
		for _, p := range result.Refined.Parameters() {
			if p.Free {
				fmt.Fprintf(&buf, "  %s = %.2f\n", p.Key, p.Value)
			}
		}
	}
	if result.RefineError != "" {
		fmt.Fprintf(&buf, "error: %s\n", result.RefineError)
	}
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares its summary against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the summary doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's summary against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Summary(scenarioName, result))
}
