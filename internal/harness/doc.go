// Package harness runs refinement acceptance scenarios.
//
// A scenario names a CUE job, optionally replaces its observed data with a
// pattern synthesized at known parameter values, refines the job with a
// deterministic clock and run ID, saves the run to an in-memory store and
// asserts on both the refined and the stored result.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: cubic_lattice
//	description: "Recovers the lattice constant of a cubic phase"
//	job: jobs/cubic.cue
//	job_name: cubic
//	run_id: run-cubic-001
//	synthesize:
//	  start: 10
//	  stop: 40
//	  step: 0.02
//	  truth: { "cub.cell.length_a": 5.0 }
//	  noise: 0.01
//	  seed: 7
//	assertions:
//	  - type: status
//	    status: converged
//	  - type: parameter
//	    key: cub.cell.length_a
//	    value: 5.0
//	    tolerance: 0.001
//
// # Assertion Types
//
//   - status: the terminal status equals the given one
//   - parameter: a final value lies within tolerance of the expected value
//   - uncertainty: a parameter carries an uncertainty, optionally bounded
//   - reduced_chi_square: reduced χ² lies within [min, max]
//   - iterations: the run used at most count iterations
//   - stored_run: the run reads back from the store unchanged
//
// # Golden Files
//
// RunWithGolden compares a rounded text summary of the result against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
