package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/engine"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/job"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult is the JSON payload of the replay command.
type ReplayResult struct {
	RunID         string   `json:"run_id"`
	Job           string   `json:"job"`
	JobHash       string   `json:"job_hash"`
	Status        string   `json:"status"`
	Iterations    int      `json:"iterations"`
	Deterministic bool     `json:"deterministic"`
	Differences   []string `json:"differences,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <run-id> <jobs-path>",
		Short: "Re-run a stored refinement and verify determinism",
		Long: `Re-run the job of a stored refinement and compare the outcome with the
stored run: status, iteration count, every iteration's objective and the
final parameter values must match exactly.

The job is looked up by name in the jobs path and must have the same
content hash as when the run was stored.

Exit codes:
  0 - The replay reproduced the stored run
  1 - The replay differs, or the job has changed since the run
  2 - Command error (database or run not found, unreadable jobs)

Examples:
  easydiffraction replay 0192f0c4-7d1e-7a53-9a31-3c1f2b6d8e90 ./jobs
  easydiffraction replay 0192f0c4-7d1e-7a53-9a31-3c1f2b6d8e90 ./jobs --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (default from config)")

	return cmd
}

func runReplay(opts *ReplayOptions, runID, jobsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openHistory(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	stored, err := loadStoredRun(formatter, st, runID)
	if err != nil {
		return err
	}

	specs, err := loadJobs(formatter, jobsPath, []string{stored.JobName})
	if err != nil {
		return err
	}
	spec := specs[0]

	result := ReplayResult{
		RunID:   runID,
		Job:     stored.JobName,
		JobHash: stored.JobHash,
	}

	hash, err := ir.JobHash(spec)
	if err != nil {
		return buildFailure(formatter, spec.Name, err)
	}
	if hash != stored.JobHash {
		result.Differences = []string{fmt.Sprintf("job hash: stored %s, now %s", shortHash(stored.JobHash), shortHash(hash))}
		return outputReplay(formatter, result)
	}

	j, err := job.Build(spec, opts.runtimeConfig(),
		job.WithLogger(opts.logger()),
		job.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
	)
	if err != nil {
		return buildFailure(formatter, spec.Name, err)
	}
	ctx, stop := signalContext(cmd.Context(), opts.logger())
	defer stop()

	replayed, _ := j.Refine(ctx)
	result.Status = string(replayed.Status())
	result.Iterations = replayed.Iterations()
	result.Differences = compareRuns(stored.Result, replayed)
	return outputReplay(formatter, result)
}

// compareRuns lists every difference between a stored and a replayed
// result. Floats are compared bit for bit.
func compareRuns(stored, replayed *analysis.Result) []string {
	var diffs []string
	if stored.Status() != replayed.Status() {
		diffs = append(diffs, fmt.Sprintf("status: stored %s, replayed %s", stored.Status(), replayed.Status()))
	}
	sh, rh := stored.History(), replayed.History()
	if len(sh) != len(rh) {
		diffs = append(diffs, fmt.Sprintf("iterations: stored %d, replayed %d", len(sh), len(rh)))
	}
	for i := range min(len(sh), len(rh)) {
		if !sameBits(sh[i].Objective, rh[i].Objective) || sh[i].Accepted != rh[i].Accepted {
			diffs = append(diffs, fmt.Sprintf("iteration %d: stored objective %g (accepted %t), replayed %g (accepted %t)",
				sh[i].Iteration, sh[i].Objective, sh[i].Accepted, rh[i].Objective, rh[i].Accepted))
			break
		}
	}
	for _, sp := range stored.Parameters() {
		rp, ok := replayed.Parameter(sp.Key)
		switch {
		case !ok:
			diffs = append(diffs, fmt.Sprintf("parameter %s: missing from replay", sp.Key))
		case !sameBits(sp.Value, rp.Value):
			diffs = append(diffs, fmt.Sprintf("parameter %s: stored %.17g, replayed %.17g", sp.Key, sp.Value, rp.Value))
		}
	}
	if !sameBits(stored.Stats().ChiSquare, replayed.Stats().ChiSquare) {
		diffs = append(diffs, fmt.Sprintf("χ²: stored %.17g, replayed %.17g", stored.Stats().ChiSquare, replayed.Stats().ChiSquare))
	}
	return diffs
}

// sameBits reports whether a and b are identical; any two NaNs match since
// the store does not keep NaN payloads.
func sameBits(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

func outputReplay(formatter *OutputFormatter, result ReplayResult) error {
	result.Deterministic = len(result.Differences) == 0

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Deterministic {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "REPLAY_MISMATCH", Message: result.Differences[0]}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		if result.Deterministic {
			fmt.Fprintf(w, "✓ Run %s reproduced: %s after %d iteration(s)\n", result.RunID, result.Status, result.Iterations)
		} else {
			fmt.Fprintf(w, "✗ Run %s not reproduced\n\n", result.RunID)
			for _, d := range result.Differences {
				fmt.Fprintf(w, "  %s\n", d)
			}
		}
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, fmt.Sprintf("replay of %s differs from stored run", result.RunID))
	}
	return nil
}
