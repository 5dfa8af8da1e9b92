package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Job      string
	Hash     string
	Status   string
	MaxChi2  float64
	Since    time.Duration
	Limit    int
}

// HistoryResult is the JSON payload of the history command.
type HistoryResult struct {
	Runs []RunView `json:"runs"`
}

var validStatuses = []analysis.Status{
	analysis.StatusConverged,
	analysis.StatusMaxIterations,
	analysis.StatusFailed,
	analysis.StatusCancelled,
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored refinement runs",
		Long: `List refinement runs from the history database, newest first.

Examples:
  easydiffraction history
  easydiffraction history --job lbco --status converged
  easydiffraction history --max-chi2 2 --since 24h --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (default from config)")
	cmd.Flags().StringVar(&opts.Job, "job", "", "only runs of this job")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "only runs of this job content hash")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only runs with this status (converged|max_iterations|failed|cancelled)")
	cmd.Flags().Float64Var(&opts.MaxChi2, "max-chi2", 0, "only runs with reduced χ² at or below this")
	cmd.Flags().DurationVar(&opts.Since, "since", 0, "only runs started within this duration")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	status := analysis.Status(opts.Status)
	if status != "" && !slices.Contains(validStatuses, status) {
		_ = formatter.Error("E001", fmt.Sprintf("unknown status %q", opts.Status), nil)
		return NewExitError(ExitCommandError, "invalid status filter")
	}
	if opts.Limit < 0 {
		_ = formatter.Error("E001", "limit must not be negative", nil)
		return NewExitError(ExitCommandError, "invalid limit")
	}

	st, err := openHistory(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.RunFilter{
		JobName:             opts.Job,
		JobHash:             opts.Hash,
		Status:              status,
		MaxReducedChiSquare: opts.MaxChi2,
		Limit:               opts.Limit,
	}
	if opts.Since > 0 {
		filter.Since = time.Now().Add(-opts.Since)
	}

	summaries, err := st.ListRuns(context.Background(), filter)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	result := HistoryResult{Runs: make([]RunView, len(summaries))}
	for i, s := range summaries {
		result.Runs[i] = summaryView(s)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result.Runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}
	for _, run := range result.Runs {
		fmt.Fprintf(w, "%s %s  %-14s %-16s %4d it  χ²ᵣ %s  %s\n",
			statusMark(run.Status), run.RunID, run.Job, run.Status, run.Iterations,
			formatFloat(float64(run.Stats.ReducedChiSquare), "%.4g"),
			run.Started.Format(time.RFC3339))
	}
	return nil
}

// openHistory opens the history database, defaulting to the configured
// path.
func openHistory(formatter *OutputFormatter, opts *RootOptions, path string) (*store.Store, error) {
	if path == "" {
		path = opts.runtimeConfig().DBPath
	}
	st, err := store.Open(path)
	if err != nil {
		_ = formatter.Error("E007", fmt.Sprintf("opening database %s: %v", path, err), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
