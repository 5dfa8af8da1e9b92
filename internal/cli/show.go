package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/easyscience/EasyDiffractionLib/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database   string
	Iterations bool
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one stored refinement run",
		Long: `Show a stored run: status, fit statistics and final parameter values,
optionally with the full iteration log.

Examples:
  easydiffraction show 0192f0c4-7d1e-7a53-9a31-3c1f2b6d8e90
  easydiffraction show 0192f0c4-7d1e-7a53-9a31-3c1f2b6d8e90 --iterations`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (default from config)")
	cmd.Flags().BoolVar(&opts.Iterations, "iterations", false, "include the iteration log")

	return cmd
}

func runShow(opts *ShowOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openHistory(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := loadStoredRun(formatter, st, runID)
	if err != nil {
		return err
	}
	view := runView(run.JobName, run.JobHash, run.Error, run.Result, opts.Iterations)

	if formatter.Format == "json" {
		return formatter.Success(view)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s run %s\n", statusMark(view.Status), view.RunID)
	fmt.Fprintf(w, "  job:        %s [%s]\n", view.Job, shortHash(view.JobHash))
	fmt.Fprintf(w, "  status:     %s after %d iteration(s)\n", view.Status, view.Iterations)
	fmt.Fprintf(w, "  started:    %s\n", view.Started.Format(time.RFC3339))
	fmt.Fprintf(w, "  duration:   %s\n", view.Finished.Sub(view.Started).Round(time.Millisecond))
	if view.Error != "" {
		fmt.Fprintf(w, "  error:      %s\n", view.Error)
	}
	writeStats(w, view.Stats)
	fmt.Fprintln(w, "  parameters:")
	writeParameters(w, view.Parameters)

	if opts.Iterations {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %4s  %-12s %-10s %-10s %s\n", "iter", "objective", "χ²ᵣ", "damping", "step")
		for _, it := range view.History {
			step := "rejected"
			if it.Accepted {
				step = "accepted"
			}
			fmt.Fprintf(w, "  %4d  %-12s %-10s %-10s %s\n", it.Iteration,
				formatFloat(float64(it.Objective), "%.6g"),
				formatFloat(float64(it.ReducedChiSquare), "%.4g"),
				formatFloat(float64(it.Damping), "%.2g"),
				step)
		}
	}
	return nil
}

// loadStoredRun loads a run, reporting a missing ID as a command error.
func loadStoredRun(formatter *OutputFormatter, st *store.Store, runID string) (*store.Run, error) {
	run, err := st.LoadRun(context.Background(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error("E005", fmt.Sprintf("run %s not found", runID), nil)
		return nil, WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load run", err)
	}
	return run, nil
}

func shortHash(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
