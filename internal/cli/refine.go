package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/engine"
	"github.com/easyscience/EasyDiffractionLib/internal/job"
	"github.com/easyscience/EasyDiffractionLib/internal/metrics"
	"github.com/easyscience/EasyDiffractionLib/internal/store"
)

// RefineOptions holds flags for the refine command.
type RefineOptions struct {
	*RootOptions
	Jobs        []string // restrict to these job names
	Database    string   // history database; defaults to the configured db_path
	NoSave      bool
	MetricsFile string // Prometheus text dump written after the run

	// RunIDs overrides the run ID generator (tests only).
	RunIDs engine.RunIDGenerator
}

// RefineResult is the JSON payload of the refine command.
type RefineResult struct {
	Runs     []RunView `json:"runs"`
	Database string    `json:"database,omitempty"`
}

// NewRefineCommand creates the refine command.
func NewRefineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refine <jobs-path>",
		Short: "Refine jobs against their observed data",
		Long: `Refine every job under a path with Levenberg–Marquardt least squares.

Independent jobs run in parallel, up to the configured number of workers.
Each finished run is stored in the history database with its iteration
log and final parameters. Ctrl-C cancels running refinements at their next
iteration boundary; cancelled runs are stored too.

Exit code 1 means at least one job did not converge.

Examples:
  easydiffraction refine ./jobs
  easydiffraction refine ./jobs --job lbco --db runs.db
  easydiffraction refine ./jobs --no-save --format json
  easydiffraction refine ./jobs --metrics metrics.prom`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Jobs, "job", nil, "refine only this job (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (default from config)")
	cmd.Flags().BoolVar(&opts.NoSave, "no-save", false, "do not store runs")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics", "", "write Prometheus metrics to this file when done")

	return cmd
}

func runRefine(opts *RefineOptions, jobsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	cfg := opts.runtimeConfig()
	logger := opts.logger()

	specs, err := loadJobs(formatter, jobsPath, opts.Jobs)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := validationFailure(formatter, spec); err != nil {
			return err
		}
	}

	var st *store.Store
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	if !opts.NoSave {
		st, err = store.Open(dbPath)
		if err != nil {
			_ = formatter.Error("E007", fmt.Sprintf("opening database %s: %v", dbPath, err), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	jobOpts := []job.Option{
		job.WithLogger(logger),
		job.WithMetrics(metrics.New(reg)),
	}
	if opts.RunIDs != nil {
		jobOpts = append(jobOpts, job.WithRunIDGenerator(opts.RunIDs))
	}

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	logger.Info("refining", "jobs", len(specs), "workers", cfg.Workers)
	outcomes := job.RunAll(ctx, specs, cfg, jobOpts...)

	// Store with a fresh context so cancelled runs are still recorded.
	result := RefineResult{Runs: make([]RunView, 0, len(outcomes))}
	if st != nil {
		result.Database = dbPath
	}
	var failed, buildFailed int
	for _, out := range outcomes {
		if out.Result == nil {
			buildFailed++
			code, message := parseLoadError(out.Err)
			_ = formatter.Error(code, fmt.Sprintf("job %s: %s", out.Name, message), nil)
			continue
		}
		errMsg := ""
		if out.Err != nil {
			errMsg = out.Err.Error()
		}
		if out.Result.Status() != analysis.StatusConverged {
			failed++
		}
		if st != nil {
			if _, err := st.SaveRun(context.Background(), store.Run{
				JobName: out.Name,
				JobHash: out.Job.Hash,
				Error:   errMsg,
				Result:  out.Result,
			}); err != nil {
				_ = formatter.Error("E007", fmt.Sprintf("storing run %s: %v", out.Result.RunID(), err), nil)
				return WrapExitError(ExitCommandError, "failed to store run", err)
			}
		}
		result.Runs = append(result.Runs, runView(out.Name, out.Job.Hash, errMsg, out.Result, false))
	}

	if opts.MetricsFile != "" {
		if err := writeMetrics(opts.MetricsFile, reg); err != nil {
			_ = formatter.Error("E007", fmt.Sprintf("writing metrics: %v", err), nil)
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	if buildFailed > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("%d job(s) could not be built", buildFailed))
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputRefineText(formatter, result)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d job(s) did not converge", failed, len(result.Runs)))
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, or when
// parent is done.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, cancelling refinements", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func outputRefineText(formatter *OutputFormatter, result RefineResult) {
	w := formatter.Writer
	for _, run := range result.Runs {
		fmt.Fprintf(w, "%s %s: %s after %d iteration(s) [%s]\n",
			statusMark(run.Status), run.Job, run.Status, run.Iterations, run.RunID)
		writeStats(w, run.Stats)
		writeParameters(w, run.Parameters)
		if run.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", run.Error)
		}
		fmt.Fprintln(w)
	}
	if result.Database != "" {
		fmt.Fprintf(w, "Stored %d run(s) in %s\n", len(result.Runs), result.Database)
	}
}

// writeMetrics dumps every gathered family in the Prometheus text format.
func writeMetrics(path string, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
