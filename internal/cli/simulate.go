package cli

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/job"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Job    string  // job name when the source defines several
	Output string  // file for the calculated columns
	Start  float64 // grid start; with Stop and Step replaces observed x
	Stop   float64
	Step   float64
}

// SimulationResult is the JSON payload of the simulate command.
type SimulationResult struct {
	Job         string                 `json:"job"`
	Experiments []ExperimentSimulation `json:"experiments"`
}

// ExperimentSimulation is one calculated pattern.
type ExperimentSimulation struct {
	ID         string         `json:"id"`
	X          []Float        `json:"x"`
	Observed   []Float        `json:"observed,omitempty"`
	Calculated []Float        `json:"calculated"`
	Background []Float        `json:"background"`
	Peaks      []PeakPosition `json:"peaks"`
}

// PeakPosition is one reflection inside the pattern range.
type PeakPosition struct {
	Phase     string `json:"phase"`
	H         int    `json:"h"`
	K         int    `json:"k"`
	L         int    `json:"l"`
	TwoTheta  Float  `json:"two_theta"`
	D         Float  `json:"d"`
	FWHM      Float  `json:"fwhm"`
	Intensity Float  `json:"intensity"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <jobs-path>",
		Short: "Calculate patterns without refining",
		Long: `Calculate the diffraction pattern of every experiment of a job at its
current parameter values, without refining.

By default the pattern is calculated at the observed x values. With
--start, --stop and --step a regular 2θ grid is used instead, so jobs
without observed data can be simulated.

Examples:
  easydiffraction simulate ./jobs/lbco.cue
  easydiffraction simulate ./jobs --job lbco --output lbco.calc
  easydiffraction simulate ./jobs/lbco.cue --start 10 --stop 160 --step 0.05`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Job, "job", "", "job name (required when the source defines several)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write x, calculated and background columns to a file")
	cmd.Flags().Float64Var(&opts.Start, "start", 0, "grid start (2θ degrees)")
	cmd.Flags().Float64Var(&opts.Stop, "stop", 0, "grid stop (2θ degrees, inclusive)")
	cmd.Flags().Float64Var(&opts.Step, "step", 0, "grid step (2θ degrees)")

	return cmd
}

func runSimulate(opts *SimulateOptions, jobsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var only []string
	if opts.Job != "" {
		only = []string{opts.Job}
	}
	specs, err := loadJobs(formatter, jobsPath, only)
	if err != nil {
		return err
	}
	if len(specs) != 1 {
		_ = formatter.Error("E010", fmt.Sprintf("%s defines %d jobs; choose one with --job", jobsPath, len(specs)), nil)
		return NewExitError(ExitCommandError, "ambiguous job")
	}
	spec := *specs[0]

	if opts.Step != 0 || opts.Stop != 0 {
		x, err := grid(opts.Start, opts.Stop, opts.Step)
		if err != nil {
			_ = formatter.Error("E001", err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid grid", err)
		}
		spec.Experiments = slices.Clone(spec.Experiments)
		for i := range spec.Experiments {
			e := &spec.Experiments[i]
			e.X, e.Y, e.Sigma = slices.Clone(x), make([]float64, len(x)), nil
		}
	}
	// Weights play no part in a simulation; uniform weighting lets jobs
	// without uncertainties build.
	spec.Refine.Weighting = ir.WeightingUniform

	j, err := job.Build(&spec, opts.runtimeConfig(), job.WithLogger(opts.logger()))
	if err != nil {
		return buildFailure(formatter, spec.Name, err)
	}
	sims, err := j.Simulate()
	if err != nil {
		return buildFailure(formatter, spec.Name, err)
	}

	if opts.Output != "" {
		if err := writeSimulation(opts.Output, sims); err != nil {
			_ = formatter.Error("E007", err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing simulation", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(simulationResult(j.Name, sims))
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Simulated job %s\n\n", j.Name)
	for _, s := range sims {
		lo, hi := s.X[0], s.X[len(s.X)-1]
		fmt.Fprintf(w, "  %s: %d point(s) from %.3f to %.3f, %d reflection(s), max intensity %.2f\n",
			s.Experiment, len(s.X), lo, hi, len(s.Peaks), slices.Max(s.Calculated))
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote calculated patterns to %s\n", opts.Output)
	}
	return nil
}

// buildFailure reports a job that cannot be assembled or calculated,
// using the error taxonomy code as the CLI code.
func buildFailure(formatter *OutputFormatter, name string, err error) error {
	code := string(ir.CodeOf(err))
	if code == "" {
		code = "E001"
	}
	_ = formatter.Error(code, fmt.Sprintf("job %s: %v", name, err), nil)
	return WrapExitError(ExitCommandError, "job "+name, err)
}

// grid returns evenly spaced points from start to stop inclusive.
func grid(start, stop, step float64) ([]float64, error) {
	if !(step > 0) || !(stop > start) {
		return nil, fmt.Errorf("grid needs start < stop and a positive step, got %g:%g:%g", start, stop, step)
	}
	n := int(math.Round((stop-start)/step)) + 1
	x := make([]float64, n)
	for i := range x {
		x[i] = start + float64(i)*step
	}
	return x, nil
}

func simulationResult(name string, sims []job.Simulation) SimulationResult {
	res := SimulationResult{Job: name, Experiments: make([]ExperimentSimulation, len(sims))}
	for i, s := range sims {
		es := ExperimentSimulation{
			ID:         s.Experiment,
			X:          floats(s.X),
			Calculated: floats(s.Calculated),
			Background: floats(s.Background),
			Peaks:      make([]PeakPosition, len(s.Peaks)),
		}
		if slices.ContainsFunc(s.Observed, func(v float64) bool { return v != 0 }) {
			es.Observed = floats(s.Observed)
		}
		for k, p := range s.Peaks {
			es.Peaks[k] = PeakPosition{
				Phase:     p.Phase,
				H:         p.HKL[0],
				K:         p.HKL[1],
				L:         p.HKL[2],
				TwoTheta:  Float(p.TwoTheta),
				D:         Float(p.D),
				FWHM:      Float(p.FWHM),
				Intensity: Float(p.Intensity),
			}
		}
		res.Experiments[i] = es
	}
	return res
}

func floats(v []float64) []Float {
	out := make([]Float, len(v))
	for i, f := range v {
		out[i] = Float(f)
	}
	return out
}

// writeSimulation writes one "x calculated background" block per
// experiment, each headed by a comment line.
func writeSimulation(path string, sims []job.Simulation) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, s := range sims {
		fmt.Fprintf(w, "# experiment %s: x calculated background\n", s.Experiment)
		for i, x := range s.X {
			fmt.Fprintf(w, "%.4f %.6g %.6g\n", x, s.Calculated[i], s.Background[i])
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
