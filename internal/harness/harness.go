package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/easyscience/EasyDiffractionLib/internal/compiler"
	"github.com/easyscience/EasyDiffractionLib/internal/config"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/job"
	"github.com/easyscience/EasyDiffractionLib/internal/store"
	"github.com/easyscience/EasyDiffractionLib/internal/testutil"
)

// Harness runs scenarios with a deterministic clock and run ID.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	runIDs *testutil.FixedRunIDGenerator
	cfg    config.Config
	logger *slog.Logger
}

// Run executes a scenario with the default configuration.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithConfig(context.Background(), scenario, config.Defaults())
}

// RunWithConfig executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Load and compile the job from its CUE source
//  2. Synthesize observed data when requested
//  3. Validate, build and refine the job
//  4. Save the run and read it back
//  5. Evaluate assertions against both copies
//
// A failed refinement is reported through Result.Status and
// Result.RefineError so scenarios can assert on it. Errors before the
// refinement starts are returned.
func RunWithConfig(ctx context.Context, scenario *Scenario, cfg config.Config) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		runIDs: testutil.NewFixedRunIDGenerator(scenario.RunID),
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	spec, err := loadJob(scenario)
	if err != nil {
		return nil, err
	}

	if scenario.Synthesize != nil {
		if spec, err = h.synthesize(spec, scenario.Synthesize); err != nil {
			return nil, fmt.Errorf("failed to synthesize data: %w", err)
		}
	}

	if verrs := compiler.Validate(spec); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return nil, fmt.Errorf("job %q is invalid: %w", spec.Name, errors.Join(errs...))
	}

	j, err := job.Build(spec, cfg,
		job.WithLogger(h.logger),
		job.WithRunIDGenerator(h.runIDs),
		job.WithTimeSource(h.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build job %q: %w", spec.Name, err)
	}

	result := NewResult()
	result.Job = j.Name

	refined, refineErr := j.Refine(ctx)
	result.Refined = refined
	result.RunID = refined.RunID()
	result.Status = refined.Status()
	if refineErr != nil {
		result.RefineError = refineErr.Error()
	}

	run := store.Run{JobName: j.Name, JobHash: j.Hash, Result: refined}
	if refineErr != nil {
		run.Error = refineErr.Error()
	}
	// A cancelled refinement is still stored.
	saveCtx := context.WithoutCancel(ctx)
	if _, err := st.SaveRun(saveCtx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	stored, err := st.LoadRun(saveCtx, refined.RunID())
	if err != nil {
		return nil, fmt.Errorf("failed to read run back: %w", err)
	}
	result.Stored = stored.Result

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"job", result.Job,
		"status", result.Status,
		"pass", result.Pass,
	)
	return result, nil
}

// loadJob compiles the scenario's CUE source and selects its job.
func loadJob(scenario *Scenario) (*ir.JobSpec, error) {
	// Synthesized scenarios never read observed data, but the loader
	// still resolves any data_file the job names.
	loaded, errs := compiler.LoadJobs(scenario.Job, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load job source %s: %w", scenario.Job, errors.Join(errs...))
	}

	if scenario.JobName == "" {
		if len(loaded.Jobs) != 1 {
			return nil, fmt.Errorf("job source defines %d jobs; set job_name", len(loaded.Jobs))
		}
		return loaded.Jobs[0], nil
	}
	spec, ok := loaded.Job(scenario.JobName)
	if !ok {
		return nil, fmt.Errorf("job %q not found in %s", scenario.JobName, scenario.Job)
	}
	return spec, nil
}

// synthesize returns a copy of spec whose experiments observe the pattern
// calculated at the truth values.
//
// Noise is drawn per experiment from seed+i so adding an experiment does
// not change the noise of the others.
func (h *Harness) synthesize(spec *ir.JobSpec, syn *Synthesis) (*ir.JobSpec, error) {
	grid := testutil.Grid(syn.Start, syn.Stop, syn.Step)

	truth := *spec
	truth.Experiments = slices.Clone(spec.Experiments)
	for i := range truth.Experiments {
		e := &truth.Experiments[i]
		e.DataFile = ""
		e.X = slices.Clone(grid)
		e.Y = make([]float64, len(grid))
		e.Sigma = testutil.Constant(len(grid), 1)
	}

	truthJob, err := job.Build(&truth, h.cfg, job.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	for _, key := range slices.Sorted(maps.Keys(syn.Truth)) {
		p, ok := truthJob.Registry.Get(key)
		if !ok {
			return nil, fmt.Errorf("unknown truth parameter %q", key)
		}
		if p.Constrained() {
			return nil, fmt.Errorf("truth parameter %q is constrained", key)
		}
		p.Set(syn.Truth[key])
	}
	truthJob.Registry.Resolve()

	sims, err := truthJob.Simulate()
	if err != nil {
		return nil, err
	}

	out := truth
	out.Experiments = slices.Clone(truth.Experiments)
	for i, sim := range sims {
		y := sim.Calculated
		sigma := testutil.Constant(len(y), 1)
		if syn.Noise > 0 {
			s := syn.Noise * testutil.MaxOf(y)
			y = testutil.AddNoise(y, s, syn.Seed+uint64(i))
			sigma = testutil.Constant(len(y), s)
		}
		out.Experiments[i].Y = y
		out.Experiments[i].Sigma = sigma
	}

	h.logger.Debug("synthesized data",
		"job", spec.Name,
		"points", len(grid),
		"experiments", len(sims),
	)
	return &out, nil
}
