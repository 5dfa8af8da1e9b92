// Package job assembles a compiled job into models, experiments and a
// parameter registry, and runs refinements and simulations over them.
//
// Every Build call creates fresh mutable state from the immutable spec, so
// jobs built from one spec can be refined concurrently. The only shared
// structure is the reflection cache, which holds immutable lists.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/config"
	"github.com/easyscience/EasyDiffractionLib/internal/crystal"
	"github.com/easyscience/EasyDiffractionLib/internal/engine"
	"github.com/easyscience/EasyDiffractionLib/internal/experiment"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/metrics"
	"github.com/easyscience/EasyDiffractionLib/internal/param"
	"github.com/easyscience/EasyDiffractionLib/internal/pattern"
)

// Option configures how jobs are built and run.
type Option func(*settings)

type settings struct {
	cache   *pattern.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
	runIDs  engine.RunIDGenerator
	now     func() time.Time
}

// WithCache shares a reflection cache between jobs.
func WithCache(c *pattern.Cache) Option {
	return func(s *settings) { s.cache = c }
}

// WithMetrics records calculator and engine metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithRunIDGenerator replaces the UUIDv7 run ID generator.
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(s *settings) { s.runIDs = g }
}

// WithTimeSource replaces time.Now for result timestamps.
func WithTimeSource(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(cfg config.Config, opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cache == nil {
		s.cache = pattern.NewCache(cfg.CacheCapacity, s.metrics)
	}
	return s
}

// Job is one assembled refinement problem.
type Job struct {
	Name string
	// Hash is the content hash of the spec the job was built from.
	Hash        string
	Config      config.Config
	Models      []*crystal.Model
	Experiments []*experiment.Experiment
	Registry    *param.Registry

	objective *engine.PatternObjective
	calc      *pattern.Calculator
	settings  settings
}

// Build validates spec and assembles a job. cfg supplies defaults that the
// spec's refine settings override.
//
// Errors: *ir.InvalidExperimentDataError for malformed observed arrays,
// *ir.ModelValidationError for invalid models, instruments or parameter
// selections, *ir.ConstraintCycleError for cyclic constraints.
func Build(spec *ir.JobSpec, cfg config.Config, opts ...Option) (*Job, error) {
	if len(spec.Phases) == 0 {
		return nil, &ir.ModelValidationError{Subject: spec.Name, Message: "job has no phases"}
	}
	if len(spec.Experiments) == 0 {
		return nil, &ir.ModelValidationError{Subject: spec.Name, Message: "job has no experiments"}
	}
	for _, e := range spec.Experiments {
		if err := experiment.ValidateData(e); err != nil {
			return nil, err
		}
	}

	cfg = cfg.Merge(spec.Refine)
	if err := cfg.Validate(); err != nil {
		return nil, &ir.ModelValidationError{Subject: spec.Name, Message: err.Error()}
	}
	s := newSettings(cfg, opts)

	hash, err := ir.JobHash(spec)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", spec.Name, err)
	}

	j := &Job{
		Name:     spec.Name,
		Hash:     hash,
		Config:   cfg,
		calc:     pattern.NewCalculator(s.cache, s.metrics),
		settings: s,
	}

	models := make(map[string]*crystal.Model, len(spec.Phases))
	b := param.NewBuilder().WithBoundMode(cfg.BoundMode)
	for _, ps := range spec.Phases {
		if _, dup := models[ps.ID]; dup {
			return nil, &ir.ModelValidationError{Subject: ps.ID, Message: "duplicate phase id"}
		}
		m, err := crystal.FromSpec(ps)
		if err != nil {
			return nil, err
		}
		models[ps.ID] = m
		j.Models = append(j.Models, m)
		b.Add(m)
	}

	seen := make(map[string]bool, len(spec.Experiments))
	for _, es := range spec.Experiments {
		if seen[es.ID] {
			return nil, &ir.ModelValidationError{Subject: es.ID, Message: "duplicate experiment id"}
		}
		seen[es.ID] = true
		if es.Instrument.PeakCutoff == 0 {
			es.Instrument.PeakCutoff = cfg.PeakCutoff
		}
		e, err := experiment.New(es)
		if err != nil {
			return nil, err
		}
		j.Experiments = append(j.Experiments, e)
		b.Add(e)
	}

	for _, c := range spec.Refine.Constraints {
		b.Constrain(c.Target, c.Expr)
	}
	for _, p := range spec.Refine.Params {
		b.Free(p.Key, p.Min, p.Max)
	}
	reg, err := b.Build()
	if err != nil {
		return nil, err
	}
	j.Registry = reg

	j.objective, err = engine.NewPatternObjective(j.calc, cfg.Weighting, j.Experiments, models)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("job built",
		"job", j.Name,
		"hash", j.Hash[:12],
		"parameters", reg.Len(),
		"free", len(reg.FreeKeys()),
		"points", j.objective.Points(),
	)
	return j, nil
}

// Refine runs the optimizer over the job's free parameters. See
// engine.Refiner.Refine for the result and error contract.
func (j *Job) Refine(ctx context.Context) (*analysis.Result, error) {
	return j.refiner().Refine(ctx, j.Registry, j.objective)
}

func (j *Job) refiner() *engine.Refiner {
	cfg, s := j.Config, j.settings
	opts := []engine.Option{
		engine.WithMaxIterations(cfg.MaxIterations),
		engine.WithTolerance(cfg.Tolerance),
		engine.WithPatience(cfg.Patience),
		engine.WithInitialDamping(cfg.InitialDamping),
		engine.WithSingularRetries(cfg.SingularRetries),
		engine.WithMetrics(s.metrics),
		engine.WithLogger(s.logger.With("job", j.Name)),
	}
	if s.runIDs != nil {
		opts = append(opts, engine.WithRunIDGenerator(s.runIDs))
	}
	if s.now != nil {
		opts = append(opts, engine.WithTimeSource(s.now))
	}
	return engine.New(opts...)
}

// Stats evaluates the fit statistics at the current parameter values.
func (j *Job) Stats() (analysis.Stats, error) {
	return j.objective.Fit(len(j.Registry.FreeKeys()))
}
