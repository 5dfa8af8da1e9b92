package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/metrics"
	"github.com/easyscience/EasyDiffractionLib/internal/param"
)

// Refiner runs Levenberg–Marquardt refinements.
//
// A Refiner holds configuration only and may be shared between goroutines;
// each Refine call works on its own registry and objective.
type Refiner struct {
	limits  Limits
	damping float64
	metrics *metrics.Metrics
	logger  *slog.Logger
	runIDs  RunIDGenerator
	now     func() time.Time
}

// New creates a Refiner with defaults overridden by opts.
func New(opts ...Option) *Refiner {
	r := &Refiner{
		limits: Limits{
			MaxIterations:   DefaultMaxIterations,
			Tolerance:       DefaultTolerance,
			Patience:        DefaultPatience,
			SingularRetries: DefaultSingularRetries,
		},
		damping: DefaultInitialDamping,
		runIDs:  UUIDv7Generator{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Limits returns the configured stopping thresholds.
func (r *Refiner) Limits() Limits { return r.limits }

// run is the mutable state of one Refine call.
type run struct {
	reg   *param.Registry
	obj   Objective
	clock *Clock
	rec   *analysis.Recorder
	log   *slog.Logger

	x        []float64
	res      []float64
	chi2     float64
	accepted param.Snapshot

	// normal is JᵀJ at x; nil after an accepted step until recomputed.
	normal   *mat.SymDense
	gradient *mat.VecDense
}

// Refine minimizes obj over the free parameters of reg.
//
// The returned Result is never nil. On success the registry holds the
// last accepted values with uncertainties set when they could be
// computed. Convergence failure is reported through Result.Status, not
// the error. A non-nil error comes with status failed: a non-finite
// residual or Jacobian entry (*ir.NumericalDivergenceError) or a model
// that could not be evaluated. Registry values are restored to the last
// accepted point in every case.
func (r *Refiner) Refine(ctx context.Context, reg *param.Registry, obj Objective) (*analysis.Result, error) {
	started := r.now()
	runID := r.runIDs.Generate()
	ru := &run{
		reg:      reg,
		obj:      obj,
		clock:    NewClock(),
		rec:      analysis.NewRecorder(runID, reg.FreeKeys(), started),
		log:      r.logger.With("run_id", runID),
		x:        reg.Vector(),
		accepted: reg.Snapshot(),
	}
	ru.log.Info("refinement started", "free", len(ru.x), "points", obj.Points())

	state, err := r.loop(ctx, ru)
	reg.Restore(ru.accepted)

	if state == StateConverged || state == StateMaxIterationsReached {
		r.uncertainties(ru)
	} else {
		reg.SetUncertainties(nil)
	}

	fit, fitErr := obj.Fit(len(ru.x))
	if fitErr != nil && err == nil {
		state, err = StateFailed, fmt.Errorf("final statistics: %w", fitErr)
	}

	finished := r.now()
	result := ru.rec.Finalize(state.Status(), paramValues(reg), fit, finished)
	r.metrics.RecordRefinement(string(result.Status()), finished.Sub(started))

	attrs := []any{
		"status", result.Status(),
		"iterations", result.Iterations(),
		"evaluations", ru.clock.Current(),
		"objective", ru.chi2,
	}
	if err != nil {
		ru.log.Warn("refinement failed", append(attrs, "error", err)...)
	} else {
		ru.log.Info("refinement finished", append(attrs, "reduced_chi_square", fit.ReducedChiSquare)...)
	}
	return result, err
}

// loop drives the state machine until a terminal state.
func (r *Refiner) loop(ctx context.Context, ru *run) (State, error) {
	res, err := ru.residuals(0)
	if err != nil {
		return StateFailed, err
	}
	ru.res, ru.chi2 = res, sumSquares(res)

	state := Start(ru.chi2, false)
	if len(ru.x) == 0 && state == StateEvaluating {
		state = StateConverged
	}
	p := Progress{Damping: r.damping}

	for !state.Terminal() {
		if ctx.Err() != nil {
			ru.log.Info("refinement cancelled", "iteration", p.Iteration, "error", ctx.Err())
			return Cancel(state), nil
		}

		if ru.normal == nil {
			if err := ru.linearize(p.Iteration + 1); err != nil {
				return StateFailed, err
			}
		}

		lambda := p.Damping
		delta, ok := solveStep(ru.normal, ru.gradient, lambda)
		if !ok {
			state, p = AfterTrial(p, Trial{Singular: true}, r.limits)
			ru.log.Debug("singular step", "damping", lambda, "retries", p.Singular)
			continue
		}

		trial := make([]float64, len(ru.x))
		floats.AddTo(trial, ru.x, delta)
		stored, err := ru.reg.Apply(trial)
		if err != nil {
			return StateFailed, err
		}
		res, err := ru.residuals(p.Iteration + 1)
		if err != nil {
			ru.reg.Restore(ru.accepted)
			return StateFailed, err
		}
		chi2 := sumSquares(res)

		step := make([]float64, len(stored))
		floats.SubTo(step, stored, ru.x)
		state, p = AfterTrial(p, Trial{
			Previous:  ru.chi2,
			Objective: chi2,
			StepNorm:  floats.Norm(step, 2),
			ParamNorm: floats.Norm(ru.x, 2),
		}, r.limits)

		accepted := state == StateStepAccepted
		ru.rec.Add(analysis.Record{
			Iteration:        p.Iteration,
			Values:           stored,
			Objective:        chi2,
			ReducedChiSquare: reduced(chi2, ru.obj.Points(), len(ru.x)),
			Accepted:         accepted,
			Damping:          lambda,
		})
		r.metrics.RecordIteration(accepted)
		ru.log.Debug("iteration",
			"iteration", p.Iteration,
			"objective", chi2,
			"accepted", accepted,
			"damping", lambda,
			"stall", p.Stall,
		)

		if accepted {
			ru.x, ru.res, ru.chi2 = stored, res, chi2
			ru.accepted = ru.reg.Snapshot()
			ru.normal, ru.gradient = nil, nil
		} else {
			ru.reg.Restore(ru.accepted)
		}
		state = Next(p, ru.chi2, r.limits)
	}
	return state, nil
}

// linearize computes the Jacobian and the normal equations at ru.x.
func (ru *run) linearize(iteration int) error {
	jac, err := ru.jacobian(ru.x, ru.res, iteration)
	if err != nil {
		return err
	}
	ru.normal, ru.gradient = normalEquations(jac, ru.res)
	return nil
}

// uncertainties sets σ_i = √(diag((JᵀWJ)⁻¹)_i · χ²_red) at the accepted
// point, or clears them when N ≤ P or the normal matrix is singular.
func (r *Refiner) uncertainties(ru *run) {
	n, p := ru.obj.Points(), len(ru.x)
	if p == 0 {
		return
	}
	if n <= p {
		ru.reg.SetUncertainties(nil)
		return
	}
	if ru.normal == nil {
		if err := ru.linearize(ru.rec.Len()); err != nil {
			ru.log.Warn("uncertainties skipped", "error", err)
			ru.reg.SetUncertainties(nil)
			return
		}
	}
	diag, ok := covarianceDiagonal(ru.normal)
	if !ok {
		ru.log.Warn("uncertainties skipped", "error", "normal matrix is singular")
		ru.reg.SetUncertainties(nil)
		return
	}
	redChi2 := ru.chi2 / float64(n-p)
	sigmas := make([]float64, p)
	for i, d := range diag {
		sigmas[i] = math.Sqrt(d * redChi2)
	}
	ru.reg.SetUncertainties(sigmas)
}

func paramValues(reg *param.Registry) []analysis.ParamValue {
	params := reg.Parameters()
	out := make([]analysis.ParamValue, len(params))
	for i, p := range params {
		out[i] = analysis.ParamValue{
			Key:            p.Key,
			Value:          p.Value,
			Uncertainty:    p.Uncertainty,
			HasUncertainty: p.HasUncertainty,
			Free:           p.Free,
			Units:          p.Units,
		}
	}
	return out
}

func sumSquares(res []float64) float64 {
	return floats.Dot(res, res)
}

func reduced(chi2 float64, n, p int) float64 {
	if n <= p {
		return math.NaN()
	}
	return chi2 / float64(n-p)
}
