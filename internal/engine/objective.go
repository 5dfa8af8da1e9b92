package engine

import (
	"fmt"
	"math"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
	"github.com/easyscience/EasyDiffractionLib/internal/crystal"
	"github.com/easyscience/EasyDiffractionLib/internal/experiment"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/pattern"
)

// Objective is what the Refiner minimizes: the sum of squares of a
// residual vector that depends on the current registry values.
type Objective interface {
	// Residuals returns √w·(yobs − ycalc) for every included point.
	Residuals() ([]float64, error)
	// Points is the length of the residual vector.
	Points() int
	// Fit evaluates the fit statistics at the current values.
	Fit(nFree int) (analysis.Stats, error)
}

// dataset is one experiment with its resolved phases and weights.
type dataset struct {
	exp     *experiment.Experiment
	models  []*crystal.Model
	weights []float64
	sqrtW   []float64
	// included lists grid indices with non-zero weight.
	included []int
}

// PatternObjective sums weighted residuals over one or more experiments.
// Phases shared between experiments are evaluated once per experiment
// with that experiment's scale.
type PatternObjective struct {
	calc *pattern.Calculator
	sets []dataset
	n    int
}

// NewPatternObjective resolves experiment links against models and
// precomputes the weights for the chosen mode.
func NewPatternObjective(calc *pattern.Calculator, weighting ir.Weighting, exps []*experiment.Experiment, models map[string]*crystal.Model) (*PatternObjective, error) {
	if len(exps) == 0 {
		return nil, &ir.ModelValidationError{Message: "at least one experiment is required"}
	}
	o := &PatternObjective{calc: calc}
	for _, e := range exps {
		ds := dataset{exp: e}
		for _, l := range e.Links {
			m, ok := models[l.Phase]
			if !ok {
				return nil, &ir.ModelValidationError{
					Subject: e.ID,
					Message: fmt.Sprintf("linked phase %q is not defined", l.Phase),
				}
			}
			ds.models = append(ds.models, m)
		}

		w, err := e.Weights(weighting)
		if err != nil {
			return nil, err
		}
		ds.weights = w
		ds.sqrtW = make([]float64, len(w))
		for i, wi := range w {
			if wi == 0 {
				continue
			}
			ds.sqrtW[i] = math.Sqrt(wi)
			ds.included = append(ds.included, i)
		}
		if len(ds.included) == 0 {
			return nil, &ir.InvalidExperimentDataError{Experiment: e.ID, Message: "every point is excluded"}
		}
		o.n += len(ds.included)
		o.sets = append(o.sets, ds)
	}
	return o, nil
}

// Points returns the number of included points across experiments.
func (o *PatternObjective) Points() int { return o.n }

// Calculate returns the simulated pattern of experiment i at the current
// parameter values.
func (o *PatternObjective) Calculate(i int) ([]float64, error) {
	ds := o.sets[i]
	phases := make([]pattern.Phase, len(ds.models))
	for j, m := range ds.models {
		phases[j] = pattern.Phase{Model: m, Scale: ds.exp.Links[j].Scale.Value}
	}
	return o.calc.Calculate(phases, ds.exp.Instrument, ds.exp.Background, ds.exp.X)
}

// Residuals concatenates √w·(yobs − ycalc) over experiments in order.
func (o *PatternObjective) Residuals() ([]float64, error) {
	out := make([]float64, 0, o.n)
	for i, ds := range o.sets {
		calc, err := o.Calculate(i)
		if err != nil {
			return nil, fmt.Errorf("experiment %q: %w", ds.exp.ID, err)
		}
		for _, k := range ds.included {
			out = append(out, ds.sqrtW[k]*(ds.exp.Y[k]-calc[k]))
		}
	}
	return out, nil
}

// Fit computes joint statistics over every experiment.
func (o *PatternObjective) Fit(nFree int) (analysis.Stats, error) {
	var obs, calc, weights []float64
	for i, ds := range o.sets {
		c, err := o.Calculate(i)
		if err != nil {
			return analysis.Stats{}, fmt.Errorf("experiment %q: %w", ds.exp.ID, err)
		}
		obs = append(obs, ds.exp.Y...)
		calc = append(calc, c...)
		weights = append(weights, ds.weights...)
	}
	return analysis.ComputeStats(obs, calc, weights, nFree)
}
