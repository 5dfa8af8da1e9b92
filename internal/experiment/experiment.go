// Package experiment holds measured powder patterns together with the
// instrument, background and phase links used to simulate them.
package experiment

import (
	"fmt"
	"math"
	"slices"

	"github.com/easyscience/EasyDiffractionLib/internal/instrument"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/param"
)

// Link attaches a phase to an experiment with a refinable scale.
type Link struct {
	Phase string
	Scale *param.Parameter
}

// Experiment is one observed pattern. The observed arrays are read-only
// after construction.
type Experiment struct {
	ID         string
	X          []float64
	Y          []float64
	Sigma      []float64
	Instrument *instrument.Instrument
	Background instrument.Background
	Links      []Link
	Excluded   []ir.RegionSpec
}

// New validates the observed data before anything else, then builds the
// instrument, background and links.
func New(spec ir.ExperimentSpec) (*Experiment, error) {
	if err := ValidateData(spec); err != nil {
		return nil, err
	}
	if spec.ID == "" {
		return nil, &ir.ModelValidationError{Message: "experiment id is required"}
	}

	inst, err := instrument.New(spec.ID, spec.Radiation, spec.Instrument)
	if err != nil {
		return nil, err
	}
	bkg, err := instrument.NewBackground(spec.ID, spec.Background)
	if err != nil {
		return nil, err
	}

	e := &Experiment{
		ID:         spec.ID,
		X:          slices.Clone(spec.X),
		Y:          slices.Clone(spec.Y),
		Sigma:      slices.Clone(spec.Sigma),
		Instrument: inst,
		Background: bkg,
		Excluded:   slices.Clone(spec.Excluded),
	}

	if len(spec.Links) == 0 {
		return nil, &ir.ModelValidationError{Subject: spec.ID, Message: "no linked phases"}
	}
	seen := make(map[string]bool, len(spec.Links))
	for _, l := range spec.Links {
		key := spec.ID + ".linked_phases." + l.Phase + ".scale"
		if l.Phase == "" {
			return nil, &ir.ModelValidationError{Subject: spec.ID, Message: "linked phase id is required"}
		}
		if seen[l.Phase] {
			return nil, &ir.ModelValidationError{Subject: key, Message: "phase linked twice"}
		}
		seen[l.Phase] = true
		if !(l.Scale >= 0) || math.IsInf(l.Scale, 1) {
			return nil, &ir.ModelValidationError{Subject: key, Message: fmt.Sprintf("scale must be a non-negative number, got %g", l.Scale)}
		}
		e.Links = append(e.Links, Link{
			Phase: l.Phase,
			Scale: param.Bounded(key, l.Scale, 0, math.Inf(1), ""),
		})
	}
	return e, nil
}

// ValidateData checks the observed arrays: non-empty, finite, strictly
// increasing x, matching lengths, positive σ, well-formed excluded regions.
func ValidateData(spec ir.ExperimentSpec) error {
	invalid := func(format string, args ...any) error {
		return &ir.InvalidExperimentDataError{Experiment: spec.ID, Message: fmt.Sprintf(format, args...)}
	}

	n := len(spec.X)
	if n == 0 {
		return invalid("no data points")
	}
	if len(spec.Y) != n {
		return invalid("intensity has %d points, x has %d", len(spec.Y), n)
	}
	if spec.Sigma != nil && len(spec.Sigma) != n {
		return invalid("uncertainty has %d points, x has %d", len(spec.Sigma), n)
	}
	for i := range n {
		if !finite(spec.X[i]) || !finite(spec.Y[i]) {
			return invalid("point %d is not finite", i)
		}
		if i > 0 && !(spec.X[i] > spec.X[i-1]) {
			return invalid("x is not strictly increasing at point %d (%g after %g)", i, spec.X[i], spec.X[i-1])
		}
		if spec.Sigma != nil && !(spec.Sigma[i] > 0 && finite(spec.Sigma[i])) {
			return invalid("uncertainty at point %d must be positive, got %g", i, spec.Sigma[i])
		}
	}
	for i, r := range spec.Excluded {
		if !(r.Start < r.End) {
			return invalid("excluded region %d: start %g is not below end %g", i, r.Start, r.End)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Parameters implements param.Source: instrument, background, then scales.
func (e *Experiment) Parameters() []*param.Parameter {
	params := e.Instrument.Parameters()
	params = append(params, e.Background.Parameters()...)
	for _, l := range e.Links {
		params = append(params, l.Scale)
	}
	return params
}

// Len returns the number of data points.
func (e *Experiment) Len() int { return len(e.X) }

// IsExcluded reports whether x falls inside an excluded region.
func (e *Experiment) IsExcluded(x float64) bool {
	for _, r := range e.Excluded {
		if x >= r.Start && x <= r.End {
			return true
		}
	}
	return false
}

// Weights returns the per-point weights for the chosen mode. Excluded
// points get weight 0.
func (e *Experiment) Weights(mode ir.Weighting) ([]float64, error) {
	w := make([]float64, len(e.X))
	switch mode {
	case ir.WeightingUncertainty:
		if e.Sigma == nil {
			return nil, &ir.InvalidExperimentDataError{Experiment: e.ID, Message: "uncertainty weighting requires sigma"}
		}
		for i, s := range e.Sigma {
			w[i] = 1 / (s * s)
		}
	case ir.WeightingUniform:
		for i := range w {
			w[i] = 1
		}
	default:
		return nil, fmt.Errorf("unknown weighting %q", mode)
	}
	for i, x := range e.X {
		if e.IsExcluded(x) {
			w[i] = 0
		}
	}
	return w, nil
}
