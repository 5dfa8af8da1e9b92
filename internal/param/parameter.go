package param

import "math"

// Parameter is a named scalar with bounds.
//
// A Parameter with a non-nil Expr is derived: the optimizer never writes it
// directly and Free must be false.
type Parameter struct {
	Key   string
	Value float64
	Min   float64
	Max   float64
	Free  bool
	Units string

	// Expr derives Value from other parameters. Set by the owning model
	// for lattice-dependent constants or by Builder.Constrain.
	Expr Expr

	// Uncertainty is the standard error from the last refinement.
	// Valid only when HasUncertainty is true.
	Uncertainty    float64
	HasUncertainty bool
}

// New creates an unbounded fixed parameter.
func New(key string, value float64, units string) *Parameter {
	return &Parameter{
		Key:   key,
		Value: value,
		Min:   math.Inf(-1),
		Max:   math.Inf(1),
		Units: units,
	}
}

// Bounded creates a fixed parameter with physical bounds.
func Bounded(key string, value, lo, hi float64, units string) *Parameter {
	p := New(key, value, units)
	p.Min, p.Max = lo, hi
	return p
}

// Constrained reports whether the parameter is derived.
func (p *Parameter) Constrained() bool {
	return p.Expr != nil
}

// InBounds reports whether v lies within [Min, Max].
func (p *Parameter) InBounds(v float64) bool {
	return v >= p.Min && v <= p.Max
}

// Set stores v clamped to the bounds.
func (p *Parameter) Set(v float64) {
	p.Value = clamp(v, p.Min, p.Max)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// reflect mirrors v back into [lo, hi] at the violated bound.
// A value still outside after one mirror is clamped.
func reflect(v, lo, hi float64) float64 {
	switch {
	case v > hi:
		v = hi - (v - hi)
	case v < lo:
		v = lo + (lo - v)
	}
	return clamp(v, lo, hi)
}

// Source is anything that owns parameters: a structural model, an
// instrument, a background or an experiment's phase links.
type Source interface {
	Parameters() []*Parameter
}

// List adapts a plain slice to Source.
type List []*Parameter

// Parameters implements Source.
func (l List) Parameters() []*Parameter { return l }
