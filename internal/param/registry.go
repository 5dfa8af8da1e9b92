package param

import (
	"fmt"
	"math"
	"slices"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// Builder collects parameters and constraints before validation.
type Builder struct {
	params []*Parameter
	index  map[string]int
	mode   ir.BoundMode
	errs   []error
}

// NewBuilder creates an empty builder with clamp bound handling.
func NewBuilder() *Builder {
	return &Builder{
		index: make(map[string]int),
		mode:  ir.BoundClamp,
	}
}

// Add registers every parameter of each source in order.
//
// Registering the same *Parameter twice is a no-op, so a phase linked to
// two experiments contributes its parameters once. Two distinct parameters
// with one key are a validation error reported by Build.
func (b *Builder) Add(sources ...Source) *Builder {
	for _, src := range sources {
		for _, p := range src.Parameters() {
			if i, ok := b.index[p.Key]; ok {
				if b.params[i] != p {
					b.errs = append(b.errs, &ir.ModelValidationError{
						Subject: p.Key,
						Message: "duplicate parameter key",
					})
				}
				continue
			}
			b.index[p.Key] = len(b.params)
			b.params = append(b.params, p)
		}
	}
	return b
}

// Constrain derives key from expression text.
func (b *Builder) Constrain(key, text string) *Builder {
	p, ok := b.lookup(key)
	if !ok {
		b.errs = append(b.errs, &ir.ModelValidationError{Subject: key, Message: "constraint target not registered"})
		return b
	}
	e, err := Parse(text)
	if err != nil {
		b.errs = append(b.errs, &ir.ModelValidationError{Subject: key, Message: err.Error()})
		return b
	}
	p.Expr = e
	return b
}

// Free marks key as refinable. Nil bounds keep the parameter's own.
// Bounds are intersected with the physical bounds the owner declared.
func (b *Builder) Free(key string, lo, hi *float64) *Builder {
	p, ok := b.lookup(key)
	if !ok {
		b.errs = append(b.errs, &ir.ModelValidationError{Subject: key, Message: "free parameter not registered"})
		return b
	}
	if lo != nil {
		p.Min = math.Max(p.Min, *lo)
	}
	if hi != nil {
		p.Max = math.Min(p.Max, *hi)
	}
	p.Free = true
	return b
}

// WithBoundMode selects how Apply handles out-of-bounds values.
func (b *Builder) WithBoundMode(mode ir.BoundMode) *Builder {
	if mode != "" {
		b.mode = mode
	}
	return b
}

func (b *Builder) lookup(key string) (*Parameter, bool) {
	i, ok := b.index[key]
	if !ok {
		return nil, false
	}
	return b.params[i], true
}

// Build validates the collected parameters and returns a registry with all
// constrained values resolved.
//
// Errors, in order of checking: the first recorded Add/Constrain/Free
// error; *ir.ModelValidationError for inverted bounds, free constrained
// parameters and unknown references; *ir.ConstraintCycleError for a cyclic
// constraint graph; *ir.ModelValidationError for a value outside its bounds
// after resolution.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	g := make(graph)
	for _, p := range b.params {
		if p.Min > p.Max {
			return nil, &ir.ModelValidationError{Subject: p.Key, Message: fmt.Sprintf("min %g exceeds max %g", p.Min, p.Max)}
		}
		if !p.Constrained() {
			continue
		}
		if p.Free {
			return nil, &ir.ModelValidationError{Subject: p.Key, Message: "constrained parameter cannot be free"}
		}
		refs := Refs(p.Expr)
		for _, ref := range refs {
			if _, ok := b.index[ref]; !ok {
				return nil, &ir.ModelValidationError{Subject: p.Key, Message: fmt.Sprintf("constraint references unknown parameter %q", ref)}
			}
		}
		g[p.Key] = refs
	}

	var order []*Parameter
	for _, scc := range tarjanSCC(g) {
		if isCycle(scc, g) {
			return nil, &ir.ConstraintCycleError{Path: cyclePath(scc, g)}
		}
		if p := b.params[b.index[scc[0]]]; p.Constrained() {
			order = append(order, p)
		}
	}

	r := &Registry{
		params: b.params,
		index:  b.index,
		order:  order,
		mode:   b.mode,
	}
	for _, p := range b.params {
		if p.Free {
			r.free = append(r.free, p)
		}
	}

	r.Resolve()
	for _, p := range b.params {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, &ir.ModelValidationError{Subject: p.Key, Message: "value is not finite"}
		}
		if !p.InBounds(p.Value) {
			return nil, &ir.ModelValidationError{Subject: p.Key, Message: fmt.Sprintf("value %g outside [%g, %g]", p.Value, p.Min, p.Max)}
		}
	}
	return r, nil
}

// Registry maps stable keys to parameters.
//
// Insertion order of free parameters defines the optimizer vector. Not safe
// for concurrent use; each job owns its registry.
type Registry struct {
	params []*Parameter
	index  map[string]int
	free   []*Parameter
	order  []*Parameter
	mode   ir.BoundMode
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int { return len(r.params) }

// Get returns the parameter registered under key.
func (r *Registry) Get(key string) (*Parameter, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.params[i], true
}

// Parameters returns all parameters in insertion order.
func (r *Registry) Parameters() []*Parameter {
	return slices.Clone(r.params)
}

// Free returns the free parameters in vector order.
func (r *Registry) Free() []*Parameter {
	return slices.Clone(r.free)
}

// FreeKeys returns the keys of the free parameters in vector order.
func (r *Registry) FreeKeys() []string {
	keys := make([]string, len(r.free))
	for i, p := range r.free {
		keys[i] = p.Key
	}
	return keys
}

// Vector returns the current free values.
func (r *Registry) Vector() []float64 {
	vec := make([]float64, len(r.free))
	for i, p := range r.free {
		vec[i] = p.Value
	}
	return vec
}

// Bounds returns the lower and upper bounds of the free parameters.
func (r *Registry) Bounds() (lo, hi []float64) {
	lo = make([]float64, len(r.free))
	hi = make([]float64, len(r.free))
	for i, p := range r.free {
		lo[i], hi[i] = p.Min, p.Max
	}
	return lo, hi
}

// Apply writes vec into the free parameters, bringing each value back
// inside its bounds, then resolves constrained parameters. Returns the
// vector actually stored.
func (r *Registry) Apply(vec []float64) ([]float64, error) {
	if len(vec) != len(r.free) {
		return nil, fmt.Errorf("apply: vector has %d entries, registry has %d free parameters", len(vec), len(r.free))
	}
	out := make([]float64, len(vec))
	for i, p := range r.free {
		v := vec[i]
		if r.mode == ir.BoundReflect {
			v = reflect(v, p.Min, p.Max)
		} else {
			v = clamp(v, p.Min, p.Max)
		}
		p.Value = v
		out[i] = v
	}
	r.Resolve()
	return out, nil
}

// Resolve recomputes every constrained parameter in dependency order,
// clamped to its bounds.
func (r *Registry) Resolve() {
	lookup := func(key string) float64 {
		return r.params[r.index[key]].Value
	}
	for _, p := range r.order {
		p.Set(Eval(p.Expr, lookup))
	}
}

// Snapshot captures every parameter value.
type Snapshot []float64

// Snapshot returns the current values of all parameters.
func (r *Registry) Snapshot() Snapshot {
	s := make(Snapshot, len(r.params))
	for i, p := range r.params {
		s[i] = p.Value
	}
	return s
}

// Restore puts back values captured by Snapshot.
func (r *Registry) Restore(s Snapshot) {
	for i, p := range r.params {
		p.Value = s[i]
	}
}

// SetUncertainties stores standard errors for the free parameters.
// NaN entries clear the uncertainty; a nil slice clears all.
func (r *Registry) SetUncertainties(sigmas []float64) {
	for i, p := range r.free {
		if sigmas == nil || math.IsNaN(sigmas[i]) {
			p.Uncertainty, p.HasUncertainty = 0, false
			continue
		}
		p.Uncertainty, p.HasUncertainty = sigmas[i], true
	}
}
