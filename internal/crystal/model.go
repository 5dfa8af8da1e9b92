package crystal

import (
	"fmt"
	"math"
	"slices"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/param"
)

// Tolerances for lattice consistency and duplicate positions.
const (
	cellTolerance      = 1e-4
	duplicateTolerance = 1e-4
)

// Position is one symmetry-expanded atom.
type Position struct {
	// Site indexes Model.Sites.
	Site int
	// Op indexes SpaceGroup.Ops; the operator that generated the position.
	Op    int
	Fract [3]float64
}

// Model is a structural model: cell, space group and atom sites.
//
// Not safe for concurrent use. Each job owns its models.
type Model struct {
	ID    string
	Group *SpaceGroup
	Sites []*AtomSite

	cell [6]*param.Parameter

	expandKey []float64
	expanded  []Position
}

// FromSpec builds a Model from its compiled description.
func FromSpec(spec ir.PhaseSpec) (*Model, error) {
	return NewModel(spec.ID, CellFromArray(spec.Cell.Array()), spec.SpaceGroup, spec.Sites)
}

// NewModel validates the inputs and creates the model's parameters.
// Any violation is reported as *ir.ModelValidationError.
func NewModel(id string, cell Cell, spaceGroup string, sites []ir.AtomSiteSpec) (*Model, error) {
	invalid := func(subject, format string, args ...any) error {
		return &ir.ModelValidationError{Subject: subject, Message: fmt.Sprintf(format, args...)}
	}

	if id == "" {
		return nil, invalid("", "model id is required")
	}
	group, err := LookupSpaceGroup(spaceGroup)
	if err != nil {
		return nil, invalid(id, "%v", err)
	}
	if err := cell.Validate(); err != nil {
		return nil, invalid(id, "%v", err)
	}
	if err := cell.consistentWith(group.System(), cellTolerance); err != nil {
		return nil, invalid(id, "space group %s: %v", group.Name, err)
	}
	if len(sites) == 0 {
		return nil, invalid(id, "at least one atom site is required")
	}

	m := &Model{ID: id, Group: group}
	m.cell = cellParameters(id, cell, group.System())

	labels := make(map[string]bool, len(sites))
	for i, spec := range sites {
		if spec.Label == "" {
			return nil, invalid(id, "atom site %d: label is required", i)
		}
		subject := id + ".atom_site." + spec.Label
		if labels[spec.Label] {
			return nil, invalid(subject, "duplicate label")
		}
		labels[spec.Label] = true
		if spec.TypeSymbol == "" {
			return nil, invalid(subject, "type symbol is required")
		}
		if !knownElement(Element(spec.TypeSymbol)) {
			return nil, invalid(subject, "unknown element %q", spec.TypeSymbol)
		}
		if !(spec.Occupancy >= 0 && spec.Occupancy <= 1) {
			return nil, invalid(subject, "occupancy %g outside [0, 1]", spec.Occupancy)
		}
		for _, v := range spec.Fract {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, invalid(subject, "fractional coordinate is not finite")
			}
		}
		m.Sites = append(m.Sites, newSite(subject, spec))
	}
	return m, nil
}

func newSite(prefix string, spec ir.AtomSiteSpec) *AtomSite {
	s := &AtomSite{Label: spec.Label, TypeSymbol: spec.TypeSymbol}
	for i, axis := range []string{"x", "y", "z"} {
		s.Fract[i] = param.New(prefix+".fract_"+axis, spec.Fract[i], "")
	}
	s.Occupancy = param.Bounded(prefix+".occupancy", spec.Occupancy, 0, 1, "")
	if spec.UAniso != nil {
		for i, suffix := range []string{"11", "22", "33", "12", "13", "23"} {
			s.U[i] = param.New(prefix+".u_"+suffix, spec.UAniso[i], "Å²")
		}
	} else {
		s.BIso = param.New(prefix+".b_iso", spec.BIso, "Å²")
	}
	// Both tables carry every known element.
	s.neutron, _ = NewScatterer(spec.TypeSymbol, ir.RadiationNeutron)
	s.xray, _ = NewScatterer(spec.TypeSymbol, ir.RadiationXray)
	return s
}

// cellParameters creates the six cell parameters. Constants fixed by the
// crystal system are constrained so they are never refined on their own.
func cellParameters(id string, cell Cell, sys System) [6]*param.Parameter {
	prefix := id + ".cell."
	v := cell.Array()
	var p [6]*param.Parameter
	for i, name := range []string{"length_a", "length_b", "length_c"} {
		p[i] = param.Bounded(prefix+name, v[i], 0, math.Inf(1), "Å")
	}
	for i, name := range []string{"angle_alpha", "angle_beta", "angle_gamma"} {
		p[3+i] = param.Bounded(prefix+name, v[3+i], 0, 180, "deg")
	}

	sameAsA := param.Ref{Key: p[0].Key}
	fix := func(i int, deg float64) {
		p[i].Expr = param.Const{Value: deg}
	}
	switch sys {
	case Monoclinic:
		fix(3, 90)
		fix(5, 90)
	case Orthorhombic:
		fix(3, 90)
		fix(4, 90)
		fix(5, 90)
	case Tetragonal:
		p[1].Expr = sameAsA
		fix(3, 90)
		fix(4, 90)
		fix(5, 90)
	case Trigonal, Hexagonal:
		p[1].Expr = sameAsA
		fix(3, 90)
		fix(4, 90)
		fix(5, 120)
	case Cubic:
		p[1].Expr = sameAsA
		p[2].Expr = sameAsA
		fix(3, 90)
		fix(4, 90)
		fix(5, 90)
	}
	return p
}

// Cell returns the current cell.
func (m *Model) Cell() Cell {
	var v [6]float64
	for i, p := range m.cell {
		v[i] = p.Value
	}
	return CellFromArray(v)
}

// CellParameters returns the six cell parameters in a, b, c, α, β, γ order.
func (m *Model) CellParameters() [6]*param.Parameter {
	return m.cell
}

// Parameters implements param.Source: cell constants first, then each
// site in order.
func (m *Model) Parameters() []*param.Parameter {
	params := slices.Clone(m.cell[:])
	for _, s := range m.Sites {
		params = append(params, s.Parameters()...)
	}
	return params
}

// Expand returns the symmetry-expanded positions. The result is cached and
// recomputed when a coordinate or cell constant changes. Callers must not
// modify the returned slice.
func (m *Model) Expand() []Position {
	key := m.expansionKey()
	if m.expanded != nil && slices.Equal(key, m.expandKey) {
		return m.expanded
	}

	var out []Position
	for si, site := range m.Sites {
		r := site.position()
		start := len(out)
		for oi, op := range m.Group.Ops {
			p := op.Apply(r)
			if containsPosition(out[start:], p) {
				continue
			}
			out = append(out, Position{Site: si, Op: oi, Fract: p})
		}
	}

	m.expandKey = key
	m.expanded = out
	return out
}

func (m *Model) expansionKey() []float64 {
	key := make([]float64, 0, 6+3*len(m.Sites))
	for _, p := range m.cell {
		key = append(key, p.Value)
	}
	for _, s := range m.Sites {
		r := s.position()
		key = append(key, r[:]...)
	}
	return key
}

// containsPosition compares with periodic wrap so 0.99995 matches 0.
func containsPosition(ps []Position, r [3]float64) bool {
	for _, p := range ps {
		same := true
		for i := range 3 {
			d := math.Abs(p.Fract[i] - r[i])
			if math.Min(d, 1-d) > duplicateTolerance {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// Multiplicity returns the number of expanded positions per site.
func (m *Model) Multiplicity() []int {
	counts := make([]int, len(m.Sites))
	for _, p := range m.Expand() {
		counts[p.Site]++
	}
	return counts
}

// StructureFactor computes F(h) for the current parameter values.
func (m *Model) StructureFactor(h HKL, radiation ir.Radiation) (complex128, error) {
	fs, err := m.StructureFactors([]HKL{h}, radiation)
	if err != nil {
		return 0, err
	}
	return fs[0], nil
}

// StructureFactors computes F(h) = Σ occ·f(s)·T(h)·exp(2πi h·r) over the
// expanded positions for each h. Summation order is fixed.
func (m *Model) StructureFactors(hkls []HKL, radiation ir.Radiation) ([]complex128, error) {
	recip, err := m.Cell().Reciprocal()
	if err != nil {
		return nil, &ir.ModelValidationError{Subject: m.ID, Message: err.Error()}
	}
	rl := recip.Lengths()
	positions := m.Expand()
	scat := make([]Scatterer, len(m.Sites))
	for i, s := range m.Sites {
		scat[i] = s.scatterer(radiation)
	}

	out := make([]complex128, len(hkls))
	f := make([]float64, len(m.Sites))
	for hi, h := range hkls {
		s := 0.5 * math.Sqrt(recip.InvDSquared(h))
		for i := range m.Sites {
			f[i] = scat[i].At(s) * m.Sites[i].Occupancy.Value
		}
		var re, im float64
		for _, p := range positions {
			site := m.Sites[p.Site]
			amp := f[p.Site] * site.debyeWaller(m.Group.Ops[p.Op].TransformHKL(h), s, rl)
			phase := 2 * math.Pi * (float64(h[0])*p.Fract[0] + float64(h[1])*p.Fract[1] + float64(h[2])*p.Fract[2])
			sin, cos := math.Sincos(phase)
			re += amp * cos
			im += amp * sin
		}
		out[hi] = complex(re, im)
	}
	return out, nil
}
