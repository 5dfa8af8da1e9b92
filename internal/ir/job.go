package ir

// Radiation selects the scattering model of an experiment.
type Radiation string

const (
	RadiationNeutron Radiation = "neutron"
	RadiationXray    Radiation = "xray"
)

// Weighting selects how residuals are weighted in the objective.
type Weighting string

const (
	// WeightingUncertainty weights each point by 1/σ². Every experiment must
	// carry σ.
	WeightingUncertainty Weighting = "uncertainty"

	// WeightingUniform weights every point by 1.
	WeightingUniform Weighting = "uniform"
)

// BoundMode selects how out-of-bounds trial values are brought back.
type BoundMode string

const (
	BoundClamp   BoundMode = "clamp"
	BoundReflect BoundMode = "reflect"
)

// BackgroundKind selects the background model.
type BackgroundKind string

const (
	BackgroundPoint     BackgroundKind = "point"
	BackgroundChebyshev BackgroundKind = "chebyshev"
)

// JobSpec is the compiled, immutable description of one refinement job.
type JobSpec struct {
	Name        string           `json:"name"`
	Phases      []PhaseSpec      `json:"phases"`
	Experiments []ExperimentSpec `json:"experiments"`
	Refine      RefineSpec       `json:"refine"`
}

// PhaseSpec describes one structural model.
type PhaseSpec struct {
	ID         string         `json:"id"`
	SpaceGroup string         `json:"space_group"`
	Cell       CellSpec       `json:"cell"`
	Sites      []AtomSiteSpec `json:"atom_sites"`
}

// CellSpec holds the lattice constants (Å and degrees).
type CellSpec struct {
	LengthA    float64 `json:"length_a"`
	LengthB    float64 `json:"length_b"`
	LengthC    float64 `json:"length_c"`
	AngleAlpha float64 `json:"angle_alpha"`
	AngleBeta  float64 `json:"angle_beta"`
	AngleGamma float64 `json:"angle_gamma"`
}

// Array returns the constants in a, b, c, α, β, γ order.
func (c CellSpec) Array() [6]float64 {
	return [6]float64{c.LengthA, c.LengthB, c.LengthC, c.AngleAlpha, c.AngleBeta, c.AngleGamma}
}

// AtomSiteSpec describes one asymmetric-unit atom.
// UAniso, when set, replaces BIso.
type AtomSiteSpec struct {
	Label      string      `json:"label"`
	TypeSymbol string      `json:"type_symbol"`
	Fract      [3]float64  `json:"fract"`
	BIso       float64     `json:"b_iso"`
	UAniso     *[6]float64 `json:"u_aniso,omitempty"`
	Occupancy  float64     `json:"occupancy"`
}

// ExperimentSpec describes one measured powder pattern.
type ExperimentSpec struct {
	ID         string         `json:"id"`
	Radiation  Radiation      `json:"radiation"`
	Instrument InstrumentSpec `json:"instrument"`
	Background BackgroundSpec `json:"background"`
	Links      []LinkSpec     `json:"linked_phases"`
	X          []float64      `json:"x"`
	Y          []float64      `json:"y"`
	Sigma      []float64      `json:"sigma,omitempty"`
	Excluded   []RegionSpec   `json:"excluded_regions,omitempty"`
	// DataFile names an "x y [sigma]" file to fill X, Y and Sigma from.
	// Loaders resolve it; it is not part of the content hash.
	DataFile string `json:"data_file,omitempty"`
}

// InstrumentSpec holds the constant-wavelength instrument settings.
type InstrumentSpec struct {
	Wavelength  float64 `json:"wavelength"`
	ZeroShift   float64 `json:"zero_shift"`
	ResolutionU float64 `json:"resolution_u"`
	ResolutionV float64 `json:"resolution_v"`
	ResolutionW float64 `json:"resolution_w"`
	ResolutionX float64 `json:"resolution_x"`
	ResolutionY float64 `json:"resolution_y"`
	PeakCutoff  float64 `json:"peak_cutoff"`
}

// BackgroundSpec holds either control points or Chebyshev coefficients.
type BackgroundSpec struct {
	Kind         BackgroundKind `json:"type"`
	Points       []PointSpec    `json:"points,omitempty"`
	Coefficients []float64      `json:"coefficients,omitempty"`
}

// PointSpec is one background control point.
type PointSpec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LinkSpec links a phase to an experiment with a scale factor.
type LinkSpec struct {
	Phase string  `json:"phase"`
	Scale float64 `json:"scale"`
}

// RegionSpec is a closed 2θ interval excluded from the objective.
type RegionSpec struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// RefineSpec selects free parameters, constraints and optimizer settings.
// Zero values mean "use the runtime default".
type RefineSpec struct {
	Params        []ParamSpec      `json:"params"`
	Constraints   []ConstraintSpec `json:"constraints,omitempty"`
	Weighting     Weighting        `json:"weighting,omitempty"`
	BoundMode     BoundMode        `json:"bound_mode,omitempty"`
	MaxIterations int              `json:"max_iterations,omitempty"`
	Tolerance     float64          `json:"tolerance,omitempty"`
	Patience      int              `json:"patience,omitempty"`
}

// ParamSpec marks a parameter free, optionally with bounds.
type ParamSpec struct {
	Key string   `json:"key"`
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// ConstraintSpec derives Target from an expression over other keys.
type ConstraintSpec struct {
	Target string `json:"target"`
	Expr   string `json:"expr"`
}

// Phase returns the phase with the given ID.
func (s *JobSpec) Phase(id string) (PhaseSpec, bool) {
	for _, p := range s.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return PhaseSpec{}, false
}

// Canonical converts the job into an IRObject for hashing.
func (s *JobSpec) Canonical() IRObject {
	phases := make(IRArray, len(s.Phases))
	for i, p := range s.Phases {
		sites := make(IRArray, len(p.Sites))
		for j, a := range p.Sites {
			site := IRObject{
				"label":       IRString(a.Label),
				"type_symbol": IRString(a.TypeSymbol),
				"fract":       Floats(a.Fract[:]),
				"b_iso":       IRFloat(a.BIso),
				"occupancy":   IRFloat(a.Occupancy),
			}
			if a.UAniso != nil {
				site["u_aniso"] = Floats(a.UAniso[:])
			}
			sites[j] = site
		}
		cell := p.Cell.Array()
		phases[i] = IRObject{
			"id":          IRString(p.ID),
			"space_group": IRString(p.SpaceGroup),
			"cell":        Floats(cell[:]),
			"atom_sites":  sites,
		}
	}

	exps := make(IRArray, len(s.Experiments))
	for i, e := range s.Experiments {
		links := make(IRArray, len(e.Links))
		for j, l := range e.Links {
			links[j] = IRObject{"phase": IRString(l.Phase), "scale": IRFloat(l.Scale)}
		}
		points := make(IRArray, len(e.Background.Points))
		for j, pt := range e.Background.Points {
			points[j] = IRArray{IRFloat(pt.X), IRFloat(pt.Y)}
		}
		regions := make(IRArray, len(e.Excluded))
		for j, r := range e.Excluded {
			regions[j] = IRArray{IRFloat(r.Start), IRFloat(r.End)}
		}
		in := e.Instrument
		exps[i] = IRObject{
			"id":        IRString(e.ID),
			"radiation": IRString(e.Radiation),
			"instrument": Floats([]float64{
				in.Wavelength, in.ZeroShift,
				in.ResolutionU, in.ResolutionV, in.ResolutionW,
				in.ResolutionX, in.ResolutionY, in.PeakCutoff,
			}),
			"background": IRObject{
				"type":         IRString(e.Background.Kind),
				"points":       points,
				"coefficients": Floats(e.Background.Coefficients),
			},
			"linked_phases":    links,
			"x":                Floats(e.X),
			"y":                Floats(e.Y),
			"sigma":            Floats(e.Sigma),
			"excluded_regions": regions,
		}
	}

	params := make(IRArray, len(s.Refine.Params))
	for i, p := range s.Refine.Params {
		obj := IRObject{"key": IRString(p.Key)}
		if p.Min != nil {
			obj["min"] = IRFloat(*p.Min)
		}
		if p.Max != nil {
			obj["max"] = IRFloat(*p.Max)
		}
		params[i] = obj
	}
	constraints := make(IRArray, len(s.Refine.Constraints))
	for i, c := range s.Refine.Constraints {
		constraints[i] = IRObject{"target": IRString(c.Target), "expr": IRString(c.Expr)}
	}

	return IRObject{
		"name":        IRString(s.Name),
		"phases":      phases,
		"experiments": exps,
		"refine": IRObject{
			"params":         params,
			"constraints":    constraints,
			"weighting":      IRString(s.Refine.Weighting),
			"bound_mode":     IRString(s.Refine.BoundMode),
			"max_iterations": IRInt(s.Refine.MaxIterations),
			"tolerance":      IRFloat(s.Refine.Tolerance),
			"patience":       IRInt(s.Refine.Patience),
		},
	}
}
