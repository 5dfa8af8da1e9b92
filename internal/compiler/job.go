package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// CompileJob parses a CUE value into a JobSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the job struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`job: lbco: { phases: ..., experiments: ..., refine: ... }`)
//	spec, err := CompileJob(v.LookupPath(cue.ParsePath("job.lbco")))
//
// Struct fields keep their declaration order, so phases, sites and
// experiments appear in the spec in file order. Cell constants left out
// default to length_a and 90°, so a cubic cell needs only length_a.
func CompileJob(v cue.Value) (*ir.JobSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	// Conflicts below the root do not make v itself bottom.
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.JobSpec{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].Unquoted()
	}

	var err error
	if spec.Phases, err = compilePhases(v); err != nil {
		return nil, err
	}
	if spec.Experiments, err = compileExperiments(v); err != nil {
		return nil, err
	}
	if spec.Refine, err = compileRefine(v); err != nil {
		return nil, err
	}
	return spec, nil
}

// compilePhases reads `phases: <id>: {...}`.
func compilePhases(v cue.Value) ([]ir.PhaseSpec, error) {
	phasesVal := v.LookupPath(cue.ParsePath("phases"))
	if !phasesVal.Exists() {
		return nil, &CompileError{Field: "phases", Message: "phases are required", Pos: v.Pos()}
	}
	iter, err := phasesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var phases []ir.PhaseSpec
	for iter.Next() {
		id := iter.Selector().Unquoted()
		pv := iter.Value()
		field := "phases." + id

		phase := ir.PhaseSpec{ID: id}
		if phase.SpaceGroup, err = requiredString(pv, "space_group", field); err != nil {
			return nil, err
		}
		if phase.Cell, err = compileCell(pv, field); err != nil {
			return nil, err
		}
		if phase.Sites, err = compileSites(pv, field); err != nil {
			return nil, err
		}
		phases = append(phases, phase)
	}
	return phases, nil
}

func compileCell(pv cue.Value, field string) (ir.CellSpec, error) {
	cellVal := pv.LookupPath(cue.ParsePath("cell"))
	if !cellVal.Exists() {
		return ir.CellSpec{}, &CompileError{Field: field + ".cell", Message: "cell is required", Pos: pv.Pos()}
	}
	field += ".cell"

	a, err := requiredFloat(cellVal, "length_a", field)
	if err != nil {
		return ir.CellSpec{}, err
	}
	cell := ir.CellSpec{LengthA: a}
	for _, f := range []struct {
		name string
		dst  *float64
		def  float64
	}{
		{"length_b", &cell.LengthB, a},
		{"length_c", &cell.LengthC, a},
		{"angle_alpha", &cell.AngleAlpha, 90},
		{"angle_beta", &cell.AngleBeta, 90},
		{"angle_gamma", &cell.AngleGamma, 90},
	} {
		if *f.dst, err = optionalFloat(cellVal, f.name, field, f.def); err != nil {
			return ir.CellSpec{}, err
		}
	}
	return cell, nil
}

// compileSites reads `atom_sites: <label>: {...}`. Either b_iso or a
// u_aniso block may be given; occupancy defaults to 1.
func compileSites(pv cue.Value, field string) ([]ir.AtomSiteSpec, error) {
	sitesVal := pv.LookupPath(cue.ParsePath("atom_sites"))
	if !sitesVal.Exists() {
		return nil, nil
	}
	iter, err := sitesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var sites []ir.AtomSiteSpec
	for iter.Next() {
		label := iter.Selector().Unquoted()
		sv := iter.Value()
		sf := field + ".atom_sites." + label

		site := ir.AtomSiteSpec{Label: label}
		if site.TypeSymbol, err = requiredString(sv, "type_symbol", sf); err != nil {
			return nil, err
		}
		for i, axis := range []string{"fract_x", "fract_y", "fract_z"} {
			if site.Fract[i], err = optionalFloat(sv, axis, sf, 0); err != nil {
				return nil, err
			}
		}
		if site.Occupancy, err = optionalFloat(sv, "occupancy", sf, 1); err != nil {
			return nil, err
		}
		if site.BIso, err = optionalFloat(sv, "b_iso", sf, 0); err != nil {
			return nil, err
		}
		if uVal := sv.LookupPath(cue.ParsePath("u_aniso")); uVal.Exists() {
			var u [6]float64
			for i, name := range []string{"u_11", "u_22", "u_33", "u_12", "u_13", "u_23"} {
				if u[i], err = optionalFloat(uVal, name, sf+".u_aniso", 0); err != nil {
					return nil, err
				}
			}
			site.UAniso = &u
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// compileExperiments reads `experiments: <id>: {...}`.
func compileExperiments(v cue.Value) ([]ir.ExperimentSpec, error) {
	expsVal := v.LookupPath(cue.ParsePath("experiments"))
	if !expsVal.Exists() {
		return nil, &CompileError{Field: "experiments", Message: "experiments are required", Pos: v.Pos()}
	}
	iter, err := expsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var exps []ir.ExperimentSpec
	for iter.Next() {
		id := iter.Selector().Unquoted()
		ev := iter.Value()
		field := "experiments." + id

		exp := ir.ExperimentSpec{ID: id}
		radiation, err := requiredString(ev, "radiation", field)
		if err != nil {
			return nil, err
		}
		exp.Radiation = ir.Radiation(radiation)
		if exp.Instrument, err = compileInstrument(ev, field); err != nil {
			return nil, err
		}
		if exp.Background, err = compileBackground(ev, field); err != nil {
			return nil, err
		}
		if exp.Links, err = compileLinks(ev, field); err != nil {
			return nil, err
		}
		if exp.Excluded, err = compileRegions(ev, field); err != nil {
			return nil, err
		}
		if err := compileData(ev, field, &exp); err != nil {
			return nil, err
		}
		exps = append(exps, exp)
	}
	return exps, nil
}

func compileInstrument(ev cue.Value, field string) (ir.InstrumentSpec, error) {
	iv := ev.LookupPath(cue.ParsePath("instrument"))
	if !iv.Exists() {
		return ir.InstrumentSpec{}, &CompileError{Field: field + ".instrument", Message: "instrument is required", Pos: ev.Pos()}
	}
	field += ".instrument"

	var in ir.InstrumentSpec
	var err error
	if in.Wavelength, err = requiredFloat(iv, "wavelength", field); err != nil {
		return in, err
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"zero_shift", &in.ZeroShift},
		{"resolution_u", &in.ResolutionU},
		{"resolution_v", &in.ResolutionV},
		{"resolution_w", &in.ResolutionW},
		{"resolution_x", &in.ResolutionX},
		{"resolution_y", &in.ResolutionY},
		{"peak_cutoff", &in.PeakCutoff},
	} {
		if *f.dst, err = optionalFloat(iv, f.name, field, 0); err != nil {
			return in, err
		}
	}
	return in, nil
}

// compileBackground reads either `points: [[x, y], ...]` or
// `coefficients: [...]`, selected by `type`.
func compileBackground(ev cue.Value, field string) (ir.BackgroundSpec, error) {
	bv := ev.LookupPath(cue.ParsePath("background"))
	if !bv.Exists() {
		return ir.BackgroundSpec{}, nil
	}
	field += ".background"

	var bkg ir.BackgroundSpec
	kind, err := optionalString(bv, "type", field, string(ir.BackgroundPoint))
	if err != nil {
		return bkg, err
	}
	bkg.Kind = ir.BackgroundKind(kind)

	if pts := bv.LookupPath(cue.ParsePath("points")); pts.Exists() {
		pairs, err := floatPairs(pts, field+".points")
		if err != nil {
			return bkg, err
		}
		for _, p := range pairs {
			bkg.Points = append(bkg.Points, ir.PointSpec{X: p[0], Y: p[1]})
		}
	}
	if coeffs := bv.LookupPath(cue.ParsePath("coefficients")); coeffs.Exists() {
		if bkg.Coefficients, err = floatList(coeffs, field+".coefficients"); err != nil {
			return bkg, err
		}
	}
	return bkg, nil
}

// compileLinks reads `linked_phases: <phase>: <scale>`.
func compileLinks(ev cue.Value, field string) ([]ir.LinkSpec, error) {
	lv := ev.LookupPath(cue.ParsePath("linked_phases"))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var links []ir.LinkSpec
	for iter.Next() {
		phase := iter.Selector().Unquoted()
		scale, err := iter.Value().Float64()
		if err != nil {
			return nil, fieldError(field+".linked_phases."+phase, iter.Value(), "a number")
		}
		links = append(links, ir.LinkSpec{Phase: phase, Scale: scale})
	}
	return links, nil
}

// compileRegions reads `excluded_regions: [[start, end], ...]`.
func compileRegions(ev cue.Value, field string) ([]ir.RegionSpec, error) {
	rv := ev.LookupPath(cue.ParsePath("excluded_regions"))
	if !rv.Exists() {
		return nil, nil
	}
	pairs, err := floatPairs(rv, field+".excluded_regions")
	if err != nil {
		return nil, err
	}
	regions := make([]ir.RegionSpec, len(pairs))
	for i, p := range pairs {
		regions[i] = ir.RegionSpec{Start: p[0], End: p[1]}
	}
	return regions, nil
}

// compileData reads inline `x`, `y`, `sigma` arrays or a `data_file`.
func compileData(ev cue.Value, field string, exp *ir.ExperimentSpec) error {
	var err error
	if exp.DataFile, err = optionalString(ev, "data_file", field, ""); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		dst  *[]float64
	}{
		{"x", &exp.X},
		{"y", &exp.Y},
		{"sigma", &exp.Sigma},
	} {
		fv := ev.LookupPath(cue.ParsePath(f.name))
		if !fv.Exists() {
			continue
		}
		if exp.DataFile != "" {
			return &CompileError{Field: field + "." + f.name, Message: "inline data conflicts with data_file", Pos: fv.Pos()}
		}
		if *f.dst, err = floatList(fv, field+"."+f.name); err != nil {
			return err
		}
	}
	return nil
}

// compileRefine reads the optional refine block.
//
//	refine: {
//		free: ["lbco.cell.length_a", {key: "hrpt.instrument.zero_shift", min: -1, max: 1}]
//		constraints: "lbco.cell.length_b": "lbco.cell.length_a"
//		weighting: "uncertainty"
//	}
func compileRefine(v cue.Value) (ir.RefineSpec, error) {
	rv := v.LookupPath(cue.ParsePath("refine"))
	if !rv.Exists() {
		return ir.RefineSpec{}, nil
	}
	const field = "refine"

	var r ir.RefineSpec
	if fv := rv.LookupPath(cue.ParsePath("free")); fv.Exists() {
		iter, err := fv.List()
		if err != nil {
			return r, fieldError(field+".free", fv, "a list")
		}
		for i := 0; iter.Next(); i++ {
			p, err := compileFree(iter.Value(), fmt.Sprintf("%s.free[%d]", field, i))
			if err != nil {
				return r, err
			}
			r.Params = append(r.Params, p)
		}
	}

	if cv := rv.LookupPath(cue.ParsePath("constraints")); cv.Exists() {
		iter, err := cv.Fields()
		if err != nil {
			return r, formatCUEError(err)
		}
		for iter.Next() {
			target := iter.Selector().Unquoted()
			expr, err := iter.Value().String()
			if err != nil {
				return r, fieldError(field+".constraints."+target, iter.Value(), "an expression string")
			}
			r.Constraints = append(r.Constraints, ir.ConstraintSpec{Target: target, Expr: expr})
		}
	}

	weighting, err := optionalString(rv, "weighting", field, "")
	if err != nil {
		return r, err
	}
	r.Weighting = ir.Weighting(weighting)
	mode, err := optionalString(rv, "bound_mode", field, "")
	if err != nil {
		return r, err
	}
	r.BoundMode = ir.BoundMode(mode)
	if r.MaxIterations, err = optionalInt(rv, "max_iterations", field); err != nil {
		return r, err
	}
	if r.Patience, err = optionalInt(rv, "patience", field); err != nil {
		return r, err
	}
	if r.Tolerance, err = optionalFloat(rv, "tolerance", field, 0); err != nil {
		return r, err
	}
	return r, nil
}

// compileFree accepts a bare key or {key, min?, max?}.
func compileFree(v cue.Value, field string) (ir.ParamSpec, error) {
	if key, err := v.String(); err == nil {
		return ir.ParamSpec{Key: key}, nil
	}
	key, err := requiredString(v, "key", field)
	if err != nil {
		return ir.ParamSpec{}, err
	}
	p := ir.ParamSpec{Key: key}
	for _, b := range []struct {
		name string
		dst  **float64
	}{
		{"min", &p.Min},
		{"max", &p.Max},
	} {
		bv := v.LookupPath(cue.ParsePath(b.name))
		if !bv.Exists() {
			continue
		}
		f, err := bv.Float64()
		if err != nil {
			return p, fieldError(field+"."+b.name, bv, "a number")
		}
		*b.dst = &f
	}
	return p, nil
}
