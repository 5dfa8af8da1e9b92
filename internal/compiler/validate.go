package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/easyscience/EasyDiffractionLib/internal/crystal"
	"github.com/easyscience/EasyDiffractionLib/internal/experiment"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/param"
)

// Validation error codes (E200-E299)
const (
	ErrNoPhases          = "E201" // at least one phase required
	ErrNoExperiments     = "E202" // at least one experiment required
	ErrDuplicateID       = "E203" // duplicate phase, experiment or site id
	ErrUnknownSpaceGroup = "E204" // space group not in the built-in table
	ErrInvalidLabel      = "E205" // id or label is not an identifier
	ErrUnknownPhase      = "E206" // experiment links a phase that does not exist
	ErrNoLinks           = "E207" // experiment links no phase
	ErrInvalidData       = "E208" // observed data missing or malformed
	ErrInvalidSetting    = "E209" // unknown enum value or out-of-range setting
	ErrInvalidKey        = "E210" // malformed parameter key or expression
	ErrInvalidBounds     = "E211" // min above max
	ErrFreeConstrained   = "E212" // parameter is both free and constrained
	ErrConstraintCycle   = "E213" // constraints depend on each other
)

// identifierPattern matches a Go-style identifier. Parameter keys are
// dotted chains of these, so ids and labels must be identifiers too.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled job against structural rules.
// Returns all errors found (does not fail-fast). Parameter keys are
// only checked for shape here; whether a key names a real parameter is
// decided when the registry is built.
func Validate(spec *ir.JobSpec) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validatePhases(spec.Phases)...)
	errs = append(errs, validateExperiments(spec)...)
	errs = append(errs, validateRefine(spec.Refine)...)
	return errs
}

func validatePhases(phases []ir.PhaseSpec) []ValidationError {
	var errs []ValidationError

	// E201: at least one phase
	if len(phases) == 0 {
		errs = append(errs, ValidationError{
			Field:   "phases",
			Message: "at least one phase is required",
			Code:    ErrNoPhases,
		})
	}

	ids := make(map[string]bool)
	for _, p := range phases {
		field := "phases." + p.ID
		errs = append(errs, checkIdentifier(field, p.ID)...)

		// E203: duplicate phase id
		if ids[p.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate phase id: %q", p.ID),
				Code:    ErrDuplicateID,
			})
		}
		ids[p.ID] = true

		// E204: space group must be known
		if _, err := crystal.LookupSpaceGroup(p.SpaceGroup); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".space_group",
				Message: err.Error(),
				Code:    ErrUnknownSpaceGroup,
			})
		}

		// E209: cell must be physical
		if err := crystal.CellFromArray(p.Cell.Array()).Validate(); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".cell",
				Message: err.Error(),
				Code:    ErrInvalidSetting,
			})
		}

		labels := make(map[string]bool)
		for _, s := range p.Sites {
			sf := field + ".atom_sites." + s.Label
			errs = append(errs, checkIdentifier(sf, s.Label)...)
			if labels[s.Label] {
				errs = append(errs, ValidationError{
					Field:   sf,
					Message: fmt.Sprintf("duplicate site label: %q", s.Label),
					Code:    ErrDuplicateID,
				})
			}
			labels[s.Label] = true

			if s.Occupancy < 0 || s.Occupancy > 1 {
				errs = append(errs, ValidationError{
					Field:   sf + ".occupancy",
					Message: fmt.Sprintf("occupancy must be within [0, 1], got %g", s.Occupancy),
					Code:    ErrInvalidSetting,
				})
			}
		}
	}
	return errs
}

func validateExperiments(spec *ir.JobSpec) []ValidationError {
	var errs []ValidationError

	// E202: at least one experiment
	if len(spec.Experiments) == 0 {
		errs = append(errs, ValidationError{
			Field:   "experiments",
			Message: "at least one experiment is required",
			Code:    ErrNoExperiments,
		})
	}

	ids := make(map[string]bool)
	for _, e := range spec.Experiments {
		field := "experiments." + e.ID
		errs = append(errs, checkIdentifier(field, e.ID)...)

		if ids[e.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate experiment id: %q", e.ID),
				Code:    ErrDuplicateID,
			})
		}
		ids[e.ID] = true

		if e.Radiation != ir.RadiationNeutron && e.Radiation != ir.RadiationXray {
			errs = append(errs, ValidationError{
				Field:   field + ".radiation",
				Message: fmt.Sprintf("radiation must be %q or %q, got %q", ir.RadiationNeutron, ir.RadiationXray, e.Radiation),
				Code:    ErrInvalidSetting,
			})
		}
		if !(e.Instrument.Wavelength > 0) {
			errs = append(errs, ValidationError{
				Field:   field + ".instrument.wavelength",
				Message: fmt.Sprintf("wavelength must be positive, got %g", e.Instrument.Wavelength),
				Code:    ErrInvalidSetting,
			})
		}
		if e.Instrument.PeakCutoff < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".instrument.peak_cutoff",
				Message: fmt.Sprintf("peak cutoff must not be negative, got %g", e.Instrument.PeakCutoff),
				Code:    ErrInvalidSetting,
			})
		}
		switch e.Background.Kind {
		case "", ir.BackgroundPoint, ir.BackgroundChebyshev:
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".background.type",
				Message: fmt.Sprintf("background type must be %q or %q, got %q", ir.BackgroundPoint, ir.BackgroundChebyshev, e.Background.Kind),
				Code:    ErrInvalidSetting,
			})
		}

		// E207: at least one linked phase
		if len(e.Links) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".linked_phases",
				Message: "at least one linked phase is required",
				Code:    ErrNoLinks,
			})
		}
		// E206: linked phases must exist
		for _, l := range e.Links {
			if _, ok := spec.Phase(l.Phase); !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".linked_phases." + l.Phase,
					Message: fmt.Sprintf("unknown phase %q", l.Phase),
					Code:    ErrUnknownPhase,
				})
			}
		}

		// E208: data must be present, inline or by file
		switch {
		case e.DataFile != "":
		case len(e.X) == 0:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "either data_file or inline x/y arrays are required",
				Code:    ErrInvalidData,
			})
		default:
			if err := experiment.ValidateData(e); err != nil {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: err.Error(),
					Code:    ErrInvalidData,
				})
			}
		}
	}
	return errs
}

func validateRefine(r ir.RefineSpec) []ValidationError {
	var errs []ValidationError

	switch r.Weighting {
	case "", ir.WeightingUncertainty, ir.WeightingUniform:
	default:
		errs = append(errs, ValidationError{
			Field:   "refine.weighting",
			Message: fmt.Sprintf("weighting must be %q or %q, got %q", ir.WeightingUncertainty, ir.WeightingUniform, r.Weighting),
			Code:    ErrInvalidSetting,
		})
	}
	switch r.BoundMode {
	case "", ir.BoundClamp, ir.BoundReflect:
	default:
		errs = append(errs, ValidationError{
			Field:   "refine.bound_mode",
			Message: fmt.Sprintf("bound mode must be %q or %q, got %q", ir.BoundClamp, ir.BoundReflect, r.BoundMode),
			Code:    ErrInvalidSetting,
		})
	}
	if r.MaxIterations < 0 || r.Patience < 0 || r.Tolerance < 0 {
		errs = append(errs, ValidationError{
			Field:   "refine",
			Message: "max_iterations, patience and tolerance must not be negative",
			Code:    ErrInvalidSetting,
		})
	}

	free := make(map[string]bool)
	for i, p := range r.Params {
		field := fmt.Sprintf("refine.free[%d]", i)
		errs = append(errs, checkKey(field, p.Key)...)
		if free[p.Key] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("parameter %q listed twice", p.Key),
				Code:    ErrDuplicateID,
			})
		}
		free[p.Key] = true

		// E211: min must not exceed max
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("min %g exceeds max %g", *p.Min, *p.Max),
				Code:    ErrInvalidBounds,
			})
		}
	}

	deps := make(map[string][]string)
	for _, c := range r.Constraints {
		field := "refine.constraints." + c.Target
		errs = append(errs, checkKey(field, c.Target)...)

		// E212: a constrained parameter cannot also be free
		if free[c.Target] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("parameter %q is both free and constrained", c.Target),
				Code:    ErrFreeConstrained,
			})
		}

		expr, err := param.Parse(c.Expr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: err.Error(),
				Code:    ErrInvalidKey,
			})
			continue
		}
		deps[c.Target] = param.Refs(expr)
	}

	// E213: constraints must be acyclic
	if cycle := param.FindCycle(deps); cycle != nil {
		errs = append(errs, ValidationError{
			Field:   "refine.constraints",
			Message: fmt.Sprintf("constraint cycle: %v", cycle),
			Code:    ErrConstraintCycle,
		})
	}
	return errs
}

func checkIdentifier(field, name string) []ValidationError {
	if identifierPattern.MatchString(name) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("%q is not an identifier (letters, digits and _, not starting with a digit)", name),
		Code:    ErrInvalidLabel,
	}}
}

// checkKey validates a dotted parameter key.
func checkKey(field, key string) []ValidationError {
	segments := strings.Split(key, ".")
	if len(segments) < 2 || slices.ContainsFunc(segments, func(s string) bool { return !identifierPattern.MatchString(s) }) {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("malformed parameter key %q", key),
			Code:    ErrInvalidKey,
		}}
	}
	return nil
}
