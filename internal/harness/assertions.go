package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/easyscience/EasyDiffractionLib/internal/analysis"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

func assertStatus(res *analysis.Result, a Assertion) error {
	if string(res.Status()) != a.Status {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("status %s", a.Status),
			Actual:   fmt.Sprintf("status %s", res.Status()),
		}
	}
	return nil
}

func assertParameter(res *analysis.Result, a Assertion) error {
	p, ok := res.Parameter(a.Key)
	if !ok {
		return &AssertionError{
			Type:     AssertParameter,
			Expected: fmt.Sprintf("parameter %s", a.Key),
			Actual:   "not found in result",
		}
	}
	if !(math.Abs(p.Value-*a.Value) <= a.Tolerance) {
		return &AssertionError{
			Type:     AssertParameter,
			Expected: fmt.Sprintf("%s = %g ± %g", a.Key, *a.Value, a.Tolerance),
			Actual:   fmt.Sprintf("%s = %g (off by %g)", a.Key, p.Value, p.Value-*a.Value),
		}
	}
	return nil
}

func assertUncertainty(res *analysis.Result, a Assertion) error {
	p, ok := res.Parameter(a.Key)
	if !ok || !p.HasUncertainty {
		return &AssertionError{
			Type:     AssertUncertainty,
			Expected: fmt.Sprintf("uncertainty for %s", a.Key),
			Actual:   "none reported",
		}
	}
	if !inRange(p.Uncertainty, a.Min, a.Max) {
		return &AssertionError{
			Type:     AssertUncertainty,
			Expected: fmt.Sprintf("uncertainty of %s in %s", a.Key, describeRange(a.Min, a.Max)),
			Actual:   fmt.Sprintf("%g", p.Uncertainty),
		}
	}
	return nil
}

func assertReducedChiSquare(res *analysis.Result, a Assertion) error {
	chi2 := res.Stats().ReducedChiSquare
	if !inRange(chi2, a.Min, a.Max) {
		return &AssertionError{
			Type:     AssertReducedChiSquare,
			Expected: fmt.Sprintf("reduced χ² in %s", describeRange(a.Min, a.Max)),
			Actual:   fmt.Sprintf("%g", chi2),
		}
	}
	return nil
}

func assertIterations(res *analysis.Result, a Assertion) error {
	if n := res.Iterations(); n > a.Count {
		return &AssertionError{
			Type:     AssertIterations,
			Expected: fmt.Sprintf("at most %d iterations", a.Count),
			Actual:   fmt.Sprintf("%d iterations", n),
		}
	}
	return nil
}

// assertStoredRun compares the refined result with its stored copy.
// The store keeps non-finite values as NULL, so any non-finite value
// matches any other.
func assertStoredRun(refined, stored *analysis.Result) error {
	mismatch := func(what string, want, got any) error {
		return &AssertionError{
			Type:     AssertStoredRun,
			Expected: fmt.Sprintf("stored %s %v", what, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}

	if stored == nil {
		return mismatch("run", refined.RunID(), "nothing")
	}
	if refined.Status() != stored.Status() {
		return mismatch("status", refined.Status(), stored.Status())
	}
	if refined.Iterations() != stored.Iterations() {
		return mismatch("iteration count", refined.Iterations(), stored.Iterations())
	}
	hr, hs := refined.History(), stored.History()
	for i := range hr {
		if !sameFloat(hr[i].Objective, hs[i].Objective) || hr[i].Accepted != hs[i].Accepted {
			return mismatch(fmt.Sprintf("iteration %d", i), hr[i], hs[i])
		}
	}
	pr, ps := refined.Parameters(), stored.Parameters()
	if len(pr) != len(ps) {
		return mismatch("parameter count", len(pr), len(ps))
	}
	for i := range pr {
		if pr[i].Key != ps[i].Key || !sameFloat(pr[i].Value, ps[i].Value) || pr[i].HasUncertainty != ps[i].HasUncertainty {
			return mismatch("parameter", pr[i], ps[i])
		}
	}
	sr, ss := refined.Stats(), stored.Stats()
	if !sameFloat(sr.ChiSquare, ss.ChiSquare) || !sameFloat(sr.ReducedChiSquare, ss.ReducedChiSquare) {
		return mismatch("stats", sr, ss)
	}
	return nil
}

func sameFloat(a, b float64) bool {
	if !finite(a) || !finite(b) {
		return !finite(a) && !finite(b)
	}
	return a == b
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// inRange reports whether v lies in [min, max]; nil bounds are open.
// NaN is never in range.
func inRange(v float64, lo, hi *float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

func describeRange(lo, hi *float64) string {
	l, h := "-inf", "+inf"
	if lo != nil {
		l = fmt.Sprintf("%g", *lo)
	}
	if hi != nil {
		h = fmt.Sprintf("%g", *hi)
	}
	return fmt.Sprintf("[%s, %s]", l, h)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	if result.Refined == nil {
		return []string{"no refinement result to assert on"}
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStatus:
			err = assertStatus(result.Refined, assertion)
		case AssertParameter:
			err = assertParameter(result.Refined, assertion)
		case AssertUncertainty:
			err = assertUncertainty(result.Refined, assertion)
		case AssertReducedChiSquare:
			err = assertReducedChiSquare(result.Refined, assertion)
		case AssertIterations:
			err = assertIterations(result.Refined, assertion)
		case AssertStoredRun:
			err = assertStoredRun(result.Refined, result.Stored)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
