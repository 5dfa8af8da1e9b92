package instrument

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/param"
)

// Background produces the additive background of an experiment.
type Background interface {
	param.Source
	// Evaluate returns the background at every grid point.
	Evaluate(grid []float64) []float64
}

// NewBackground builds the background described by spec. An empty spec
// gives a zero background.
func NewBackground(expID string, spec ir.BackgroundSpec) (Background, error) {
	switch spec.Kind {
	case ir.BackgroundPoint, "":
		return NewPointBackground(expID, spec.Points)
	case ir.BackgroundChebyshev:
		return NewChebyshevBackground(expID, spec.Coefficients), nil
	}
	return nil, &ir.ModelValidationError{
		Subject: expID + ".background",
		Message: fmt.Sprintf("unknown background type %q", spec.Kind),
	}
}

// PointBackground interpolates linearly between control points and
// extrapolates the end values as constants. Control positions are fixed;
// intensities are refinable.
type PointBackground struct {
	xs []float64
	ys []*param.Parameter
}

// NewPointBackground requires strictly increasing control positions.
func NewPointBackground(expID string, points []ir.PointSpec) (*PointBackground, error) {
	b := &PointBackground{}
	for i, pt := range points {
		if i > 0 && !(pt.X > points[i-1].X) {
			return nil, &ir.ModelValidationError{
				Subject: expID + ".background",
				Message: fmt.Sprintf("point %d at %g is not above %g", i, pt.X, points[i-1].X),
			}
		}
		b.xs = append(b.xs, pt.X)
		b.ys = append(b.ys, param.New(expID+".background.p"+strconv.Itoa(i), pt.Y, ""))
	}
	return b, nil
}

// Parameters implements param.Source.
func (b *PointBackground) Parameters() []*param.Parameter {
	return slices.Clone(b.ys)
}

// Evaluate implements Background. The result at x always lies between the
// values of the two control points enclosing x.
func (b *PointBackground) Evaluate(grid []float64) []float64 {
	out := make([]float64, len(grid))
	n := len(b.xs)
	if n == 0 {
		return out
	}
	for i, x := range grid {
		j := sort.SearchFloat64s(b.xs, x)
		switch {
		case j == 0:
			out[i] = b.ys[0].Value
		case j == n:
			out[i] = b.ys[n-1].Value
		default:
			x0, x1 := b.xs[j-1], b.xs[j]
			y0, y1 := b.ys[j-1].Value, b.ys[j].Value
			t := (x - x0) / (x1 - x0)
			out[i] = y0 + t*(y1-y0)
		}
	}
	return out
}

// ChebyshevBackground is a sum of Chebyshev polynomials of the first kind
// over the grid range mapped to [-1, 1].
type ChebyshevBackground struct {
	coeffs []*param.Parameter
}

// NewChebyshevBackground creates one parameter per coefficient.
func NewChebyshevBackground(expID string, coeffs []float64) *ChebyshevBackground {
	b := &ChebyshevBackground{}
	for i, c := range coeffs {
		b.coeffs = append(b.coeffs, param.New(expID+".background.c"+strconv.Itoa(i), c, ""))
	}
	return b
}

// Parameters implements param.Source.
func (b *ChebyshevBackground) Parameters() []*param.Parameter {
	return slices.Clone(b.coeffs)
}

// Evaluate implements Background.
func (b *ChebyshevBackground) Evaluate(grid []float64) []float64 {
	out := make([]float64, len(grid))
	if len(grid) == 0 || len(b.coeffs) == 0 {
		return out
	}
	lo, hi := grid[0], grid[len(grid)-1]
	for i, x := range grid {
		t := 0.0
		if hi > lo {
			t = 2*(x-lo)/(hi-lo) - 1
		}
		tPrev, tCur := 1.0, t
		sum := b.coeffs[0].Value
		for k := 1; k < len(b.coeffs); k++ {
			sum += b.coeffs[k].Value * tCur
			tPrev, tCur = tCur, 2*t*tCur-tPrev
		}
		out[i] = sum
	}
	return out
}
