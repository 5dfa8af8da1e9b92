package crystal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SymOp is a symmetry operator r' = R·r + T acting on fractional
// coordinates. Translations are stored exactly in twelfths, in [0, 12).
type SymOp struct {
	R [3][3]int
	T [3]int
}

// Identity is the identity operator.
var Identity = SymOp{R: [3][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}

// ParseSymOp parses a Jones-faithful triplet such as "-y,x-y,z+1/3".
func ParseSymOp(s string) (SymOp, error) {
	parts := strings.Split(strings.ReplaceAll(strings.ToLower(s), " ", ""), ",")
	if len(parts) != 3 {
		return SymOp{}, fmt.Errorf("symop %q: want 3 components, got %d", s, len(parts))
	}
	var op SymOp
	for row, part := range parts {
		if err := parseComponent(part, &op.R[row], &op.T[row]); err != nil {
			return SymOp{}, fmt.Errorf("symop %q: %w", s, err)
		}
	}
	return op, nil
}

// MustParseSymOp is like ParseSymOp but panics. Used by the static table.
func MustParseSymOp(s string) SymOp {
	op, err := ParseSymOp(s)
	if err != nil {
		panic(err)
	}
	return op
}

func parseComponent(part string, row *[3]int, t *int) error {
	if part == "" {
		return fmt.Errorf("empty component")
	}
	i := 0
	for i < len(part) {
		sign := 1
		switch part[i] {
		case '+':
			i++
		case '-':
			sign = -1
			i++
		}
		if i >= len(part) {
			return fmt.Errorf("dangling sign in %q", part)
		}
		switch c := part[i]; {
		case c >= 'x' && c <= 'z':
			row[c-'x'] += sign
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(part) && (part[j] >= '0' && part[j] <= '9' || part[j] == '/' || part[j] == '.') {
				j++
			}
			twelfths, err := parseTwelfths(part[i:j])
			if err != nil {
				return err
			}
			*t += sign * twelfths
			i = j
		default:
			return fmt.Errorf("unexpected %q in %q", c, part)
		}
	}
	*t = mod12(*t)
	return nil
}

// parseTwelfths converts "1/2", "2/3" or "0.25" to an exact count of
// twelfths.
func parseTwelfths(s string) (int, error) {
	var v float64
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("translation %q: %w", s, err)
		}
		d, err := strconv.Atoi(den)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("translation %q: bad denominator", s)
		}
		v = float64(n) / float64(d)
	} else {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("translation %q: %w", s, err)
		}
		v = f
	}
	twelfths := math.Round(v * 12)
	if math.Abs(twelfths-v*12) > 1e-9 {
		return 0, fmt.Errorf("translation %q is not a multiple of 1/12", s)
	}
	return int(twelfths), nil
}

func mod12(v int) int {
	v %= 12
	if v < 0 {
		v += 12
	}
	return v
}

// Compose returns the operator applying b first, then a.
func (a SymOp) Compose(b SymOp) SymOp {
	var c SymOp
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				c.R[i][j] += a.R[i][k] * b.R[k][j]
			}
		}
		t := a.T[i]
		for k := range 3 {
			t += a.R[i][k] * b.T[k]
		}
		c.T[i] = mod12(t)
	}
	return c
}

// Apply maps fractional coordinates, wrapping the result into [0, 1).
func (a SymOp) Apply(r [3]float64) [3]float64 {
	var out [3]float64
	for i := range 3 {
		v := float64(a.T[i]) / 12
		for k := range 3 {
			v += float64(a.R[i][k]) * r[k]
		}
		out[i] = wrap(v)
	}
	return out
}

// TransformHKL returns h·R, the Miller indices seen through the rotation.
func (a SymOp) TransformHKL(h HKL) HKL {
	var out HKL
	for j := range 3 {
		for i := range 3 {
			out[j] += h[i] * a.R[i][j]
		}
	}
	return out
}

// PhaseShift returns h·T in twelfths, reduced mod 12.
func (a SymOp) PhaseShift(h HKL) int {
	return mod12(h[0]*a.T[0] + h[1]*a.T[1] + h[2]*a.T[2])
}

func wrap(v float64) float64 {
	v -= math.Floor(v)
	if v >= 1 {
		v = 0
	}
	return v
}
