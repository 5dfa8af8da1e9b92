package crystal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Cell holds lattice constants in Å and degrees.
type Cell struct {
	A, B, C            float64
	Alpha, Beta, Gamma float64
}

// CellFromArray builds a Cell from a, b, c, α, β, γ.
func CellFromArray(v [6]float64) Cell {
	return Cell{v[0], v[1], v[2], v[3], v[4], v[5]}
}

// Array returns a, b, c, α, β, γ.
func (c Cell) Array() [6]float64 {
	return [6]float64{c.A, c.B, c.C, c.Alpha, c.Beta, c.Gamma}
}

// Validate checks lengths, angles and that the angles close a cell.
func (c Cell) Validate() error {
	if !(c.A > 0 && c.B > 0 && c.C > 0) {
		return fmt.Errorf("cell lengths must be positive, got %g %g %g", c.A, c.B, c.C)
	}
	for _, ang := range []float64{c.Alpha, c.Beta, c.Gamma} {
		if !(ang > 0 && ang < 180) {
			return fmt.Errorf("cell angle %g outside (0, 180)", ang)
		}
	}
	if c.volumeFactor() <= 0 {
		return fmt.Errorf("cell angles %g %g %g do not form a cell", c.Alpha, c.Beta, c.Gamma)
	}
	return nil
}

// volumeFactor is V²/(abc)².
func (c Cell) volumeFactor() float64 {
	ca, cb, cg := cosd(c.Alpha), cosd(c.Beta), cosd(c.Gamma)
	return 1 - ca*ca - cb*cb - cg*cg + 2*ca*cb*cg
}

// Volume returns the cell volume in Å³.
func (c Cell) Volume() float64 {
	return c.A * c.B * c.C * math.Sqrt(c.volumeFactor())
}

// Metric returns the direct metric tensor G.
func (c Cell) Metric() *mat.SymDense {
	ca, cb, cg := cosd(c.Alpha), cosd(c.Beta), cosd(c.Gamma)
	return mat.NewSymDense(3, []float64{
		c.A * c.A, c.A * c.B * cg, c.A * c.C * cb,
		c.A * c.B * cg, c.B * c.B, c.B * c.C * ca,
		c.A * c.C * cb, c.B * c.C * ca, c.C * c.C,
	})
}

// Reciprocal holds the reciprocal metric tensor G* = G⁻¹ for fast d-spacing
// evaluation.
type Reciprocal [3][3]float64

// Reciprocal inverts the metric tensor. The cell must be valid.
func (c Cell) Reciprocal() (Reciprocal, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(c.Metric()); !ok {
		return Reciprocal{}, fmt.Errorf("metric tensor of cell %v is not positive definite", c.Array())
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return Reciprocal{}, fmt.Errorf("invert metric tensor: %w", err)
	}
	var g Reciprocal
	for i := range 3 {
		for j := range 3 {
			g[i][j] = inv.At(i, j)
		}
	}
	return g, nil
}

// InvDSquared returns 1/d² = hᵀ G* h.
func (g Reciprocal) InvDSquared(h HKL) float64 {
	var sum float64
	for i := range 3 {
		for j := range 3 {
			sum += float64(h[i]) * g[i][j] * float64(h[j])
		}
	}
	return sum
}

// DSpacing returns the interplanar spacing of h in Å.
func (g Reciprocal) DSpacing(h HKL) float64 {
	return 1 / math.Sqrt(g.InvDSquared(h))
}

// Lengths returns a*, b*, c*.
func (g Reciprocal) Lengths() [3]float64 {
	return [3]float64{math.Sqrt(g[0][0]), math.Sqrt(g[1][1]), math.Sqrt(g[2][2])}
}

// consistentWith checks the cell against the lattice restrictions of a
// crystal system within tol.
func (c Cell) consistentWith(sys System, tol float64) error {
	eq := func(x, y float64) bool { return math.Abs(x-y) <= tol }
	right := func(ang float64) bool { return eq(ang, 90) }

	switch sys {
	case Monoclinic:
		if !right(c.Alpha) || !right(c.Gamma) {
			return fmt.Errorf("monoclinic cell needs alpha = gamma = 90")
		}
	case Orthorhombic:
		if !right(c.Alpha) || !right(c.Beta) || !right(c.Gamma) {
			return fmt.Errorf("orthorhombic cell needs all angles 90")
		}
	case Tetragonal:
		if !eq(c.A, c.B) || !right(c.Alpha) || !right(c.Beta) || !right(c.Gamma) {
			return fmt.Errorf("tetragonal cell needs a = b and all angles 90")
		}
	case Trigonal, Hexagonal:
		if !eq(c.A, c.B) || !right(c.Alpha) || !right(c.Beta) || !eq(c.Gamma, 120) {
			return fmt.Errorf("%s cell needs a = b, alpha = beta = 90, gamma = 120", sys)
		}
	case Cubic:
		if !eq(c.A, c.B) || !eq(c.A, c.C) || !right(c.Alpha) || !right(c.Beta) || !right(c.Gamma) {
			return fmt.Errorf("cubic cell needs a = b = c and all angles 90")
		}
	}
	return nil
}

func cosd(deg float64) float64 {
	return math.Cos(deg * math.Pi / 180)
}
