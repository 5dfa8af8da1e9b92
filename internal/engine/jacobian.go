package engine

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// Relative forward-difference step and the magnitude floor it scales.
const (
	diffStep  = 1e-6
	diffFloor = 1e-2
)

// residuals evaluates the objective once and rejects non-finite entries.
func (ru *run) residuals(iteration int) ([]float64, error) {
	ru.clock.Next()
	res, err := ru.obj.Residuals()
	if err != nil {
		return nil, err
	}
	for _, v := range res {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ir.NumericalDivergenceError{Iteration: iteration, Where: "residual"}
		}
	}
	return res, nil
}

// jacobian returns ∂r/∂x (N×P) at x by forward differences, stepping
// backward where the forward step would cross the upper bound. Registry
// values are restored before returning.
func (ru *run) jacobian(x, res []float64, iteration int) (*mat.Dense, error) {
	snap := ru.reg.Snapshot()
	defer ru.reg.Restore(snap)

	_, hiBound := ru.reg.Bounds()
	keys := ru.reg.FreeKeys()
	jac := mat.NewDense(len(res), len(x), nil)
	col := make([]float64, len(res))

	for j := range x {
		h := diffStep * max(math.Abs(x[j]), diffFloor)
		if x[j]+h > hiBound[j] {
			h = -h
		}
		trial := slices.Clone(x)
		trial[j] += h
		stored, err := ru.reg.Apply(trial)
		if err != nil {
			return nil, err
		}
		dx := stored[j] - x[j]
		if dx == 0 {
			ru.reg.Restore(snap)
			continue
		}

		ru.clock.Next()
		shifted, err := ru.obj.Residuals()
		ru.reg.Restore(snap)
		if err != nil {
			return nil, err
		}
		for i := range col {
			col[i] = (shifted[i] - res[i]) / dx
			if math.IsNaN(col[i]) || math.IsInf(col[i], 0) {
				return nil, &ir.NumericalDivergenceError{Iteration: iteration, Where: "jacobian", Key: keys[j]}
			}
		}
		jac.SetCol(j, col)
	}
	return jac, nil
}

// normalEquations returns JᵀJ and Jᵀr.
func normalEquations(jac *mat.Dense, res []float64) (*mat.SymDense, *mat.VecDense) {
	_, p := jac.Dims()
	a := mat.NewSymDense(p, nil)
	a.SymOuterK(1, jac.T())
	var g mat.VecDense
	g.MulVec(jac.T(), mat.NewVecDense(len(res), res))
	return a, &g
}

// solveStep solves (A + λ·diag(A))δ = −g. A zero diagonal entry is damped
// as if it were 1. ok is false when the damped matrix is not positive
// definite or the solution is not finite.
func solveStep(a *mat.SymDense, g *mat.VecDense, lambda float64) (delta []float64, ok bool) {
	p := a.SymmetricDim()
	m := mat.NewSymDense(p, nil)
	m.CopySym(a)
	for i := 0; i < p; i++ {
		d := a.At(i, i)
		if d == 0 {
			d = 1
		}
		m.SetSym(i, i, a.At(i, i)+lambda*d)
	}

	var chol mat.Cholesky
	if !chol.Factorize(m) {
		return nil, false
	}
	rhs := mat.NewVecDense(p, nil)
	rhs.ScaleVec(-1, g)
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, rhs); err != nil {
		return nil, false
	}
	delta = make([]float64, p)
	for i := range delta {
		delta[i] = sol.AtVec(i)
		if math.IsNaN(delta[i]) || math.IsInf(delta[i], 0) {
			return nil, false
		}
	}
	return delta, true
}

// covarianceDiagonal returns diag((JᵀJ)⁻¹), or ok=false when JᵀJ is not
// invertible.
func covarianceDiagonal(a *mat.SymDense) (diag []float64, ok bool) {
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, false
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, false
	}
	p := a.SymmetricDim()
	diag = make([]float64, p)
	for i := range diag {
		diag[i] = inv.At(i, i)
		if diag[i] < 0 || math.IsNaN(diag[i]) || math.IsInf(diag[i], 0) {
			return nil, false
		}
	}
	return diag, true
}
