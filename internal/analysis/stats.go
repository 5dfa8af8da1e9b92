package analysis

import (
	"fmt"
	"math"
)

// Stats holds goodness-of-fit statistics over the included points.
type Stats struct {
	// ChiSquare is Σ w(yobs − ycalc)².
	ChiSquare float64 `json:"chi_square"`
	// ReducedChiSquare is ChiSquare/(N − P); NaN when N ≤ P.
	ReducedChiSquare float64 `json:"reduced_chi_square"`
	// Rp is Σ|yobs − ycalc| / Σ|yobs|.
	Rp float64 `json:"r_p"`
	// Rwp is sqrt(Σ w(yobs − ycalc)² / Σ w yobs²).
	Rwp float64 `json:"r_wp"`
	// Rexp is sqrt((N − P) / Σ w yobs²).
	Rexp float64 `json:"r_exp"`
	// N counts points with non-zero weight.
	N int `json:"n_points"`
	// P counts free parameters.
	P int `json:"n_free"`
}

// ComputeStats evaluates the standard profile statistics. Points with zero
// weight are skipped.
func ComputeStats(obs, calc, weights []float64, nFree int) (Stats, error) {
	if len(obs) != len(calc) || len(obs) != len(weights) {
		return Stats{}, fmt.Errorf("compute stats: length mismatch obs=%d calc=%d weights=%d", len(obs), len(calc), len(weights))
	}

	var chi2, absDiff, absObs, wObs2 float64
	n := 0
	for i, w := range weights {
		if w == 0 {
			continue
		}
		n++
		d := obs[i] - calc[i]
		chi2 += w * d * d
		absDiff += math.Abs(d)
		absObs += math.Abs(obs[i])
		wObs2 += w * obs[i] * obs[i]
	}

	s := Stats{ChiSquare: chi2, N: n, P: nFree}
	dof := float64(n - nFree)
	if dof > 0 {
		s.ReducedChiSquare = chi2 / dof
	} else {
		s.ReducedChiSquare = math.NaN()
	}
	s.Rp = ratio(absDiff, absObs)
	s.Rwp = math.Sqrt(ratio(chi2, wObs2))
	if dof > 0 {
		s.Rexp = math.Sqrt(ratio(dof, wObs2))
	} else {
		s.Rexp = math.NaN()
	}
	return s, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}
