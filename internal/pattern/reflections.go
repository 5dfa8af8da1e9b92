package pattern

import (
	"fmt"
	"math"
	"slices"

	"github.com/easyscience/EasyDiffractionLib/internal/crystal"
)

// Reflection is one symmetry-unique, allowed reflection.
type Reflection struct {
	HKL          crystal.HKL
	Multiplicity int
	D            float64
}

// Enumerate lists the reflections with dMin <= d <= dMax, one per Laue
// orbit, systematic absences removed. Order: d descending, then indices
// descending.
func Enumerate(group *crystal.SpaceGroup, cell crystal.Cell, dMin, dMax float64) ([]Reflection, error) {
	if err := cell.Validate(); err != nil {
		return nil, fmt.Errorf("enumerate reflections: %w", err)
	}
	if !(dMin > 0) || dMax < dMin {
		return nil, fmt.Errorf("enumerate reflections: invalid d range [%g, %g]", dMin, dMax)
	}
	recip, err := cell.Reciprocal()
	if err != nil {
		return nil, fmt.Errorf("enumerate reflections: %w", err)
	}

	// |h| ≤ a/d for every orbit member, so the box holds each representative.
	lim := [3]int{
		int(math.Floor(cell.A / dMin)),
		int(math.Floor(cell.B / dMin)),
		int(math.Floor(cell.C / dMin)),
	}

	var out []Reflection
	for h := -lim[0]; h <= lim[0]; h++ {
		for k := -lim[1]; k <= lim[1]; k++ {
			for l := -lim[2]; l <= lim[2]; l++ {
				hkl := crystal.HKL{h, k, l}
				if h == 0 && k == 0 && l == 0 {
					continue
				}
				d := recip.DSpacing(hkl)
				if d < dMin || d > dMax {
					continue
				}
				rep, mult := group.Representative(hkl)
				if rep != hkl || group.IsAbsent(hkl) {
					continue
				}
				out = append(out, Reflection{HKL: hkl, Multiplicity: mult, D: d})
			}
		}
	}

	slices.SortFunc(out, func(a, b Reflection) int {
		if a.D != b.D {
			if a.D > b.D {
				return -1
			}
			return 1
		}
		for i := range 3 {
			if a.HKL[i] != b.HKL[i] {
				return b.HKL[i] - a.HKL[i]
			}
		}
		return 0
	})
	return out, nil
}
