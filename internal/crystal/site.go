package crystal

import (
	"math"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/param"
)

// AtomSite is one asymmetric-unit atom owned by a Model.
type AtomSite struct {
	Label      string
	TypeSymbol string

	Fract     [3]*param.Parameter
	Occupancy *param.Parameter
	BIso      *param.Parameter
	// U holds U11, U22, U33, U12, U13, U23 for anisotropic sites; all nil
	// otherwise.
	U [6]*param.Parameter

	neutron Scatterer
	xray    Scatterer
}

// Anisotropic reports whether the site carries a U tensor.
func (s *AtomSite) Anisotropic() bool {
	return s.U[0] != nil
}

// Parameters lists the site's parameters in key order.
func (s *AtomSite) Parameters() []*param.Parameter {
	params := []*param.Parameter{s.Fract[0], s.Fract[1], s.Fract[2], s.Occupancy}
	if s.Anisotropic() {
		return append(params, s.U[:]...)
	}
	return append(params, s.BIso)
}

func (s *AtomSite) scatterer(radiation ir.Radiation) Scatterer {
	if radiation == ir.RadiationXray {
		return s.xray
	}
	return s.neutron
}

func (s *AtomSite) position() [3]float64 {
	return [3]float64{s.Fract[0].Value, s.Fract[1].Value, s.Fract[2].Value}
}

// debyeWaller returns the displacement factor for Miller indices seen
// through the generating operator (hr = h·R) at s = sinθ/λ.
func (s *AtomSite) debyeWaller(hr HKL, sinThetaOverLambda float64, rl [3]float64) float64 {
	if !s.Anisotropic() {
		return math.Exp(-s.BIso.Value * sinThetaOverLambda * sinThetaOverLambda)
	}
	h := [3]float64{float64(hr[0]), float64(hr[1]), float64(hr[2])}
	u := [6]float64{s.U[0].Value, s.U[1].Value, s.U[2].Value, s.U[3].Value, s.U[4].Value, s.U[5].Value}
	arg := h[0]*h[0]*rl[0]*rl[0]*u[0] +
		h[1]*h[1]*rl[1]*rl[1]*u[1] +
		h[2]*h[2]*rl[2]*rl[2]*u[2] +
		2*h[0]*h[1]*rl[0]*rl[1]*u[3] +
		2*h[0]*h[2]*rl[0]*rl[2]*u[4] +
		2*h[1]*h[2]*rl[1]*rl[2]*u[5]
	return math.Exp(-2 * math.Pi * math.Pi * arg)
}
