package instrument

import (
	"fmt"
	"math"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/param"
)

// DefaultPeakCutoff is the half-width of a peak's evaluation window in
// FWHM units when none is configured.
const DefaultPeakCutoff = 10.0

// Instrument holds the refinable instrument parameters of one experiment.
type Instrument struct {
	Radiation ir.Radiation

	Wavelength *param.Parameter
	ZeroShift  *param.Parameter
	// Caglioti Gaussian terms.
	U, V, W *param.Parameter
	// Lorentzian size and strain terms.
	X, Y *param.Parameter

	PeakCutoff float64
}

// New validates the settings and creates the parameters under
// "<expID>.instrument.".
func New(expID string, radiation ir.Radiation, spec ir.InstrumentSpec) (*Instrument, error) {
	subject := expID + ".instrument"
	switch radiation {
	case ir.RadiationNeutron, ir.RadiationXray:
	default:
		return nil, &ir.ModelValidationError{Subject: subject, Message: fmt.Sprintf("unknown radiation %q", radiation)}
	}
	if !(spec.Wavelength > 0) || math.IsInf(spec.Wavelength, 1) {
		return nil, &ir.ModelValidationError{Subject: subject, Message: fmt.Sprintf("wavelength must be positive, got %g", spec.Wavelength)}
	}
	if spec.PeakCutoff < 0 {
		return nil, &ir.ModelValidationError{Subject: subject, Message: fmt.Sprintf("peak cutoff must not be negative, got %g", spec.PeakCutoff)}
	}
	cutoff := spec.PeakCutoff
	if cutoff == 0 {
		cutoff = DefaultPeakCutoff
	}

	prefix := subject + "."
	return &Instrument{
		Radiation:  radiation,
		Wavelength: param.Bounded(prefix+"wavelength", spec.Wavelength, 0, math.Inf(1), "Å"),
		ZeroShift:  param.New(prefix+"zero_shift", spec.ZeroShift, "deg"),
		U:          param.New(prefix+"resolution_u", spec.ResolutionU, "deg²"),
		V:          param.New(prefix+"resolution_v", spec.ResolutionV, "deg²"),
		W:          param.New(prefix+"resolution_w", spec.ResolutionW, "deg²"),
		X:          param.New(prefix+"resolution_x", spec.ResolutionX, "deg"),
		Y:          param.New(prefix+"resolution_y", spec.ResolutionY, "deg"),
		PeakCutoff: cutoff,
	}, nil
}

// Parameters implements param.Source.
func (in *Instrument) Parameters() []*param.Parameter {
	return []*param.Parameter{in.Wavelength, in.ZeroShift, in.U, in.V, in.W, in.X, in.Y}
}

// PeakPosition returns the observed 2θ (degrees) of a reflection with
// spacing d. ok is false when the reflection lies beyond 2θ = 180°.
func (in *Instrument) PeakPosition(d float64) (twoTheta float64, ok bool) {
	sinTheta := in.Wavelength.Value / (2 * d)
	if !(sinTheta <= 1) {
		return 0, false
	}
	return 2*degrees(math.Asin(sinTheta)) + in.ZeroShift.Value, true
}

// DRange returns the d-spacing window visible on [twoThetaMin, twoThetaMax]
// including the zero shift and a margin in degrees for peak tails.
func (in *Instrument) DRange(twoThetaMin, twoThetaMax, margin float64) (dMin, dMax float64) {
	lo := twoThetaMin - in.ZeroShift.Value - margin
	hi := twoThetaMax - in.ZeroShift.Value + margin
	lam := in.Wavelength.Value
	dMin = lam / 2
	if hi < 180 {
		dMin = lam / (2 * math.Sin(radians(hi)/2))
	}
	dMax = math.Inf(1)
	if lo > 0 {
		dMax = lam / (2 * math.Sin(radians(lo)/2))
	}
	return dMin, dMax
}

// LorentzPolarization returns the Lorentz-polarization factor at 2θ
// (degrees). Neutron data carry the Lorentz term only.
func (in *Instrument) LorentzPolarization(twoTheta float64) float64 {
	theta := radians(twoTheta) / 2
	sin, cos := math.Sincos(theta)
	lorentz := 1 / (sin * sin * cos)
	if in.Radiation == ir.RadiationNeutron {
		return lorentz
	}
	c2 := math.Cos(2 * theta)
	return lorentz * (1 + c2*c2)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
