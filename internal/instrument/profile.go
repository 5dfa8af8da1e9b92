package instrument

import "math"

// minFWHM keeps peak widths positive when refined resolution terms drive
// the Gaussian variance negative.
const minFWHM = 1e-6

// PeakShape returns the total FWHM (degrees) and Lorentzian fraction η at
// 2θ using the Thompson–Cox–Hastings combination of the Caglioti Gaussian
// width and the Lorentzian width.
func (in *Instrument) PeakShape(twoTheta float64) (fwhm, eta float64) {
	theta := radians(twoTheta) / 2
	tan := math.Tan(theta)

	hg2 := in.U.Value*tan*tan + in.V.Value*tan + in.W.Value
	hg := math.Sqrt(math.Max(hg2, 0))
	hl := math.Max(in.X.Value*tan+in.Y.Value/math.Cos(theta), 0)

	return tch(hg, hl)
}

// tch combines Gaussian and Lorentzian widths (Thompson, Cox & Hastings,
// J. Appl. Cryst. 20, 1987).
func tch(hg, hl float64) (fwhm, eta float64) {
	hg2, hl2 := hg*hg, hl*hl
	h5 := hg2*hg2*hg +
		2.69269*hg2*hg2*hl +
		2.42843*hg2*hg*hl2 +
		4.47163*hg2*hl2*hl +
		0.07842*hg*hl2*hl2 +
		hl2*hl2*hl
	fwhm = math.Max(math.Pow(h5, 0.2), minFWHM)

	q := hl / fwhm
	eta = 1.36603*q - 0.47719*q*q + 0.11116*q*q*q
	return fwhm, math.Min(math.Max(eta, 0), 1)
}

// Kernel evaluates the area-normalized pseudo-Voigt at offset dx from the
// peak centre (all in degrees).
func Kernel(dx, fwhm, eta float64) float64 {
	x2 := dx * dx / (fwhm * fwhm)
	gauss := (2 / fwhm) * math.Sqrt(math.Ln2/math.Pi) * math.Exp(-4*math.Ln2*x2)
	lorentz := (2 / (math.Pi * fwhm)) / (1 + 4*x2)
	return eta*lorentz + (1-eta)*gauss
}
