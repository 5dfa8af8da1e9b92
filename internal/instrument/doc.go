// Package instrument models a constant-wavelength powder diffractometer:
// peak positions, Thompson–Cox–Hastings pseudo-Voigt peak shapes, the
// Lorentz-polarization correction and background functions.
package instrument
