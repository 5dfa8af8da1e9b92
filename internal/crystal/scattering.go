package crystal

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// cromerMann holds the four-Gaussian X-ray form factor fit
// f(s) = Σ aᵢ exp(-bᵢ s²) + c with s = sinθ/λ in Å⁻¹.
type cromerMann struct {
	a [4]float64
	b [4]float64
	c float64
}

func (cm cromerMann) at(s float64) float64 {
	s2 := s * s
	f := cm.c
	for i := range 4 {
		f += cm.a[i] * math.Exp(-cm.b[i]*s2)
	}
	return f
}

// International Tables for Crystallography Vol. C, Table 6.1.1.4.
var xrayTable = map[string]cromerMann{
	"H":  {[4]float64{0.489918, 0.262003, 0.196767, 0.049879}, [4]float64{20.6593, 7.74039, 49.5519, 2.20159}, 0.001305},
	"Li": {[4]float64{1.12820, 0.750800, 0.617500, 0.465300}, [4]float64{3.95460, 1.05240, 85.3905, 168.261}, 0.037700},
	"C":  {[4]float64{2.31000, 1.02000, 1.58860, 0.865000}, [4]float64{20.8439, 10.2075, 0.568700, 51.6512}, 0.215600},
	"N":  {[4]float64{12.2126, 3.13220, 2.01250, 1.16630}, [4]float64{0.005700, 9.89330, 28.9975, 0.582600}, -11.529},
	"O":  {[4]float64{3.04850, 2.28680, 1.54630, 0.867000}, [4]float64{13.2771, 5.70110, 0.323900, 32.9089}, 0.250800},
	"F":  {[4]float64{3.53920, 2.64120, 1.51700, 1.02430}, [4]float64{10.2825, 4.29440, 0.261500, 26.1476}, 0.277600},
	"Na": {[4]float64{4.76260, 3.17360, 1.26740, 1.11280}, [4]float64{3.28500, 8.84220, 0.313600, 129.424}, 0.676000},
	"Mg": {[4]float64{5.42040, 2.17350, 1.22690, 2.30730}, [4]float64{2.82750, 79.2611, 0.380800, 7.19370}, 0.858400},
	"Al": {[4]float64{6.42020, 1.90020, 1.59360, 1.96460}, [4]float64{3.03870, 0.742600, 31.5472, 85.0886}, 1.11510},
	"Si": {[4]float64{6.29150, 3.03530, 1.98910, 1.54100}, [4]float64{2.43860, 32.3337, 0.678500, 81.6937}, 1.14070},
	"P":  {[4]float64{6.43450, 4.17910, 1.78000, 1.49080}, [4]float64{1.90670, 27.1570, 0.526000, 68.1645}, 1.11490},
	"S":  {[4]float64{6.90530, 5.20340, 1.43790, 1.58630}, [4]float64{1.46790, 22.2151, 0.253600, 56.1720}, 0.866900},
	"Cl": {[4]float64{11.4604, 7.19640, 6.25560, 1.64550}, [4]float64{0.010400, 1.16620, 18.5194, 47.7784}, -9.5574},
	"K":  {[4]float64{8.21860, 7.43980, 1.05190, 0.865900}, [4]float64{12.7949, 0.774800, 213.187, 41.6841}, 1.42280},
	"Ca": {[4]float64{8.62660, 7.38730, 1.58990, 1.02110}, [4]float64{10.4421, 0.659900, 85.7484, 178.437}, 1.37510},
	"Ti": {[4]float64{9.75950, 7.35580, 1.69910, 1.90210}, [4]float64{7.85080, 0.500000, 35.6338, 116.105}, 1.28070},
	"Mn": {[4]float64{11.2819, 7.35730, 3.01930, 2.24410}, [4]float64{5.34090, 0.343200, 17.8674, 83.7543}, 1.08960},
	"Fe": {[4]float64{11.7695, 7.35730, 3.52220, 2.30450}, [4]float64{4.76110, 0.307200, 15.3535, 76.8805}, 1.03690},
	"Co": {[4]float64{12.2841, 7.34090, 4.00340, 2.34880}, [4]float64{4.27910, 0.278400, 13.5359, 71.1692}, 1.01180},
	"Ni": {[4]float64{12.8376, 7.29200, 4.44380, 2.38000}, [4]float64{3.87850, 0.256500, 12.1763, 66.3421}, 1.03410},
	"Cu": {[4]float64{13.3380, 7.16760, 5.61580, 1.67350}, [4]float64{3.58280, 0.247000, 11.3966, 64.8126}, 1.19100},
	"Zn": {[4]float64{14.0743, 7.03180, 5.16520, 2.41000}, [4]float64{3.26550, 0.233300, 10.3163, 58.7097}, 1.30410},
	"Sr": {[4]float64{17.5663, 9.81840, 2.66940, 0.867900}, [4]float64{1.55640, 14.0988, 0.166400, 132.376}, 2.50640},
	"Ba": {[4]float64{20.3361, 19.2970, 10.8880, 2.69590}, [4]float64{3.21600, 0.275600, 20.2073, 167.202}, 2.77310},
	"La": {[4]float64{20.5780, 19.5990, 11.3727, 3.28719}, [4]float64{2.94817, 0.244475, 18.7726, 133.124}, 2.14678},
	"Pb": {[4]float64{31.0617, 13.0637, 18.4420, 5.96960}, [4]float64{0.690200, 2.35760, 8.61800, 47.2579}, 13.4118},
}

// Coherent neutron scattering lengths in fm (Sears, Neutron News 3, 1992).
var neutronTable = map[string]float64{
	"H": -3.739, "Li": -1.90, "C": 6.646, "N": 9.36, "O": 5.803, "F": 5.654,
	"Na": 3.63, "Mg": 5.375, "Al": 3.449, "Si": 4.1491, "P": 5.13, "S": 2.847,
	"Cl": 9.577, "K": 3.67, "Ca": 4.70, "Ti": -3.438, "Mn": -3.73, "Fe": 9.45,
	"Co": 2.49, "Ni": 10.3, "Cu": 7.718, "Zn": 5.68, "Sr": 7.02, "Ba": 5.07,
	"La": 8.24, "Pb": 9.405,
}

// Element strips oxidation-state suffixes: "Fe3+" and "O2-" become "Fe"
// and "O".
func Element(typeSymbol string) string {
	end := strings.IndexFunc(typeSymbol, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return typeSymbol
	}
	return typeSymbol[:end]
}

// Scatterer evaluates the scattering power of one element.
type Scatterer struct {
	neutron bool
	length  float64
	xray    cromerMann
}

// NewScatterer looks up the tables for a type symbol.
func NewScatterer(typeSymbol string, radiation ir.Radiation) (Scatterer, error) {
	el := Element(typeSymbol)
	switch radiation {
	case ir.RadiationNeutron:
		b, ok := neutronTable[el]
		if !ok {
			return Scatterer{}, fmt.Errorf("no neutron scattering length for %q", typeSymbol)
		}
		return Scatterer{neutron: true, length: b}, nil
	case ir.RadiationXray:
		cm, ok := xrayTable[el]
		if !ok {
			return Scatterer{}, fmt.Errorf("no X-ray form factor for %q", typeSymbol)
		}
		return Scatterer{xray: cm}, nil
	}
	return Scatterer{}, fmt.Errorf("unknown radiation %q", radiation)
}

// At returns the scattering factor at s = sinθ/λ.
func (sc Scatterer) At(s float64) float64 {
	if sc.neutron {
		return sc.length
	}
	return sc.xray.at(s)
}

// ScatteringFactor is a convenience wrapper around NewScatterer.
func ScatteringFactor(typeSymbol string, s float64, radiation ir.Radiation) (float64, error) {
	sc, err := NewScatterer(typeSymbol, radiation)
	if err != nil {
		return 0, err
	}
	return sc.At(s), nil
}

// knownElement reports whether both tables carry el.
func knownElement(el string) bool {
	_, x := xrayTable[el]
	_, n := neutronTable[el]
	return x && n
}
