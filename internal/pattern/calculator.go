package pattern

import (
	"fmt"
	"math"
	"sort"

	"github.com/easyscience/EasyDiffractionLib/internal/crystal"
	"github.com/easyscience/EasyDiffractionLib/internal/instrument"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/metrics"
)

// Phase is a structural model contributing to a pattern with a scale.
type Phase struct {
	Model *crystal.Model
	Scale float64
}

// Peak is a reflection placed on the 2θ axis.
type Peak struct {
	Phase        string
	HKL          crystal.HKL
	Multiplicity int
	D            float64
	TwoTheta     float64
	FWHM         float64
	Eta          float64
	// Intensity is the integrated intensity scale·m·|F|²·LP.
	Intensity float64
}

// Calculator computes simulated patterns. Safe for concurrent use when
// each goroutine works on its own models.
type Calculator struct {
	cache   *Cache
	metrics *metrics.Metrics
}

// NewCalculator creates a calculator backed by cache.
// A nil cache gets a private one of default capacity.
func NewCalculator(cache *Cache, m *metrics.Metrics) *Calculator {
	if cache == nil {
		cache = NewCache(DefaultCacheCapacity, m)
	}
	return &Calculator{cache: cache, metrics: m}
}

// Calculate returns the simulated intensity at every grid point: the sum
// over phases and reflections of scale·m·|F|²·LP times the normalized
// peak shape within the cutoff window, plus the background.
func (c *Calculator) Calculate(phases []Phase, inst *instrument.Instrument, bkg instrument.Background, grid []float64) ([]float64, error) {
	c.metrics.RecordEvaluation()

	out := make([]float64, len(grid))
	if len(grid) == 0 {
		return out, nil
	}

	for _, ph := range phases {
		peaks, err := c.peaks(ph, inst, grid)
		if err != nil {
			return nil, err
		}
		for _, pk := range peaks {
			half := inst.PeakCutoff * pk.FWHM
			lo := sort.SearchFloat64s(grid, pk.TwoTheta-half)
			hi := sort.SearchFloat64s(grid, pk.TwoTheta+half)
			for j := lo; j < hi; j++ {
				out[j] += pk.Intensity * instrument.Kernel(grid[j]-pk.TwoTheta, pk.FWHM, pk.Eta)
			}
		}
	}

	if bkg != nil {
		for i, b := range bkg.Evaluate(grid) {
			out[i] += b
		}
	}
	return out, nil
}

// Peaks lists the reflections of every phase visible on the grid, in
// calculation order.
func (c *Calculator) Peaks(phases []Phase, inst *instrument.Instrument, grid []float64) ([]Peak, error) {
	if len(grid) == 0 {
		return nil, nil
	}
	var all []Peak
	for _, ph := range phases {
		peaks, err := c.peaks(ph, inst, grid)
		if err != nil {
			return nil, err
		}
		all = append(all, peaks...)
	}
	return all, nil
}

func (c *Calculator) peaks(ph Phase, inst *instrument.Instrument, grid []float64) ([]Peak, error) {
	m := ph.Model
	cell := m.Cell()
	if err := cell.Validate(); err != nil {
		return nil, &ir.ModelValidationError{Subject: m.ID, Message: err.Error()}
	}

	refl, err := c.reflections(m, cell, inst.Wavelength.Value)
	if err != nil {
		return nil, fmt.Errorf("phase %s: %w", m.ID, err)
	}

	first, last := grid[0], grid[len(grid)-1]
	w0, _ := inst.PeakShape(first)
	w1, _ := inst.PeakShape(last)
	margin := inst.PeakCutoff * math.Max(w0, w1)
	dMin, dMax := inst.DRange(first, last, margin)
	refl = visible(refl, dMin, dMax)

	hkls := make([]crystal.HKL, len(refl))
	for i, r := range refl {
		hkls[i] = r.HKL
	}
	fs, err := m.StructureFactors(hkls, inst.Radiation)
	if err != nil {
		return nil, err
	}

	zero := inst.ZeroShift.Value
	peaks := make([]Peak, 0, len(refl))
	for i, r := range refl {
		tth, ok := inst.PeakPosition(r.D)
		if !ok {
			continue
		}
		bragg := tth - zero
		fwhm, eta := inst.PeakShape(bragg)
		f2 := real(fs[i])*real(fs[i]) + imag(fs[i])*imag(fs[i])
		peaks = append(peaks, Peak{
			Phase:        m.ID,
			HKL:          r.HKL,
			Multiplicity: r.Multiplicity,
			D:            r.D,
			TwoTheta:     tth,
			FWHM:         fwhm,
			Eta:          eta,
			Intensity:    ph.Scale * float64(r.Multiplicity) * f2 * inst.LorentzPolarization(bragg),
		})
	}
	return peaks, nil
}

// reflections returns every reflection of the phase that can diffract at
// the wavelength (d >= λ/2). The list depends on the space group, the cell
// and λ only, so refining profile, zero shift or scale parameters reuses it.
func (c *Calculator) reflections(m *crystal.Model, cell crystal.Cell, wavelength float64) ([]Reflection, error) {
	dLimit := wavelength / 2
	key, err := ir.ReflectionKey(m.Group.Name, cell.Array(), dLimit)
	if err != nil {
		return nil, err
	}
	return c.cache.Get(key, func() ([]Reflection, error) {
		return Enumerate(m.Group, cell, dLimit, math.Inf(1))
	})
}

// visible returns the sub-slice of refl with dMin <= d <= dMax. refl is
// ordered by d descending and shared, so it is sliced, never copied.
func visible(refl []Reflection, dMin, dMax float64) []Reflection {
	lo := sort.Search(len(refl), func(i int) bool { return refl[i].D <= dMax })
	hi := sort.Search(len(refl), func(i int) bool { return refl[i].D < dMin })
	if hi < lo {
		return nil
	}
	return refl[lo:hi]
}
