package pattern

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/crystal"
	"github.com/easyscience/EasyDiffractionLib/internal/instrument"
	"github.com/easyscience/EasyDiffractionLib/internal/ir"
	"github.com/easyscience/EasyDiffractionLib/internal/metrics"
)

func cubicModel(t *testing.T, a float64) *crystal.Model {
	t.Helper()
	m, err := crystal.NewModel("cub", crystal.Cell{A: a, B: a, C: a, Alpha: 90, Beta: 90, Gamma: 90}, "P 1",
		[]ir.AtomSiteSpec{{Label: "Fe1", TypeSymbol: "Fe", Occupancy: 1, BIso: 0.5}})
	require.NoError(t, err)
	return m
}

func xrayInstrument(t *testing.T, spec ir.InstrumentSpec) *instrument.Instrument {
	t.Helper()
	in, err := instrument.New("xrd", ir.RadiationXray, spec)
	require.NoError(t, err)
	return in
}

func grid(start, stop, step float64) []float64 {
	n := int(math.Round((stop-start)/step)) + 1
	g := make([]float64, n)
	for i := range g {
		g[i] = start + float64(i)*step
	}
	return g
}

func TestCalculateDeterministic(t *testing.T) {
	calc := NewCalculator(nil, nil)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.2, ResolutionY: 0.05})
	bkg := instrument.NewChebyshevBackground("xrd", []float64{10, 2})
	phases := []Phase{{Model: cubicModel(t, 5), Scale: 1}}
	g := grid(10, 90, 0.02)

	a, err := calc.Calculate(phases, inst, bkg, g)
	require.NoError(t, err)
	b, err := NewCalculator(nil, nil).Calculate(phases, inst, bkg, g)
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical inputs must give bit-identical output")
}

func TestCalculatePeakAtBraggAngle(t *testing.T) {
	calc := NewCalculator(nil, nil)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.01})
	g := grid(10, 25, 0.005)

	y, err := calc.Calculate([]Phase{{Model: cubicModel(t, 5), Scale: 1}}, inst, nil, g)
	require.NoError(t, err)

	best := 0
	for i := range y {
		if y[i] > y[best] {
			best = i
		}
	}
	want := 2 * math.Asin(1.5406/10) * 180 / math.Pi
	assert.InDelta(t, want, g[best], 0.005)
}

func TestCalculateZeroShiftMovesPeaks(t *testing.T) {
	calc := NewCalculator(nil, nil)
	g := grid(10, 25, 0.01)
	model := cubicModel(t, 5)

	base, err := calc.Peaks([]Phase{{Model: model, Scale: 1}}, xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.01}), g)
	require.NoError(t, err)
	shifted, err := calc.Peaks([]Phase{{Model: model, Scale: 1}}, xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.01, ZeroShift: 0.2}), g)
	require.NoError(t, err)

	require.NotEmpty(t, base)
	require.Equal(t, len(base), len(shifted))
	assert.InDelta(t, base[0].TwoTheta+0.2, shifted[0].TwoTheta, 1e-12)
	assert.InDelta(t, base[0].Intensity, shifted[0].Intensity, 1e-9)
}

func TestCalculateConservesIntegratedIntensity(t *testing.T) {
	calc := NewCalculator(nil, nil)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.04, PeakCutoff: 40})
	phases := []Phase{{Model: cubicModel(t, 5), Scale: 0.5}}
	const step = 0.002
	g := grid(12, 33, step)

	peaks, err := calc.Peaks(phases, inst, g)
	require.NoError(t, err)
	var want float64
	for _, pk := range peaks {
		if pk.TwoTheta > 14 && pk.TwoTheta < 31 {
			want += pk.Intensity
		}
	}
	require.Positive(t, want)

	y, err := calc.Calculate(phases, inst, nil, g)
	require.NoError(t, err)
	var got float64
	for _, v := range y {
		got += v * step
	}
	assert.InEpsilon(t, want, got, 1e-3)
}

func TestCalculateScaleIsLinear(t *testing.T) {
	calc := NewCalculator(nil, nil)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.1})
	model := cubicModel(t, 5)
	g := grid(10, 40, 0.05)

	one, err := calc.Calculate([]Phase{{Model: model, Scale: 1}}, inst, nil, g)
	require.NoError(t, err)
	three, err := calc.Calculate([]Phase{{Model: model, Scale: 3}}, inst, nil, g)
	require.NoError(t, err)
	for i := range one {
		assert.InDelta(t, 3*one[i], three[i], 1e-9*math.Max(1, three[i]))
	}
}

func TestCalculateMultiPhaseIsSum(t *testing.T) {
	calc := NewCalculator(nil, nil)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.1})
	a := cubicModel(t, 5)
	b, err := crystal.NewModel("fcc", crystal.Cell{A: 4, B: 4, C: 4, Alpha: 90, Beta: 90, Gamma: 90}, "F m -3 m",
		[]ir.AtomSiteSpec{{Label: "Cu1", TypeSymbol: "Cu", Occupancy: 1}})
	require.NoError(t, err)
	g := grid(10, 60, 0.05)

	ya, err := calc.Calculate([]Phase{{Model: a, Scale: 1}}, inst, nil, g)
	require.NoError(t, err)
	yb, err := calc.Calculate([]Phase{{Model: b, Scale: 2}}, inst, nil, g)
	require.NoError(t, err)
	both, err := calc.Calculate([]Phase{{Model: a, Scale: 1}, {Model: b, Scale: 2}}, inst, nil, g)
	require.NoError(t, err)

	for i := range both {
		assert.InDelta(t, ya[i]+yb[i], both[i], 1e-9*math.Max(1, both[i]))
	}
}

func TestCalculateBackgroundOnly(t *testing.T) {
	calc := NewCalculator(nil, nil)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406})
	bkg, err := instrument.NewPointBackground("xrd", []ir.PointSpec{{X: 0, Y: 1}, {X: 10, Y: 11}})
	require.NoError(t, err)

	y, err := calc.Calculate(nil, inst, bkg, []float64{0, 5, 10})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 6, 11}, y)

	empty, err := calc.Calculate(nil, inst, bkg, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCalculateUsesCache(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	calc := NewCalculator(NewCache(8, m), m)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.1})
	model := cubicModel(t, 5)
	g := grid(10, 40, 0.05)

	for range 3 {
		_, err := calc.Calculate([]Phase{{Model: model, Scale: 1}}, inst, nil, g)
		require.NoError(t, err)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PatternEvaluations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReflectionCacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReflectionCacheLookups.WithLabelValues("hit")))

	model.CellParameters()[0].Value = 5.01
	_, err := calc.Calculate([]Phase{{Model: model, Scale: 1}}, inst, nil, g)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReflectionCacheLookups.WithLabelValues("miss")), "cell change must miss")
}

func TestCalculateInvalidCell(t *testing.T) {
	calc := NewCalculator(nil, nil)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406})
	model := cubicModel(t, 5)
	model.CellParameters()[0].Value = 0

	_, err := calc.Calculate([]Phase{{Model: model, Scale: 1}}, inst, nil, grid(10, 20, 1))
	assert.True(t, ir.IsModelValidation(err))
}

func TestCalculateWindowReachingZeroAngle(t *testing.T) {
	calc := NewCalculator(nil, nil)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 1, ResolutionY: 0.3})
	phases := []Phase{{Model: cubicModel(t, 5), Scale: 1}}

	for _, g := range [][]float64{grid(10, 40, 0.02), grid(2, 40, 0.02)} {
		y, err := calc.Calculate(phases, inst, nil, g)
		require.NoError(t, err)
		peaks, err := calc.Peaks(phases, inst, g)
		require.NoError(t, err)
		require.NotEmpty(t, peaks)
		assert.InDelta(t, 5, peaks[0].D, 1e-12, "largest d first")
		assert.Positive(t, y[len(y)/2])
	}
}

func TestCalculateProfileChangesReuseReflections(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	cache := NewCache(8, m)
	calc := NewCalculator(cache, m)
	inst := xrayInstrument(t, ir.InstrumentSpec{Wavelength: 1.5406, ResolutionW: 0.1})
	model := cubicModel(t, 5)
	g := grid(40, 80, 0.05)

	for i := range 5 {
		inst.W.Value = 0.1 + 0.05*float64(i)
		inst.ZeroShift.Value = 0.01 * float64(i)
		_, err := calc.Calculate([]Phase{{Model: model, Scale: 1}}, inst, nil, g)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReflectionCacheLookups.WithLabelValues("miss")))
}

func TestVisibleCutsWindow(t *testing.T) {
	refl := []Reflection{{D: 5}, {D: 3.5}, {D: 2.5}, {D: 2.5}, {D: 1.2}}

	assert.Equal(t, refl[1:4], visible(refl, 2.5, 4))
	assert.Equal(t, refl, visible(refl, 1, math.Inf(1)))
	assert.Empty(t, visible(refl, 6, 10))
	assert.Empty(t, visible(refl, 3, 3.2))
}
