package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

func TestPointBackgroundInterpolates(t *testing.T) {
	bkg, err := NewPointBackground("hrpt", []ir.PointSpec{{X: 10, Y: 100}, {X: 20, Y: 200}, {X: 40, Y: 150}})
	require.NoError(t, err)

	got := bkg.Evaluate([]float64{0, 10, 15, 20, 30, 40, 50})
	assert.InDeltaSlice(t, []float64{100, 100, 150, 200, 175, 150, 150}, got, 1e-12)
}

func TestPointBackgroundStaysBetweenControlValues(t *testing.T) {
	bkg, err := NewPointBackground("hrpt", []ir.PointSpec{{X: 0, Y: 5}, {X: 1, Y: -3}, {X: 2, Y: 8}})
	require.NoError(t, err)

	grid := make([]float64, 201)
	for i := range grid {
		grid[i] = float64(i) / 100
	}
	for i, y := range bkg.Evaluate(grid) {
		x := grid[i]
		lo, hi := -3.0, 5.0
		if x > 1 {
			lo, hi = -3, 8
		}
		assert.GreaterOrEqual(t, y, lo, "x=%g", x)
		assert.LessOrEqual(t, y, hi, "x=%g", x)
	}
}

func TestPointBackgroundRejectsUnsorted(t *testing.T) {
	for _, pts := range [][]ir.PointSpec{
		{{X: 20, Y: 1}, {X: 10, Y: 1}},
		{{X: 10, Y: 1}, {X: 10, Y: 2}},
	} {
		_, err := NewPointBackground("hrpt", pts)
		require.Error(t, err)
		assert.True(t, ir.IsModelValidation(err))
	}
}

func TestPointBackgroundKeys(t *testing.T) {
	bkg, err := NewPointBackground("hrpt", []ir.PointSpec{{X: 10, Y: 1}, {X: 20, Y: 2}})
	require.NoError(t, err)
	ps := bkg.Parameters()
	require.Len(t, ps, 2)
	assert.Equal(t, "hrpt.background.p0", ps[0].Key)
	assert.Equal(t, "hrpt.background.p1", ps[1].Key)
}

func TestChebyshevBackground(t *testing.T) {
	bkg := NewChebyshevBackground("xrd", []float64{1, 2, 3})
	grid := []float64{10, 20, 30}

	// t = -1, 0, 1; T0 = 1, T1 = t, T2 = 2t²-1.
	got := bkg.Evaluate(grid)
	assert.InDeltaSlice(t, []float64{1 - 2 + 3, 1 - 3, 1 + 2 + 3}, got, 1e-12)
	assert.Equal(t, "xrd.background.c2", bkg.Parameters()[2].Key)
}

func TestNewBackground(t *testing.T) {
	empty, err := NewBackground("e", ir.BackgroundSpec{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, empty.Evaluate([]float64{1, 2}))

	cheb, err := NewBackground("e", ir.BackgroundSpec{Kind: ir.BackgroundChebyshev, Coefficients: []float64{7}})
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7}, cheb.Evaluate([]float64{1, 2}))

	_, err = NewBackground("e", ir.BackgroundSpec{Kind: "spline"})
	assert.True(t, ir.IsModelValidation(err))
}
