package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyscience/EasyDiffractionLib/internal/crystal"
)

func TestEnumeratePrimitiveCubic(t *testing.T) {
	sg, err := crystal.LookupSpaceGroup("P m -3 m")
	require.NoError(t, err)

	refl, err := Enumerate(sg, crystal.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}, 2.8, 10)
	require.NoError(t, err)

	// d(100)=5, d(110)=3.536, d(111)=2.887, d(200)=2.5 excluded.
	require.Len(t, refl, 3)
	assert.Equal(t, crystal.HKL{1, 0, 0}, refl[0].HKL)
	assert.Equal(t, 6, refl[0].Multiplicity)
	assert.InDelta(t, 5, refl[0].D, 1e-12)
	assert.Equal(t, crystal.HKL{1, 1, 0}, refl[1].HKL)
	assert.Equal(t, 12, refl[1].Multiplicity)
	assert.Equal(t, crystal.HKL{1, 1, 1}, refl[2].HKL)
	assert.Equal(t, 8, refl[2].Multiplicity)
}

func TestEnumerateRemovesAbsences(t *testing.T) {
	sg, err := crystal.LookupSpaceGroup("I m -3 m")
	require.NoError(t, err)

	refl, err := Enumerate(sg, crystal.Cell{A: 3, B: 3, C: 3, Alpha: 90, Beta: 90, Gamma: 90}, 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, refl)
	for _, r := range refl {
		assert.Zero(t, (r.HKL[0]+r.HKL[1]+r.HKL[2])%2, "%v should be absent", r.HKL)
	}
	assert.Equal(t, crystal.HKL{1, 1, 0}, refl[0].HKL)
}

func TestEnumerateTriclinicCountsFriedelPairs(t *testing.T) {
	sg, err := crystal.LookupSpaceGroup("P 1")
	require.NoError(t, err)

	refl, err := Enumerate(sg, crystal.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}, 4, 10)
	require.NoError(t, err)
	// (100), (010), (001), each merged with its Friedel mate.
	require.Len(t, refl, 3)
	for _, r := range refl {
		assert.Equal(t, 2, r.Multiplicity)
	}
}

func TestEnumerateSortedByDescendingD(t *testing.T) {
	sg, err := crystal.LookupSpaceGroup("P 63/m m c")
	require.NoError(t, err)

	refl, err := Enumerate(sg, crystal.Cell{A: 3, B: 3, C: 5, Alpha: 90, Beta: 90, Gamma: 120}, 0.9, 10)
	require.NoError(t, err)
	for i := 1; i < len(refl); i++ {
		assert.GreaterOrEqual(t, refl[i-1].D, refl[i].D)
	}
}

func TestEnumerateRejectsBadInput(t *testing.T) {
	sg, err := crystal.LookupSpaceGroup("P 1")
	require.NoError(t, err)
	cubic := crystal.Cell{A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}

	_, err = Enumerate(sg, cubic, 0, 10)
	assert.Error(t, err)
	_, err = Enumerate(sg, cubic, 3, 2)
	assert.Error(t, err)
	_, err = Enumerate(sg, crystal.Cell{A: -5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}, 1, 2)
	assert.Error(t, err)
}
