package testutil

import (
	"math"
	"math/rand/v2"
)

// Grid returns evenly spaced points from start to stop inclusive.
func Grid(start, stop, step float64) []float64 {
	n := int(math.Round((stop-start)/step)) + 1
	g := make([]float64, n)
	for i := range g {
		g[i] = start + float64(i)*step
	}
	return g
}

// AddNoise returns y plus Gaussian noise of standard deviation sigma drawn
// from a PCG source seeded with seed. Same seed, same noise.
func AddNoise(y []float64, sigma float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = v + sigma*rng.NormFloat64()
	}
	return out
}

// Constant returns a slice of n copies of v.
func Constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// MaxOf returns the largest element of v, or 0 for an empty slice.
func MaxOf(v []float64) float64 {
	m := 0.0
	for i, x := range v {
		if i == 0 || x > m {
			m = x
		}
	}
	return m
}
