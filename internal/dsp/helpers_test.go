package dsp

import (
	"math"
	"math/rand"
)

// qam16 returns n random 16-QAM-like symbols, one per sample.
func qam16(n int, seed int64) []complex64 {
	rng := rand.New(rand.NewSource(seed))
	levels := []float32{-3, -1, 1, 3}
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(levels[rng.Intn(4)], levels[rng.Intn(4)])
	}
	return out
}

// delayedPair returns ref and a copy delayed by lag samples, both of length n.
// The samples shifted in at the front of the delayed copy are fresh symbols.
func delayedPair(n, lag int, seed int64) ([]complex64, []complex64) {
	abs := lag
	if abs < 0 {
		abs = -abs
	}
	s := qam16(n+abs, seed)
	if lag >= 0 {
		return s[abs:], s[:n]
	}
	return s[:n], s[abs:]
}

// rotate applies exp(j(2π·f·n/fs + theta)) to x.
func rotate(x []complex64, f, fs, theta float64) []complex64 {
	out := make([]complex64, len(x))
	for i, v := range x {
		s, c := math.Sincos(2*math.Pi*f*float64(i)/fs + theta)
		out[i] = complex64(complex128(v) * complex(c, s))
	}
	return out
}
