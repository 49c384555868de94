package dsp

import (
	"math"
	"math/cmplx"
)

// EstimateConstPhase returns the angle of mean(sig * conj(ref)) in (-π, π].
// Averaging the complex product before taking the angle keeps the estimate
// on the dominant phasor instead of averaging wrapped angles.
// Empty input yields 0.
func EstimateConstPhase(ref, sig []complex64) float64 {
	n := CommonLength(ref, sig)
	if n == 0 {
		return 0
	}
	var acc complex128
	for i := 0; i < n; i++ {
		acc += complex128(sig[i]) * cmplx.Conj(complex128(ref[i]))
	}
	return principal(cmplx.Phase(acc / complex(float64(n), 0)))
}

// CorrectConstPhase multiplies every sample by exp(-j·theta).
// theta == 0 returns an exact copy.
func CorrectConstPhase(sig []complex64, theta float64) []complex64 {
	out := make([]complex64, len(sig))
	if theta == 0 {
		copy(out, sig)
		return out
	}
	rot := cmplx.Exp(complex(0, -theta))
	for i, v := range sig {
		out[i] = complex64(complex128(v) * rot)
	}
	return out
}

// principal maps -π onto π so angles stay in (-π, π].
func principal(theta float64) float64 {
	if theta <= -math.Pi {
		return math.Pi
	}
	return theta
}

// WrapPhase folds any angle into (-π, π].
func WrapPhase(theta float64) float64 {
	w := math.Remainder(theta, 2*math.Pi)
	return principal(w)
}
