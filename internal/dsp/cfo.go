package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"
)

// Unwrap removes artificial 2π jumps from a phase sequence, assuming the true
// phase moves by less than π between adjacent samples.
func Unwrap(phase []float64) []float64 {
	out := make([]float64, len(phase))
	if len(phase) == 0 {
		return out
	}
	out[0] = phase[0]
	var correction float64
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		dm := floorMod(d+math.Pi, 2*math.Pi) - math.Pi
		if dm == -math.Pi && d > 0 {
			dm = math.Pi
		}
		if math.Abs(d) >= math.Pi {
			correction += dm - d
		}
		out[i] = phase[i] + correction
	}
	return out
}

// floorMod is the modulo with the sign of m.
func floorMod(x, m float64) float64 {
	return x - math.Floor(x/m)*m
}

// CrossPhase returns arg(sig[n] * conj(ref[n])) over the common length.
func CrossPhase(ref, sig []complex64) []float64 {
	n := CommonLength(ref, sig)
	phi := make([]float64, n)
	for i := 0; i < n; i++ {
		phi[i] = cmplx.Phase(complex128(sig[i]) * cmplx.Conj(complex128(ref[i])))
	}
	return phi
}

// EstimateCFO fits a line to the unwrapped cross phase of two delay-aligned
// sequences and converts its slope (rad/sample) to Hz. Buffers shorter than
// two samples give 0.
//
// The estimate breaks down once |CFO| approaches fsHz/2, where consecutive
// phase steps exceed π and Unwrap can no longer follow them.
func EstimateCFO(ref, sig []complex64, fsHz float64) float64 {
	phi := Unwrap(CrossPhase(ref, sig))
	if len(phi) < 2 {
		return 0
	}
	n := make([]float64, len(phi))
	for i := range n {
		n[i] = float64(i)
	}
	_, slope := stat.LinearRegression(n, phi, nil, false)
	return slope * fsHz / (2 * math.Pi)
}

// CorrectCFO counter-rotates sig by the ramp exp(-j·2π·cfoHz·n/fsHz).
// A non-positive fsHz leaves the samples unrotated.
func CorrectCFO(sig []complex64, cfoHz, fsHz float64) []complex64 {
	out := make([]complex64, len(sig))
	if fsHz <= 0 {
		copy(out, sig)
		return out
	}
	w := -2 * math.Pi * cfoHz / fsHz
	for i, v := range sig {
		s, c := math.Sincos(w * float64(i))
		out[i] = complex64(complex128(v) * complex(c, s))
	}
	return out
}
