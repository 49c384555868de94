package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"
)

// Combine forms the two-element beam ref + aligned·exp(-j·steerRad) over the
// common length. With steerRad 0 this is the broadside coherent sum.
func Combine(ref, aligned []complex64, steerRad float64) []complex64 {
	n := CommonLength(ref, aligned)
	out := make([]complex64, n)
	rot := cmplx.Exp(complex(0, -steerRad))
	for i := 0; i < n; i++ {
		out[i] = complex64(complex128(ref[i]) + complex128(aligned[i])*rot)
	}
	return out
}

// ResidualPhaseStd is the standard deviation (radians) of the per-sample
// phase of aligned·conj(ref). Well aligned channels give values near zero.
// Fewer than two samples give 0.
func ResidualPhaseStd(ref, aligned []complex64) float64 {
	phi := CrossPhase(ref, aligned)
	if len(phi) < 2 {
		return 0
	}
	return stat.StdDev(phi, nil)
}

// CombiningGainDB compares the power of the coherent sum against the mean
// power of the two inputs. Two identical channels give 20·log10(2) ≈ 6.02 dB,
// uncorrelated ones about 3 dB. Returns 0 when either input has no power.
func CombiningGainDB(ref, aligned []complex64) float64 {
	ref, aligned = TruncatePair(ref, aligned)
	pin := (MeanPower(ref) + MeanPower(aligned)) / 2
	if pin == 0 {
		return 0
	}
	pout := MeanPower(Combine(ref, aligned, 0))
	if pout == 0 {
		return 0
	}
	return 10 * math.Log10(pout/pin)
}
