package dsp

import "gonum.org/v1/gonum/floats"

// DefaultMaxLag bounds the delay search window in samples.
const DefaultMaxLag = 20000

// EstimateIntegerDelay returns the lag in [-maxLag, maxLag] that maximizes
// |xcorr(sig, ref)|. A positive lag means sig is delayed relative to ref,
// i.e. sig[k] resembles ref[k-lag]. maxLag <= 0 selects DefaultMaxLag.
//
// A true delay outside the window is not detected: the best in-window lag is
// returned. Empty input yields 0.
func EstimateIntegerDelay(ref, sig []complex64, maxLag int) int {
	return NewCorrelator(0).EstimateDelay(ref, sig, maxLag)
}

// peakLag scans r (full correlation, zero lag at refLen-1) for the strongest
// lag inside [-maxLag, maxLag], clipped to the lags that exist. Ties keep the
// most negative lag; an all-zero window has no peak and yields 0.
func peakLag(r []complex128, refLen, maxLag int) int {
	if len(r) == 0 {
		return 0
	}
	if maxLag <= 0 {
		maxLag = DefaultMaxLag
	}
	mid := refLen - 1
	lo := mid - maxLag
	if lo < 0 {
		lo = 0
	}
	hi := mid + maxLag
	if hi > len(r)-1 {
		hi = len(r) - 1
	}

	if hi < lo {
		return 0
	}

	mag := make([]float64, hi-lo+1)
	for i := range mag {
		v := r[lo+i]
		mag[i] = real(v)*real(v) + imag(v)*imag(v)
	}
	// MaxIdx returns the first maximum.
	idx := floats.MaxIdx(mag)
	if mag[idx] == 0 {
		return 0
	}
	return lo + idx - mid
}

// ApplyIntegerDelay shifts sig by lag samples to undo a delay reported by
// EstimateIntegerDelay. For lag > 0 the first lag samples are dropped; for
// lag < 0, |lag| zeros are prepended and the result is cut back to len(sig).
// lag == 0 returns sig unchanged.
func ApplyIntegerDelay(sig []complex64, lag int) []complex64 {
	switch {
	case lag == 0:
		return sig
	case lag > 0:
		if lag >= len(sig) {
			return []complex64{}
		}
		out := make([]complex64, len(sig)-lag)
		copy(out, sig[lag:])
		return out
	default:
		shift := -lag
		out := make([]complex64, len(sig))
		if shift >= len(sig) {
			return out
		}
		copy(out[shift:], sig[:len(sig)-shift])
		return out
	}
}
