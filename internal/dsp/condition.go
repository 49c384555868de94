package dsp

import "math"

// DefaultRMSEpsilon keeps NormalizeRMS finite on an all-zero buffer.
const DefaultRMSEpsilon = 1e-12

// RemoveDC returns x with its complex mean subtracted.
// An empty input yields an empty, non-nil slice.
func RemoveDC(x []complex64) []complex64 {
	out := make([]complex64, len(x))
	if len(x) == 0 {
		return out
	}
	var sumI, sumQ float64
	for _, v := range x {
		sumI += float64(real(v))
		sumQ += float64(imag(v))
	}
	n := float64(len(x))
	meanI := sumI / n
	meanQ := sumQ / n
	for i, v := range x {
		out[i] = complex(float32(float64(real(v))-meanI), float32(float64(imag(v))-meanQ))
	}
	return out
}

// NormalizeRMS scales x to unit RMS power. eps is added to the mean power
// before the square root; pass DefaultRMSEpsilon unless a test needs otherwise.
func NormalizeRMS(x []complex64, eps float64) []complex64 {
	out := make([]complex64, len(x))
	if len(x) == 0 {
		return out
	}
	scale := 1 / math.Sqrt(MeanPower(x)+eps)
	for i, v := range x {
		out[i] = complex(float32(float64(real(v))*scale), float32(float64(imag(v))*scale))
	}
	return out
}

// Condition removes DC and normalizes to unit RMS power.
func Condition(x []complex64) []complex64 {
	return NormalizeRMS(RemoveDC(x), DefaultRMSEpsilon)
}

// MeanPower returns mean(|x|^2), or 0 for an empty slice.
func MeanPower(x []complex64) float64 {
	if len(x) == 0 {
		return 0
	}
	var p float64
	for _, v := range x {
		re, im := float64(real(v)), float64(imag(v))
		p += re*re + im*im
	}
	return p / float64(len(x))
}

// CommonLength returns the shorter of the two lengths.
func CommonLength(a, b []complex64) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}

// TruncatePair cuts both slices to their common length.
func TruncatePair(a, b []complex64) ([]complex64, []complex64) {
	n := CommonLength(a, b)
	return a[:n], b[:n]
}
