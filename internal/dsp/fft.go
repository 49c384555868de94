package dsp

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// nextPow2 returns the smallest power of two >= n (1 for n <= 1).
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// correlationSize is the padded FFT length needed for a linear (non-circular)
// correlation of sequences of length a and b.
func correlationSize(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return nextPow2(a + b - 1)
}

// correlate computes conv(sig, conj(reverse(ref))) through fft, whose length
// must be at least len(ref)+len(sig)-1. The returned slice has exactly that
// many elements; index len(ref)-1 is zero lag.
func correlate(fft *fourier.CmplxFFT, ref, sig []complex64) []complex128 {
	nfft := fft.Len()
	n := len(ref) + len(sig) - 1

	a := make([]complex128, nfft)
	for i, v := range sig {
		a[i] = complex128(v)
	}
	b := make([]complex128, nfft)
	last := len(ref) - 1
	for i, v := range ref {
		b[last-i] = cmplx.Conj(complex128(v))
	}

	fa := fft.Coefficients(nil, a)
	fb := fft.Coefficients(nil, b)
	for i := range fa {
		fa[i] *= fb[i]
	}
	// Sequence is unnormalized.
	r := fft.Sequence(nil, fa)
	scale := complex(1/float64(nfft), 0)
	out := r[:n]
	for i := range out {
		out[i] *= scale
	}
	return out
}

// CrossCorrelate returns the full linear cross-correlation of sig against ref,
// computed in the frequency domain. Element k corresponds to lag
// k-(len(ref)-1); a peak at positive lag means sig is delayed relative to ref.
func CrossCorrelate(ref, sig []complex64) []complex128 {
	size := correlationSize(len(ref), len(sig))
	if size == 0 {
		return []complex128{}
	}
	return correlate(fourier.NewCmplxFFT(size), ref, sig)
}
