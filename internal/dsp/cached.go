package dsp

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Correlator caches the FFT plan used for delay estimation so that repeated
// calibrations of equally sized captures do not rebuild it every time.
type Correlator struct {
	mu   sync.Mutex
	size int
	fft  *fourier.CmplxFFT
}

// NewCorrelator creates a correlator with a plan for the given padded FFT
// size. A size of zero defers plan creation to the first estimate.
func NewCorrelator(size int) *Correlator {
	c := &Correlator{}
	if size > 0 {
		c.size = nextPow2(size)
		c.fft = fourier.NewCmplxFFT(c.size)
	}
	return c
}

// Correlate returns the full cross-correlation of sig against ref,
// see CrossCorrelate.
func (c *Correlator) Correlate(ref, sig []complex64) []complex128 {
	size := correlationSize(len(ref), len(sig))
	if size == 0 {
		return []complex128{}
	}

	// The plan carries internal work space, so calls are serialized.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fft == nil || c.size != size {
		c.size = size
		c.fft = fourier.NewCmplxFFT(size)
	}
	return correlate(c.fft, ref, sig)
}

// EstimateDelay is EstimateIntegerDelay using the cached plan.
func (c *Correlator) EstimateDelay(ref, sig []complex64, maxLag int) int {
	r := c.Correlate(ref, sig)
	return peakLag(r, len(ref), maxLag)
}

// Size returns the current padded FFT size, 0 if no plan has been built.
func (c *Correlator) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
