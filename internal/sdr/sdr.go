// Package sdr provides the two-channel sample sources the calibrator reads
// from: recorded captures on disk and a synthetic impaired pair.
package sdr

import (
	"context"
	"errors"
)

// ErrNotInitialized is returned by RX before Init succeeded.
var ErrNotInitialized = errors.New("sdr source not initialized")

// Config carries parameters required to initialize a source. File sources
// use CaptureDir; the mock uses the impairment fields.
type Config struct {
	CaptureDir string
	NumSamples int
	SampleRate float64
	CenterFreq float64

	DelaySamples int     // ch1 lags ch0 by this many samples (negative: leads)
	CFOHz        float64 // residual frequency offset of ch1 relative to ch0
	PhaseRad     float64 // constant phase offset of ch1
	NoiseStd     float64 // per-component AWGN standard deviation
	Seed         int64
}

// Tuning reports the sample rate and center frequency the samples were
// taken at. Zero means unknown.
type Tuning struct {
	SampleRate float64
	CenterFreq float64
}

// SDR is the minimal capture interface required by the calibrator.
type SDR interface {
	Init(ctx context.Context, cfg Config) error
	RX(ctx context.Context) (chan0 []complex64, chan1 []complex64, err error)
	Tuning() Tuning
	Close() error
}
