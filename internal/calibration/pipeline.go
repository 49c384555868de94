// Package calibration aligns a secondary receiver channel onto a reference
// channel (integer delay, carrier frequency offset, constant phase) and
// manages the persisted calibration record that lets one estimate be reused
// on later captures.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/rjboer/dualrx/internal/dsp"
)

// Mode selects what the alignment pipeline estimates and applies.
type Mode int

const (
	// ModeEstimateApply estimates all offsets and returns corrected signals.
	ModeEstimateApply Mode = iota
	// ModeEstimateOnly estimates all offsets for persisting; the phase
	// correction is not applied.
	ModeEstimateOnly
	// ModeApplyRecord applies offsets from a record without estimating.
	ModeApplyRecord
)

func (m Mode) String() string {
	switch m {
	case ModeEstimateApply:
		return "estimate-apply"
	case ModeEstimateOnly:
		return "estimate-only"
	case ModeApplyRecord:
		return "apply-record"
	default:
		return "unknown"
	}
}

// ErrInvalidSampleRate is returned when fs is not a positive finite number.
var ErrInvalidSampleRate = errors.New("sample rate must be positive and finite")

// Options tune the estimating modes.
type Options struct {
	// DoCFO enables CFO estimation in ModeEstimateApply. ModeEstimateOnly
	// always estimates CFO.
	DoCFO bool
	// MaxLag bounds the delay search in samples; <= 0 means dsp.DefaultMaxLag.
	MaxLag int
	// Correlator optionally reuses an FFT plan across calls.
	Correlator *dsp.Correlator
}

// DefaultOptions enables CFO estimation with the default search window.
func DefaultOptions() Options {
	return Options{DoCFO: true, MaxLag: dsp.DefaultMaxLag}
}

// Estimate holds the three channel offsets of channel 1 relative to channel 0.
type Estimate struct {
	LagSamples int
	CFOHz      float64
	PhaseRad   float64
}

// Result carries the aligned pair. Ref is the conditioned channel 0, Aligned
// is channel 1 after all applied corrections; both have the same length.
type Result struct {
	Ref      []complex64
	Aligned  []complex64
	Estimate Estimate
}

// run is the one alignment pipeline behind every entry point:
// condition -> delay -> CFO -> phase, with each step either estimated or
// taken from rec depending on mode. Channel 0 is never modified.
func run(ch0, ch1 []complex64, fsHz float64, mode Mode, opts Options, rec Estimate) Result {
	x0 := dsp.Condition(ch0)
	x1 := dsp.Condition(ch1)
	x0, x1 = dsp.TruncatePair(x0, x1)

	var est Estimate
	if len(x0) == 0 {
		if mode == ModeApplyRecord {
			est = rec
		}
		return Result{Ref: x0, Aligned: x1, Estimate: est}
	}

	// Delay.
	if mode == ModeApplyRecord {
		est.LagSamples = rec.LagSamples
	} else {
		corr := opts.Correlator
		if corr == nil {
			corr = dsp.NewCorrelator(0)
		}
		est.LagSamples = corr.EstimateDelay(x0, x1, opts.MaxLag)
	}
	x1 = dsp.ApplyIntegerDelay(x1, est.LagSamples)
	x0, x1 = dsp.TruncatePair(x0, x1)

	// CFO. The record path skips the rotation only on an exact zero.
	switch mode {
	case ModeApplyRecord:
		est.CFOHz = rec.CFOHz
		if est.CFOHz != 0 {
			x1 = dsp.CorrectCFO(x1, est.CFOHz, fsHz)
		}
	case ModeEstimateOnly:
		est.CFOHz = dsp.EstimateCFO(x0, x1, fsHz)
		x1 = dsp.CorrectCFO(x1, est.CFOHz, fsHz)
	default:
		if opts.DoCFO {
			est.CFOHz = dsp.EstimateCFO(x0, x1, fsHz)
			x1 = dsp.CorrectCFO(x1, est.CFOHz, fsHz)
		}
	}

	// Constant phase.
	switch mode {
	case ModeApplyRecord:
		est.PhaseRad = rec.PhaseRad
		x1 = dsp.CorrectConstPhase(x1, est.PhaseRad)
	case ModeEstimateOnly:
		est.PhaseRad = dsp.EstimateConstPhase(x0, x1)
	default:
		est.PhaseRad = dsp.EstimateConstPhase(x0, x1)
		x1 = dsp.CorrectConstPhase(x1, est.PhaseRad)
	}

	return Result{Ref: x0, Aligned: x1, Estimate: est}
}

func validSampleRate(fsHz float64) error {
	if fsHz <= 0 || math.IsNaN(fsHz) || math.IsInf(fsHz, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRate, fsHz)
	}
	return nil
}
