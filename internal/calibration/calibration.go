package calibration

import (
	"fmt"
	"time"
)

// Prepare estimates delay, optional CFO and constant phase of ch1 against
// ch0 and returns both channels aligned for combining. With opts.DoCFO false
// the reported CFO is 0 and no rotation is applied.
func Prepare(ch0, ch1 []complex64, fsHz float64, opts Options) (Result, error) {
	if err := validSampleRate(fsHz); err != nil {
		return Result{}, err
	}
	return run(ch0, ch1, fsHz, ModeEstimateApply, opts, Estimate{}), nil
}

// EstimateRecord runs the estimate-only pipeline (CFO always estimated) and
// builds a record stamped with at in UTC. Nothing is written.
func EstimateRecord(ch0, ch1 []complex64, fsHz, fcHz float64, captureDir string, opts Options, at time.Time) (Record, error) {
	if err := validSampleRate(fsHz); err != nil {
		return Record{}, err
	}
	res := run(ch0, ch1, fsHz, ModeEstimateOnly, opts, Estimate{})
	return Record{
		Version:    RecordVersion,
		LagSamples: res.Estimate.LagSamples,
		CFOHz:      res.Estimate.CFOHz,
		PhaseRad:   res.Estimate.PhaseRad,
		FcHz:       fcHz,
		FsHz:       fsHz,
		Timestamp:  at.UTC().Format(time.RFC3339Nano),
		CaptureDir: captureDir,
	}, nil
}

// CalibrateAndSave estimates the channel offsets and persists them to path.
// Corrected signals are not returned; use Apply with the record for that.
func CalibrateAndSave(ch0, ch1 []complex64, fsHz, fcHz float64, path, captureDir string, opts Options) (Record, error) {
	rec, err := EstimateRecord(ch0, ch1, fsHz, fcHz, captureDir, opts, time.Now())
	if err != nil {
		return Record{}, err
	}
	if err := Save(path, rec); err != nil {
		return Record{}, fmt.Errorf("save calibration: %w", err)
	}
	return rec, nil
}

// Apply re-applies a stored calibration to a new capture without estimating
// anything. The CFO rotation uses rec.FsHz and is skipped when rec.CFOHz is
// exactly zero.
func Apply(ch0, ch1 []complex64, rec Record) (Result, error) {
	return ApplyAt(ch0, ch1, rec, rec.FsHz)
}

// ApplyAt is Apply with the CFO rotation evaluated at fsHz instead of the
// record's sample rate.
func ApplyAt(ch0, ch1 []complex64, rec Record, fsHz float64) (Result, error) {
	if err := validSampleRate(fsHz); err != nil {
		return Result{}, err
	}
	return run(ch0, ch1, fsHz, ModeApplyRecord, Options{}, rec.Estimate()), nil
}
