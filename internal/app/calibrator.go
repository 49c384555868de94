package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rjboer/dualrx/internal/calibration"
	"github.com/rjboer/dualrx/internal/dsp"
	"github.com/rjboer/dualrx/internal/iqfile"
	"github.com/rjboer/dualrx/internal/logging"
	"github.com/rjboer/dualrx/internal/sdr"
	"github.com/rjboer/dualrx/internal/telemetry"
)

// ErrNoRecordPath is returned when a mode needs a record file but none was
// configured.
var ErrNoRecordPath = errors.New("calibration record path not set")

// Config captures application level configuration.
type Config struct {
	Mode calibration.Mode
	// SampleRate and CenterFreq override what the source reports when > 0.
	SampleRate float64
	CenterFreq float64
	MaxLag     int
	DoCFO      bool
	RecordPath string
	// OutDir receives the aligned pair and the combined beam per capture.
	// Empty disables output files.
	OutDir string
	// SteerRad is the inter-element phase used for the combined beam.
	SteerRad float64
	// Captures is the number of RX buffers processed by Run (default 1).
	Captures int
	Source   sdr.Config
}

// Outcome is what Run produced for one capture.
type Outcome struct {
	Index   int
	Result  calibration.Result
	Record  calibration.Record // set in estimate-only and apply-record modes
	Report  telemetry.Report
	Written iqfile.Capture // zero when OutDir is empty
}

// Calibrator wires a capture source into the calibration pipeline.
type Calibrator struct {
	sdr        sdr.SDR
	reporter   telemetry.Reporter
	logger     logging.Logger
	cfg        Config
	correlator *dsp.Correlator
	record     calibration.Record
	outcomes   []Outcome
	now        func() time.Time
}

// NewCalibrator wires a source, reporter and logger into a calibrator. A nil
// logger selects logging.Default; a nil reporter discards reports.
func NewCalibrator(backend sdr.SDR, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Calibrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Calibrator{
		sdr:        backend,
		reporter:   reporter,
		logger:     logger.With(logging.F("subsystem", "calibrator")),
		cfg:        cfg,
		correlator: dsp.NewCorrelator(0),
		now:        time.Now,
	}
}

// Init applies defaults, initializes the source and, in apply-record mode,
// loads the calibration record.
func (c *Calibrator) Init(ctx context.Context) error {
	if c.cfg.Captures <= 0 {
		c.cfg.Captures = 1
	}
	if c.cfg.MaxLag <= 0 {
		c.cfg.MaxLag = dsp.DefaultMaxLag
	}
	if c.cfg.Mode != calibration.ModeEstimateApply && c.cfg.RecordPath == "" {
		return fmt.Errorf("%s: %w", c.cfg.Mode, ErrNoRecordPath)
	}
	if c.cfg.Mode == calibration.ModeApplyRecord {
		rec, err := calibration.Load(c.cfg.RecordPath)
		if err != nil {
			return fmt.Errorf("load calibration: %w", err)
		}
		c.record = rec
		c.logger.Info("calibration loaded",
			logging.F("record", c.cfg.RecordPath),
			logging.F("lag_samples", rec.LagSamples),
			logging.F("cfo_hz", rec.CFOHz),
			logging.F("phase_rad", rec.PhaseRad),
			logging.F("timestamp", rec.Timestamp))
	}
	if err := c.sdr.Init(ctx, c.cfg.Source); err != nil {
		return fmt.Errorf("init SDR: %w", err)
	}
	return nil
}

// Run processes cfg.Captures buffers from the source. It stops early when
// ctx is canceled.
func (c *Calibrator) Run(ctx context.Context) error {
	for i := 0; i < c.cfg.Captures; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		rx0, rx1, err := c.sdr.RX(ctx)
		if err != nil {
			return fmt.Errorf("receive samples: %w", err)
		}
		if len(rx0) == 0 || len(rx1) == 0 {
			c.logger.Warn("received empty buffer", logging.F("index", i))
		}
		out, err := c.process(i, rx0, rx1)
		if err != nil {
			return err
		}
		out.Report.Duration = time.Since(start)
		if c.reporter != nil {
			c.reporter.Report(out.Report)
		}
		c.outcomes = append(c.outcomes, out)
		c.logger.Debug("capture processed", logging.F("index", i), logging.F("elapsed_ms", out.Report.Duration.Seconds()*1000))
	}
	return nil
}

func (c *Calibrator) tuning() (fs, fc float64) {
	t := c.sdr.Tuning()
	fs, fc = t.SampleRate, t.CenterFreq
	if c.cfg.SampleRate > 0 {
		fs = c.cfg.SampleRate
	}
	if c.cfg.CenterFreq > 0 {
		fc = c.cfg.CenterFreq
	}
	return fs, fc
}

func (c *Calibrator) process(index int, rx0, rx1 []complex64) (Outcome, error) {
	fs, fc := c.tuning()
	opts := calibration.Options{DoCFO: c.cfg.DoCFO, MaxLag: c.cfg.MaxLag, Correlator: c.correlator}
	out := Outcome{Index: index}

	var err error
	switch c.cfg.Mode {
	case calibration.ModeEstimateApply:
		out.Result, err = calibration.Prepare(rx0, rx1, fs, opts)
		if err != nil {
			return Outcome{}, fmt.Errorf("prepare capture %d: %w", index, err)
		}
	case calibration.ModeEstimateOnly:
		out.Record, err = calibration.EstimateRecord(rx0, rx1, fs, fc, c.cfg.Source.CaptureDir, opts, c.now())
		if err != nil {
			return Outcome{}, fmt.Errorf("estimate capture %d: %w", index, err)
		}
		if err := calibration.Save(c.cfg.RecordPath, out.Record); err != nil {
			return Outcome{}, fmt.Errorf("save calibration: %w", err)
		}
		c.logger.Info("calibration saved", logging.F("record", c.cfg.RecordPath))
		// Metrics are taken from the stored record applied back onto the
		// same capture.
		out.Result, err = calibration.Apply(rx0, rx1, out.Record)
		if err != nil {
			return Outcome{}, fmt.Errorf("apply capture %d: %w", index, err)
		}
	case calibration.ModeApplyRecord:
		out.Record = c.record
		c.checkTuning(fs, fc)
		applyFs := c.record.FsHz
		if c.cfg.SampleRate > 0 {
			applyFs = c.cfg.SampleRate
		}
		out.Result, err = calibration.ApplyAt(rx0, rx1, c.record, applyFs)
		if err != nil {
			return Outcome{}, fmt.Errorf("apply capture %d: %w", index, err)
		}
	default:
		return Outcome{}, fmt.Errorf("unsupported mode %s", c.cfg.Mode)
	}

	res := out.Result
	out.Report = telemetry.Report{
		Timestamp:       c.now().UTC(),
		Mode:            c.cfg.Mode.String(),
		CaptureDir:      c.cfg.Source.CaptureDir,
		Samples:         len(res.Ref),
		LagSamples:      res.Estimate.LagSamples,
		CFOHz:           res.Estimate.CFOHz,
		PhaseRad:        res.Estimate.PhaseRad,
		ResidualStdRad:  dsp.ResidualPhaseStd(res.Ref, res.Aligned),
		CombiningGainDB: dsp.CombiningGainDB(res.Ref, res.Aligned),
	}
	if c.cfg.Mode != calibration.ModeEstimateApply {
		out.Report.RecordPath = c.cfg.RecordPath
	}

	if c.cfg.OutDir != "" {
		written, err := c.writeOutputs(index, res, fs, fc)
		if err != nil {
			return Outcome{}, err
		}
		out.Written = written
	}
	return out, nil
}

// checkTuning warns when a capture was taken at a different rate or center
// frequency than the record it is corrected with.
func (c *Calibrator) checkTuning(fs, fc float64) {
	if fs > 0 && fs != c.record.FsHz {
		c.logger.Warn("sample rate differs from calibration record",
			logging.F("capture_fs_hz", fs), logging.F("record_fs_hz", c.record.FsHz))
	}
	if fc > 0 && c.record.FcHz > 0 && fc != c.record.FcHz {
		c.logger.Warn("center frequency differs from calibration record",
			logging.F("capture_fc_hz", fc), logging.F("record_fc_hz", c.record.FcHz))
	}
}

func (c *Calibrator) writeOutputs(index int, res calibration.Result, fs, fc float64) (iqfile.Capture, error) {
	dir := c.cfg.OutDir
	if c.cfg.Captures > 1 {
		dir = filepath.Join(dir, fmt.Sprintf("capture%03d", index))
	}
	meta := iqfile.Meta{FcHz: fc, FsHz: fs, DeviceIndices: []int{0, 1}}
	if fs > 0 {
		meta.DurationS = float64(len(res.Ref)) / fs
	}
	written, err := iqfile.WriteCapture(dir, "ref", "aligned", res.Ref, res.Aligned, meta)
	if err != nil {
		return iqfile.Capture{}, fmt.Errorf("write aligned capture: %w", err)
	}
	beam := dsp.Combine(res.Ref, res.Aligned, c.cfg.SteerRad)
	if err := iqfile.WriteC64(filepath.Join(dir, BeamFile), beam); err != nil {
		return iqfile.Capture{}, fmt.Errorf("write beam: %w", err)
	}
	c.logger.Info("aligned capture written", logging.F("dir", dir), logging.F("samples", len(res.Ref)))
	return written, nil
}

// BeamFile is the name of the combined-beam output inside OutDir.
const BeamFile = "beam.c64"

// Outcomes returns the per-capture results collected by Run.
func (c *Calibrator) Outcomes() []Outcome {
	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}

// Close releases the source.
func (c *Calibrator) Close() error {
	return c.sdr.Close()
}
