package app

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rjboer/dualrx/internal/calibration"
	"github.com/rjboer/dualrx/internal/iqfile"
	"github.com/rjboer/dualrx/internal/logging"
	"github.com/rjboer/dualrx/internal/sdr"
	"github.com/rjboer/dualrx/internal/telemetry"
)

type recordingReporter struct {
	reports []telemetry.Report
}

func (r *recordingReporter) Report(rep telemetry.Report) {
	r.reports = append(r.reports, rep)
}

func testLogger() logging.Logger {
	return logging.New(logging.Debug, logging.Text, io.Discard)
}

func mockConfig(seed int64) sdr.Config {
	return sdr.Config{
		NumSamples:   100_000,
		SampleRate:   2.4e6,
		CenterFreq:   868.1e6,
		DelaySamples: 37,
		CFOHz:        5,
		PhaseRad:     0.7,
		NoiseStd:     0.01,
		Seed:         seed,
	}
}

func TestCalibratorEstimateApplyWithMock(t *testing.T) {
	reporter := &recordingReporter{}
	outDir := filepath.Join(t.TempDir(), "aligned")
	cal := NewCalibrator(sdr.NewMock(), reporter, testLogger(), Config{
		Mode:   calibration.ModeEstimateApply,
		DoCFO:  true,
		OutDir: outDir,
		Source: mockConfig(1),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cal.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := cal.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(reporter.reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reporter.reports))
	}
	rep := reporter.reports[0]
	if rep.LagSamples != 37 || math.Abs(rep.CFOHz-5) > 0.1 || math.Abs(rep.PhaseRad-0.7) > 0.01 {
		t.Fatalf("unexpected estimate %+v", rep)
	}
	if rep.ResidualStdRad >= 0.05 || rep.CombiningGainDB < 5.9 {
		t.Fatalf("poor alignment %+v", rep)
	}
	if rep.Mode != "estimate-apply" || rep.RecordPath != "" {
		t.Fatalf("unexpected report fields %+v", rep)
	}

	written := cal.Outcomes()[0].Written
	ref, err := iqfile.ReadC64(written.Ch0Path)
	if err != nil {
		t.Fatalf("read aligned ref: %v", err)
	}
	if len(ref) != rep.Samples {
		t.Fatalf("expected %d samples on disk, got %d", rep.Samples, len(ref))
	}
	meta, err := iqfile.ReadMeta(written.MetaPath)
	if err != nil || meta.FsHz != 2.4e6 || meta.FcHz != 868.1e6 {
		t.Fatalf("unexpected output meta %+v %v", meta, err)
	}
	if _, err := os.Stat(filepath.Join(outDir, BeamFile)); err != nil {
		t.Fatalf("expected beam output: %v", err)
	}
}

func TestCalibratorCalibrateThenApply(t *testing.T) {
	recordPath := filepath.Join(t.TempDir(), "calibration.json")
	fixed := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	estimator := NewCalibrator(sdr.NewMock(), nil, testLogger(), Config{
		Mode:       calibration.ModeEstimateOnly,
		RecordPath: recordPath,
		Source:     mockConfig(2),
	})
	estimator.now = func() time.Time { return fixed }
	ctx := context.Background()
	if err := estimator.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := estimator.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	rec, err := calibration.Load(recordPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.LagSamples != 37 || rec.FsHz != 2.4e6 || rec.FcHz != 868.1e6 || rec.Timestamp != "2026-10-15T08:00:00Z" {
		t.Fatalf("unexpected record %+v", rec)
	}

	reporter := &recordingReporter{}
	applier := NewCalibrator(sdr.NewMock(), reporter, testLogger(), Config{
		Mode:       calibration.ModeApplyRecord,
		RecordPath: recordPath,
		Captures:   2,
		Source:     mockConfig(3),
	})
	if err := applier.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := applier.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(reporter.reports) != 2 {
		t.Fatalf("expected two reports, got %d", len(reporter.reports))
	}
	for _, rep := range reporter.reports {
		if rep.LagSamples != rec.LagSamples || rep.CFOHz != rec.CFOHz || rep.PhaseRad != rec.PhaseRad {
			t.Fatalf("apply must report the record values, got %+v", rep)
		}
		if rep.ResidualStdRad >= 0.05 {
			t.Fatalf("residual %.4f too large", rep.ResidualStdRad)
		}
		if rep.RecordPath != recordPath {
			t.Fatalf("expected record path in report")
		}
	}
}

func TestCalibratorWithFileSource(t *testing.T) {
	mock := sdr.NewMock()
	cfg := mockConfig(4)
	cfg.DelaySamples = -21
	if err := mock.Init(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	ch0, ch1, err := mock.RX(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(t.TempDir(), "run001")
	if _, err := iqfile.WriteCapture(dir, "rtl0", "rtl1", ch0, ch1, iqfile.Meta{FcHz: 433.92e6, FsHz: 2.4e6}); err != nil {
		t.Fatal(err)
	}

	reporter := &recordingReporter{}
	cal := NewCalibrator(sdr.NewFile(), reporter, testLogger(), Config{
		Mode:   calibration.ModeEstimateApply,
		DoCFO:  true,
		Source: sdr.Config{CaptureDir: dir},
	})
	if err := cal.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := cal.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	rep := reporter.reports[0]
	if rep.LagSamples != -21 || rep.CaptureDir != dir {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestCalibratorErrors(t *testing.T) {
	ctx := context.Background()
	cal := NewCalibrator(sdr.NewMock(), nil, nil, Config{Mode: calibration.ModeEstimateOnly})
	if err := cal.Init(ctx); !errors.Is(err, ErrNoRecordPath) {
		t.Fatalf("expected ErrNoRecordPath, got %v", err)
	}

	missing := filepath.Join(t.TempDir(), "missing.json")
	cal = NewCalibrator(sdr.NewMock(), nil, nil, Config{Mode: calibration.ModeApplyRecord, RecordPath: missing})
	if err := cal.Init(ctx); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	cal = NewCalibrator(sdr.NewMock(), nil, nil, Config{Mode: calibration.ModeEstimateApply, Source: sdr.Config{NumSamples: 64}})
	if err := cal.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := cal.Run(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
