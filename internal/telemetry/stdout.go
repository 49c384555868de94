// Package telemetry carries calibration run reports to the log and to an
// in-memory history that can be summarized or dumped as JSON.
package telemetry

import (
	"time"

	"github.com/rjboer/dualrx/internal/logging"
)

// Report describes one processed capture.
type Report struct {
	Timestamp  time.Time `json:"timestamp"`
	Mode       string    `json:"mode"`
	CaptureDir string    `json:"captureDir,omitempty"`
	RecordPath string    `json:"recordPath,omitempty"`
	Samples    int       `json:"samples"`

	LagSamples int     `json:"lagSamples"`
	CFOHz      float64 `json:"cfoHz"`
	PhaseRad   float64 `json:"phaseRad"`

	ResidualStdRad  float64       `json:"residualStdRad"`
	CombiningGainDB float64       `json:"combiningGainDb"`
	Duration        time.Duration `json:"durationNs"`
}

// Reporter captures calibration reports.
type Reporter interface {
	Report(r Report)
}

// StdoutReporter logs each report through a logging.Logger.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

func (r StdoutReporter) Report(rep Report) {
	fields := []logging.Field{
		logging.F("subsystem", "telemetry"),
		logging.F("mode", rep.Mode),
		logging.F("samples", rep.Samples),
		logging.F("lag_samples", rep.LagSamples),
		logging.F("cfo_hz", rep.CFOHz),
		logging.F("phase_rad", rep.PhaseRad),
		logging.F("residual_std_rad", rep.ResidualStdRad),
		logging.F("combining_gain_db", rep.CombiningGainDB),
	}
	if rep.CaptureDir != "" {
		fields = append(fields, logging.F("capture_dir", rep.CaptureDir))
	}
	if rep.RecordPath != "" {
		fields = append(fields, logging.F("record", rep.RecordPath))
	}
	if rep.Duration > 0 {
		fields = append(fields, logging.F("elapsed", rep.Duration))
	}
	r.logger.Info("calibration report", fields...)
}

// MultiReporter fans out reports to multiple destinations.
type MultiReporter []Reporter

func (m MultiReporter) Report(rep Report) {
	for _, r := range m {
		if r != nil {
			r.Report(rep)
		}
	}
}
