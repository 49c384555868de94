// Command dualrx calibrates captures from two independently clocked
// receivers so they can be combined coherently.
//
//	dualrx prep      [flags] CAPTURE_DIR...   estimate and align each capture
//	dualrx calibrate [flags] CAPTURE_DIR      estimate and store a record
//	dualrx apply     [flags] CAPTURE_DIR...   align captures with a stored record
//	dualrx simulate  [flags]                  run on a synthetic impaired pair
//
// Flags must precede capture directories. Defaults come from dualrx.json
// (or $DUALRX_CONFIG), overridden by DUALRX_* variables, then by flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rjboer/dualrx/internal/app"
	"github.com/rjboer/dualrx/internal/calibration"
	"github.com/rjboer/dualrx/internal/dsp"
	"github.com/rjboer/dualrx/internal/iqfile"
	"github.com/rjboer/dualrx/internal/logging"
	"github.com/rjboer/dualrx/internal/sdr"
	"github.com/rjboer/dualrx/internal/telemetry"
)

const defaultConfigPath = "dualrx.json"

var errUsage = errors.New("usage: dualrx prep|calibrate|apply|simulate [flags] [capture-dir...]")

func main() {
	if err := run(os.Args[1:], os.LookupEnv, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "dualrx:", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	command     string
	captureDirs []string

	sampleRate   float64
	centerFreq   float64
	maxLag       int
	doCFO        bool
	recordPath   string
	outDir       string
	numSamples   int
	captures     int
	steerDeg     float64
	spacing      float64
	reportPath   string
	historyLimit int
	logLevel     string
	logFormat    string
	logFile      string

	mockDelay    int
	mockCFO      float64
	mockPhase    float64
	mockNoise    float64
	mockSeed     int64
	writeCapture string
}

type persistentConfig struct {
	SampleRate   float64 `json:"sample_rate"`
	CenterFreq   float64 `json:"center_freq"`
	MaxLag       int     `json:"max_lag"`
	DoCFO        bool    `json:"do_cfo"`
	RecordPath   string  `json:"record_path"`
	OutDir       string  `json:"out_dir"`
	NumSamples   int     `json:"num_samples"`
	Spacing      float64 `json:"spacing_wavelength"`
	HistoryLimit int     `json:"history_limit"`
	LogLevel     string  `json:"log_level"`
	LogFormat    string  `json:"log_format"`
	LogFile      string  `json:"log_file"`
	MockDelay    int     `json:"mock_delay_samples"`
	MockCFO      float64 `json:"mock_cfo_hz"`
	MockPhase    float64 `json:"mock_phase_rad"`
	MockNoise    float64 `json:"mock_noise_std"`
	MockSeed     int64   `json:"mock_seed"`
}

func defaultPersistentConfig() persistentConfig {
	return persistentConfig{
		MaxLag:       dsp.DefaultMaxLag,
		DoCFO:        true,
		RecordPath:   "calibration.json",
		Spacing:      0.5,
		HistoryLimit: 500,
		LogLevel:     "info",
		LogFormat:    "text",
		MockDelay:    37,
		MockCFO:      5,
		MockPhase:    0.7,
		MockNoise:    0.01,
		MockSeed:     1,
	}
}

func parseConfig(command string, args []string, lookup func(string) (string, bool), defaults persistentConfig) (cliConfig, error) {
	cfg := cliConfig{command: command}
	fs := flag.NewFlagSet("dualrx "+command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Float64Var(&cfg.sampleRate, "sample-rate", envFloat(lookup, "DUALRX_SAMPLE_RATE", defaults.SampleRate), "Sample rate in Hz (0: from meta.txt or record)")
	fs.Float64Var(&cfg.centerFreq, "center-freq", envFloat(lookup, "DUALRX_CENTER_FREQ", defaults.CenterFreq), "Center frequency in Hz (0: from meta.txt)")
	fs.IntVar(&cfg.maxLag, "max-lag", envInt(lookup, "DUALRX_MAX_LAG", defaults.MaxLag), "Delay search window in samples")
	fs.BoolVar(&cfg.doCFO, "cfo", envBool(lookup, "DUALRX_CFO", defaults.DoCFO), "Estimate and correct CFO in prep/simulate")
	fs.StringVar(&cfg.recordPath, "record", envString(lookup, "DUALRX_RECORD", defaults.RecordPath), "Calibration record path")
	fs.StringVar(&cfg.outDir, "out", envString(lookup, "DUALRX_OUT", defaults.OutDir), "Directory for aligned output (empty: none)")
	fs.IntVar(&cfg.numSamples, "num-samples", envInt(lookup, "DUALRX_NUM_SAMPLES", defaults.NumSamples), "Samples per capture (0: whole file, or the mock default)")
	fs.IntVar(&cfg.captures, "captures", envInt(lookup, "DUALRX_CAPTURES", 1), "Number of captures to process per source")
	fs.Float64Var(&cfg.steerDeg, "steer-deg", envFloat(lookup, "DUALRX_STEER_DEG", 0), "Beam steering angle in degrees for the combined output")
	fs.Float64Var(&cfg.spacing, "spacing-wavelength", envFloat(lookup, "DUALRX_SPACING_WAVELENGTH", defaults.Spacing), "Antenna spacing as a fraction of wavelength")
	fs.StringVar(&cfg.reportPath, "report", envString(lookup, "DUALRX_REPORT", ""), "Write a JSON report of all processed captures")
	fs.IntVar(&cfg.historyLimit, "history-limit", envInt(lookup, "DUALRX_HISTORY_LIMIT", defaults.HistoryLimit), "Maximum reports kept for the summary")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "DUALRX_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "DUALRX_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")
	fs.StringVar(&cfg.logFile, "log-file", envString(lookup, "DUALRX_LOG_FILE", defaults.LogFile), "Also write logs to this rotating file")
	fs.IntVar(&cfg.mockDelay, "mock-delay", envInt(lookup, "DUALRX_MOCK_DELAY", defaults.MockDelay), "Simulated delay of ch1 in samples")
	fs.Float64Var(&cfg.mockCFO, "mock-cfo", envFloat(lookup, "DUALRX_MOCK_CFO", defaults.MockCFO), "Simulated CFO of ch1 in Hz")
	fs.Float64Var(&cfg.mockPhase, "mock-phase", envFloat(lookup, "DUALRX_MOCK_PHASE", defaults.MockPhase), "Simulated phase of ch1 in radians")
	fs.Float64Var(&cfg.mockNoise, "mock-noise", envFloat(lookup, "DUALRX_MOCK_NOISE", defaults.MockNoise), "Simulated noise standard deviation")
	fs.Int64Var(&cfg.mockSeed, "mock-seed", envInt64(lookup, "DUALRX_MOCK_SEED", defaults.MockSeed), "Simulation random seed")
	fs.StringVar(&cfg.writeCapture, "write-capture", envString(lookup, "DUALRX_WRITE_CAPTURE", ""), "simulate: store the synthetic capture here and process it from disk")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	cfg.captureDirs = fs.Args()
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg cliConfig) error {
	switch cfg.command {
	case "prep", "apply":
		if len(cfg.captureDirs) == 0 {
			return fmt.Errorf("%s: at least one capture directory required", cfg.command)
		}
	case "calibrate":
		if len(cfg.captureDirs) != 1 {
			return fmt.Errorf("calibrate: exactly one capture directory required, got %d", len(cfg.captureDirs))
		}
	case "simulate":
		if len(cfg.captureDirs) != 0 {
			return fmt.Errorf("simulate: unexpected arguments %v", cfg.captureDirs)
		}
	default:
		return fmt.Errorf("unknown command %q: %w", cfg.command, errUsage)
	}
	if cfg.command != "prep" && cfg.command != "simulate" && cfg.recordPath == "" {
		return fmt.Errorf("%s: -record is required", cfg.command)
	}
	if cfg.captures > 1 && cfg.command != "simulate" {
		return fmt.Errorf("%s: -captures only applies to simulate", cfg.command)
	}
	return nil
}

func persistentFromCLI(cfg cliConfig) persistentConfig {
	return persistentConfig{
		SampleRate:   cfg.sampleRate,
		CenterFreq:   cfg.centerFreq,
		MaxLag:       cfg.maxLag,
		DoCFO:        cfg.doCFO,
		RecordPath:   cfg.recordPath,
		OutDir:       cfg.outDir,
		NumSamples:   cfg.numSamples,
		Spacing:      cfg.spacing,
		HistoryLimit: cfg.historyLimit,
		LogLevel:     cfg.logLevel,
		LogFormat:    cfg.logFormat,
		LogFile:      cfg.logFile,
		MockDelay:    cfg.mockDelay,
		MockCFO:      cfg.mockCFO,
		MockPhase:    cfg.mockPhase,
		MockNoise:    cfg.mockNoise,
		MockSeed:     cfg.mockSeed,
	}
}

func loadOrCreateConfig(path string) (persistentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultPersistentConfig()
			if saveErr := saveConfig(path, cfg); saveErr != nil {
				return persistentConfig{}, saveErr
			}
			return cfg, nil
		}
		return persistentConfig{}, err
	}
	defer f.Close()

	cfg := defaultPersistentConfig()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return persistentConfig{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(path string, cfg persistentConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envInt64(lookup func(string) (string, bool), key string, def int64) int64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func commandMode(command string) calibration.Mode {
	switch command {
	case "calibrate":
		return calibration.ModeEstimateOnly
	case "apply":
		return calibration.ModeApplyRecord
	default:
		return calibration.ModeEstimateApply
	}
}

const (
	sourceFile = "file"
	sourceMock = "mock"
)

// job is one calibrator run: a source plus the app configuration for it.
type job struct {
	backend sdr.SDR
	cfg     app.Config
}

func buildJobs(ctx context.Context, cfg cliConfig, logger logging.Logger) ([]job, error) {
	base := app.Config{
		Mode:       commandMode(cfg.command),
		SampleRate: cfg.sampleRate,
		CenterFreq: cfg.centerFreq,
		MaxLag:     cfg.maxLag,
		DoCFO:      cfg.doCFO,
		RecordPath: cfg.recordPath,
		OutDir:     cfg.outDir,
		SteerRad:   dsp.SteeringPhase(cfg.steerDeg*math.Pi/180, cfg.spacing),
		Captures:   cfg.captures,
	}
	if cfg.command == "prep" {
		base.RecordPath = ""
	}

	if cfg.command == "simulate" {
		mockCfg := sdr.Config{
			NumSamples:   cfg.numSamples,
			SampleRate:   cfg.sampleRate,
			CenterFreq:   cfg.centerFreq,
			DelaySamples: cfg.mockDelay,
			CFOHz:        cfg.mockCFO,
			PhaseRad:     cfg.mockPhase,
			NoiseStd:     cfg.mockNoise,
			Seed:         cfg.mockSeed,
		}
		if cfg.writeCapture == "" {
			backend, err := sdr.New(sourceMock)
			if err != nil {
				return nil, err
			}
			base.Source = mockCfg
			return []job{{backend: backend, cfg: base}}, nil
		}
		if err := writeSyntheticCapture(ctx, cfg.writeCapture, mockCfg); err != nil {
			return nil, err
		}
		logger.Info("synthetic capture written", logging.F("dir", cfg.writeCapture))
		backend, err := sdr.New(sourceFile)
		if err != nil {
			return nil, err
		}
		base.Source = sdr.Config{CaptureDir: cfg.writeCapture}
		base.Captures = 1
		return []job{{backend: backend, cfg: base}}, nil
	}

	jobs := make([]job, 0, len(cfg.captureDirs))
	for _, dir := range cfg.captureDirs {
		backend, err := sdr.New(sourceFile)
		if err != nil {
			return nil, err
		}
		jc := base
		jc.Source = sdr.Config{CaptureDir: dir, NumSamples: cfg.numSamples}
		if cfg.outDir != "" && len(cfg.captureDirs) > 1 {
			jc.OutDir = filepath.Join(cfg.outDir, filepath.Base(filepath.Clean(dir)))
		}
		jobs = append(jobs, job{backend: backend, cfg: jc})
	}
	return jobs, nil
}

func writeSyntheticCapture(ctx context.Context, dir string, cfg sdr.Config) error {
	mock, err := sdr.New(sourceMock)
	if err != nil {
		return err
	}
	if err := mock.Init(ctx, cfg); err != nil {
		return err
	}
	ch0, ch1, err := mock.RX(ctx)
	if err != nil {
		return fmt.Errorf("synthesize capture: %w", err)
	}
	tun := mock.Tuning()
	meta := iqfile.Meta{
		FcHz:          tun.CenterFreq,
		FsHz:          tun.SampleRate,
		DeviceIndices: []int{0, 1},
		DurationS:     float64(len(ch0)) / tun.SampleRate,
	}
	if _, err := iqfile.WriteCapture(dir, "mock0", "mock1", ch0, ch1, meta); err != nil {
		return fmt.Errorf("write synthetic capture: %w", err)
	}
	return nil
}

func run(args []string, lookup func(string) (string, bool), stderr io.Writer) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errUsage
	}
	command := args[0]

	configPath := envString(lookup, "DUALRX_CONFIG", defaultConfigPath)
	persistent, err := loadOrCreateConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := parseConfig(command, args[1:], lookup, persistent)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := saveConfig(configPath, persistentFromCLI(cfg)); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		return err
	}
	out, closer := logging.Output(stderr, cfg.logFile)
	defer closer.Close()
	logger := logging.New(level, format, out)
	logging.SetDefault(logger)

	hub, err := telemetry.NewHub(cfg.historyLimit)
	if err != nil {
		return err
	}
	reporter := telemetry.MultiReporter{telemetry.NewStdoutReporter(logger), hub}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	jobs, err := buildJobs(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if total := captureCount(jobs); total > 1 {
		stopProgress := watchProgress(hub, logger, total)
		defer stopProgress()
	}
	for _, j := range jobs {
		cal := app.NewCalibrator(j.backend, reporter, logger, j.cfg)
		if err := cal.Init(ctx); err != nil {
			return fmt.Errorf("init calibrator: %w", err)
		}
		runErr := cal.Run(ctx)
		if err := cal.Close(); err != nil {
			logger.Warn("close source", logging.Err(err))
		}
		if runErr != nil {
			return fmt.Errorf("%s %s: %w", command, j.cfg.Source.CaptureDir, runErr)
		}
	}

	if s := hub.Summary(); s.Count > 1 {
		logger.Info("calibration summary",
			logging.F("captures", s.Count),
			logging.F("lag_min", s.LagMin),
			logging.F("lag_max", s.LagMax),
			logging.F("cfo_mean_hz", s.CFOMeanHz),
			logging.F("cfo_std_hz", s.CFOStdHz),
			logging.F("phase_mean_rad", s.PhaseMeanRad),
			logging.F("residual_max_rad", s.ResidualMaxRad))
	}
	if cfg.reportPath != "" {
		if err := writeReport(cfg.reportPath, hub); err != nil {
			return err
		}
	}
	return nil
}

func captureCount(jobs []job) int {
	total := 0
	for _, j := range jobs {
		total += max(j.cfg.Captures, 1)
	}
	return total
}

// watchProgress logs each report the hub receives against the expected total.
// The returned stop func unsubscribes and waits for pending lines to be written.
func watchProgress(hub *telemetry.Hub, logger logging.Logger, total int) func() {
	updates, cancel := hub.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		n := 0
		for rep := range updates {
			n++
			logger.Info("capture processed",
				logging.F("done", n),
				logging.F("total", total),
				logging.F("dir", rep.CaptureDir))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func writeReport(path string, hub *telemetry.Hub) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := hub.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
