package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// RecordVersion is the record layout written by Save. Files without a
// version key are read as version 1.
const RecordVersion = 1

// MaxRecordLag bounds |lag_samples| in a record, about a minute of samples at
// 2.4 MHz. Larger values cannot come from a real capture.
const MaxRecordLag = 1 << 27

// ErrInvalidRecord marks a calibration record that cannot be used.
var ErrInvalidRecord = errors.New("invalid calibration record")

// Record is a persisted calibration. LagSamples, CFOHz and PhaseRad describe
// channel 1 relative to channel 0; FcHz and FsHz are the capture settings the
// estimate was made with.
type Record struct {
	Version    int     `json:"version"`
	LagSamples int     `json:"lag_samples"`
	CFOHz      float64 `json:"cfo_hz"`
	PhaseRad   float64 `json:"phase_rad"`
	FcHz       float64 `json:"fc_hz"`
	FsHz       float64 `json:"fs_hz"`
	Timestamp  string  `json:"timestamp"`
	CaptureDir string  `json:"capture_dir,omitempty"`
}

// Estimate returns the offsets held by the record.
func (r Record) Estimate() Estimate {
	return Estimate{LagSamples: r.LagSamples, CFOHz: r.CFOHz, PhaseRad: r.PhaseRad}
}

// Time parses the record timestamp.
func (r Record) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.Timestamp)
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.Version != RecordVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidRecord, r.Version)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"cfo_hz", r.CFOHz},
		{"phase_rad", r.PhaseRad},
		{"fc_hz", r.FcHz},
		{"fs_hz", r.FsHz},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidRecord, f.name)
		}
	}
	if r.LagSamples < -MaxRecordLag || r.LagSamples > MaxRecordLag {
		return fmt.Errorf("%w: lag_samples %d outside ±%d", ErrInvalidRecord, r.LagSamples, MaxRecordLag)
	}
	if r.FsHz <= 0 {
		return fmt.Errorf("%w: fs_hz must be positive, got %v", ErrInvalidRecord, r.FsHz)
	}
	if r.PhaseRad < -math.Pi || r.PhaseRad > math.Pi {
		return fmt.Errorf("%w: phase_rad %v outside [-pi, pi]", ErrInvalidRecord, r.PhaseRad)
	}
	if _, err := r.Time(); err != nil {
		return fmt.Errorf("%w: timestamp: %v", ErrInvalidRecord, err)
	}
	return nil
}

// recordFile mirrors Record with pointers so missing keys are detected
// instead of silently decoding as zero.
type recordFile struct {
	Version    *int     `json:"version"`
	LagSamples *int     `json:"lag_samples"`
	CFOHz      *float64 `json:"cfo_hz"`
	PhaseRad   *float64 `json:"phase_rad"`
	FcHz       *float64 `json:"fc_hz"`
	FsHz       *float64 `json:"fs_hz"`
	Timestamp  *string  `json:"timestamp"`
	CaptureDir *string  `json:"capture_dir"`
}

// Marshal renders the record as indented JSON.
func Marshal(r Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode calibration record: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal parses and validates a record. Every field except capture_dir
// (and version, for files written before versioning) is required, and data
// must hold exactly one JSON object.
func Unmarshal(data []byte) (Record, error) {
	var f recordFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var missing []string
	if f.LagSamples == nil {
		missing = append(missing, "lag_samples")
	}
	if f.CFOHz == nil {
		missing = append(missing, "cfo_hz")
	}
	if f.PhaseRad == nil {
		missing = append(missing, "phase_rad")
	}
	if f.FcHz == nil {
		missing = append(missing, "fc_hz")
	}
	if f.FsHz == nil {
		missing = append(missing, "fs_hz")
	}
	if f.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return Record{}, fmt.Errorf("%w: missing fields %v", ErrInvalidRecord, missing)
	}

	r := Record{
		Version:    RecordVersion,
		LagSamples: *f.LagSamples,
		CFOHz:      *f.CFOHz,
		PhaseRad:   *f.PhaseRad,
		FcHz:       *f.FcHz,
		FsHz:       *f.FsHz,
		Timestamp:  *f.Timestamp,
	}
	if f.Version != nil {
		r.Version = *f.Version
	}
	if f.CaptureDir != nil {
		r.CaptureDir = *f.CaptureDir
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Save writes the record to path, replacing any previous file atomically.
// Parent directories are created as needed.
func Save(path string, r Record) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

// Load reads and validates a record. A missing or malformed file is an error;
// no field is ever defaulted.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read calibration record: %w", err)
	}
	r, err := Unmarshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
