package calibration

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleRecord() Record {
	return Record{
		Version:    RecordVersion,
		LagSamples: -1234,
		CFOHz:      math.Nextafter(4.999999999, 6),
		PhaseRad:   -0.1234567890123456789,
		FcHz:       868.1e6,
		FsHz:       2.4e6,
		Timestamp:  "2026-10-15T08:01:02.123456789Z",
		CaptureDir: "captures/run001",
	}
}

func TestRecordRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Record)
	}{
		{name: "full", mod: func(*Record) {}},
		{name: "no_capture_dir", mod: func(r *Record) { r.CaptureDir = "" }},
		{name: "tiny_values", mod: func(r *Record) { r.CFOHz = 1e-300; r.PhaseRad = math.SmallestNonzeroFloat64 }},
		{name: "zero_cfo", mod: func(r *Record) { r.CFOHz = 0; r.LagSamples = 0 }},
		{name: "pi", mod: func(r *Record) { r.PhaseRad = math.Pi }},
		{name: "lag_bound", mod: func(r *Record) { r.LagSamples = -MaxRecordLag }},
	}
	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sampleRecord()
			tt.mod(&rec)
			path := filepath.Join(dir, tt.name+".json")
			if err := Save(path, rec); err != nil {
				t.Fatalf("save failed: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if loaded != rec {
				t.Fatalf("round trip mismatch:\n%+v\n%+v", rec, loaded)
			}
		})
	}
}

func TestSaveWritesReadableJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	if err := Save(path, sampleRecord()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for _, key := range []string{`"lag_samples": -1234`, `"fc_hz": 868100000`, `"capture_dir": "captures/run001"`, `"version": 1`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("expected %s in\n%s", key, data)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the record file, found %d entries", len(entries))
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	first := sampleRecord()
	if err := Save(path, first); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	second := first
	second.LagSamples = 7
	if err := Save(path, second); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.LagSamples != 7 {
		t.Fatalf("expected replaced record, got lag %d", loaded.LagSamples)
	}
}

func TestLoadLegacyRecordWithoutVersion(t *testing.T) {
	legacy := `{
  "lag_samples": 37,
  "cfo_hz": 4.98731,
  "phase_rad": 0.70021,
  "fc_hz": 868100000.0,
  "fs_hz": 2400000.0,
  "timestamp": "2026-02-11T14:03:27.512345+00:00"
}`
	path := filepath.Join(t.TempDir(), "legacy.json")
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	rec, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.Version != RecordVersion || rec.LagSamples != 37 || rec.CFOHz != 4.98731 || rec.CaptureDir != "" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestUnmarshalRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed", data: `{"lag_samples": 3,`},
		{name: "not_object", data: `[1, 2, 3]`},
		{name: "missing_lag", data: `{"cfo_hz": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}`},
		{name: "missing_cfo", data: `{"lag_samples": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}`},
		{name: "missing_phase", data: `{"lag_samples": 0, "cfo_hz": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}`},
		{name: "null_phase", data: `{"lag_samples": 0, "cfo_hz": 0, "phase_rad": null, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}`},
		{name: "fractional_lag", data: `{"lag_samples": 1.5, "cfo_hz": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}`},
		{name: "zero_fs", data: `{"lag_samples": 0, "cfo_hz": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 0, "timestamp": "2026-01-01T00:00:00Z"}`},
		{name: "phase_range", data: `{"lag_samples": 0, "cfo_hz": 0, "phase_rad": 4, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}`},
		{name: "bad_timestamp", data: `{"lag_samples": 0, "cfo_hz": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "yesterday"}`},
		{name: "trailing_data", data: `{"lag_samples": 0, "cfo_hz": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"} {"garbage": true}`},
		{name: "double_brace", data: `{"lag_samples": 0, "cfo_hz": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}}`},
		{name: "huge_lag", data: `{"lag_samples": 200000000, "cfo_hz": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}`},
		{name: "future_version", data: `{"version": 2, "lag_samples": 0, "cfo_hz": 0, "phase_rad": 0, "fc_hz": 1, "fs_hz": 1, "timestamp": "2026-01-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			if !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestLoadRejectsTrailingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	if err := Save(path, sampleRecord()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"lag_samples": 1}`); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := Load(path); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestMarshalRejectsInvalid(t *testing.T) {
	rec := sampleRecord()
	rec.CFOHz = math.Inf(1)
	if _, err := Marshal(rec); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := Save(path, rec); err == nil {
		t.Fatalf("expected save to fail")
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("invalid record should not be written")
	}
}
