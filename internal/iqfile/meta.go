package iqfile

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrIncompleteMeta is returned when meta.txt lacks the center frequency or
// the sample rate.
var ErrIncompleteMeta = errors.New("capture metadata incomplete")

// Meta describes how a capture was taken. Only FcHz and FsHz feed the
// calibration; the rest is carried for reporting.
type Meta struct {
	FcHz          float64
	FsHz          float64
	GainDB        float64
	GainAuto      bool
	PPM           float64
	DeviceIndices []int
	DurationS     float64
}

// metaFile is the on-disk layout. The capture tool writes a Python dict
// literal, which is also a YAML flow mapping.
type metaFile struct {
	FcHz          *float64    `yaml:"fc_hz"`
	FsHzRequested *float64    `yaml:"fs_hz_requested"`
	FsHz          *float64    `yaml:"fs_hz"`
	GainDB        interface{} `yaml:"gain_db"`
	PPM           float64     `yaml:"ppm"`
	DeviceIndices []int       `yaml:"device_indices"`
	DurationS     float64     `yaml:"duration_s"`
}

// ParseMeta decodes meta.txt content. fs may be given as fs_hz_requested
// (preferred) or fs_hz.
func ParseMeta(data []byte) (Meta, error) {
	var f metaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Meta{}, fmt.Errorf("parse capture metadata: %w", err)
	}
	if f.FcHz == nil {
		return Meta{}, fmt.Errorf("%w: missing fc_hz", ErrIncompleteMeta)
	}
	fs := f.FsHzRequested
	if fs == nil {
		fs = f.FsHz
	}
	if fs == nil {
		return Meta{}, fmt.Errorf("%w: missing fs_hz_requested", ErrIncompleteMeta)
	}
	m := Meta{
		FcHz:          *f.FcHz,
		FsHz:          *fs,
		PPM:           f.PPM,
		DeviceIndices: f.DeviceIndices,
		DurationS:     f.DurationS,
	}
	switch g := f.GainDB.(type) {
	case nil:
	case int:
		m.GainDB = float64(g)
	case float64:
		m.GainDB = g
	case string:
		if !strings.EqualFold(g, "auto") {
			return Meta{}, fmt.Errorf("parse capture metadata: gain_db %q", g)
		}
		m.GainAuto = true
	default:
		return Meta{}, fmt.Errorf("parse capture metadata: unsupported gain_db %v", g)
	}
	return m, nil
}

// ReadMeta loads and parses a meta.txt file.
func ReadMeta(path string) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, fmt.Errorf("read %s: %w", path, err)
	}
	m, err := ParseMeta(data)
	if err != nil {
		return Meta{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Format renders m the way the capture tool writes meta.txt.
func (m Meta) Format() string {
	gain := pyFloat(m.GainDB)
	if m.GainAuto {
		gain = "'auto'"
	}
	idx := make([]string, len(m.DeviceIndices))
	for i, v := range m.DeviceIndices {
		idx[i] = strconv.Itoa(v)
	}
	return fmt.Sprintf("{'fc_hz': %s, 'fs_hz_requested': %s, 'gain_db': %s, 'ppm': %s, 'device_indices': [%s], 'duration_s': %s}",
		pyFloat(m.FcHz), pyFloat(m.FsHz), gain, pyFloat(m.PPM), strings.Join(idx, ", "), pyFloat(m.DurationS))
}

// WriteMeta writes m to path in the meta.txt format.
func WriteMeta(path string, m Meta) error {
	if err := os.WriteFile(path, []byte(m.Format()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// pyFloat formats v like Python's float repr for the magnitudes found in
// capture metadata.
func pyFloat(v float64) string {
	if math.Abs(v) >= 1e16 || (v != 0 && math.Abs(v) < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
