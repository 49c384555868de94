package iqfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	// MetaFile is the metadata file name inside a capture directory.
	MetaFile = "meta.txt"

	ch0Pattern = "ch0_*.c64"
	ch1Pattern = "ch1_*.c64"
)

// ErrNoCapture is returned when a directory lacks a channel file.
var ErrNoCapture = errors.New("capture directory has no ch0/ch1 .c64 files")

// Capture locates the files of one two-channel capture.
type Capture struct {
	Dir      string
	Ch0Path  string
	Ch1Path  string
	MetaPath string // empty if the directory has no meta.txt
}

// FindCapture picks the first ch0_*.c64 and ch1_*.c64 (by name) in dir.
func FindCapture(dir string) (Capture, error) {
	ch0, err := firstMatch(dir, ch0Pattern)
	if err != nil {
		return Capture{}, err
	}
	ch1, err := firstMatch(dir, ch1Pattern)
	if err != nil {
		return Capture{}, err
	}
	c := Capture{Dir: dir, Ch0Path: ch0, Ch1Path: ch1}
	meta := filepath.Join(dir, MetaFile)
	if _, err := os.Stat(meta); err == nil {
		c.MetaPath = meta
	} else if !errors.Is(err, os.ErrNotExist) {
		return Capture{}, fmt.Errorf("stat %s: %w", meta, err)
	}
	return c, nil
}

func firstMatch(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s (want %s)", ErrNoCapture, dir, pattern)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Load reads both channel files and, when present, the metadata.
func (c Capture) Load() (ch0, ch1 []complex64, meta Meta, err error) {
	ch0, err = ReadC64(c.Ch0Path)
	if err != nil {
		return nil, nil, Meta{}, err
	}
	ch1, err = ReadC64(c.Ch1Path)
	if err != nil {
		return nil, nil, Meta{}, err
	}
	if c.MetaPath != "" {
		meta, err = ReadMeta(c.MetaPath)
		if err != nil {
			return nil, nil, Meta{}, err
		}
	}
	return ch0, ch1, meta, nil
}

// WriteCapture stores a pair as ch0_<tag0>.c64 / ch1_<tag1>.c64 plus meta.txt
// in dir, creating it if needed.
func WriteCapture(dir, tag0, tag1 string, ch0, ch1 []complex64, meta Meta) (Capture, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Capture{}, fmt.Errorf("create capture dir: %w", err)
	}
	c := Capture{
		Dir:      dir,
		Ch0Path:  filepath.Join(dir, "ch0_"+tag0+".c64"),
		Ch1Path:  filepath.Join(dir, "ch1_"+tag1+".c64"),
		MetaPath: filepath.Join(dir, MetaFile),
	}
	if err := WriteC64(c.Ch0Path, ch0); err != nil {
		return Capture{}, err
	}
	if err := WriteC64(c.Ch1Path, ch1); err != nil {
		return Capture{}, err
	}
	if err := WriteMeta(c.MetaPath, meta); err != nil {
		return Capture{}, err
	}
	return c, nil
}
