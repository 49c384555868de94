package logging

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes a size-rotated log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileWriter returns a rotating writer for cfg.Path. Zero limits fall
// back to 10 MB and 3 backups.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// Output returns console (stderr when nil), teed into a rotating file when
// path is set. The returned closer must be closed on shutdown.
func Output(console io.Writer, path string) (io.Writer, io.Closer) {
	if console == nil {
		console = os.Stderr
	}
	if path == "" {
		return console, nopCloser{}
	}
	fw := NewFileWriter(FileConfig{Path: path})
	return io.MultiWriter(console, fw), fw
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
