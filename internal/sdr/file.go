package sdr

import (
	"context"
	"fmt"
	"sync"

	"github.com/rjboer/dualrx/internal/iqfile"
)

// FileSDR replays a capture directory written by the dual-dongle capture
// tool. Non-zero SampleRate/CenterFreq in Config override meta.txt.
type FileSDR struct {
	mu      sync.Mutex
	cfg     Config
	capture iqfile.Capture
	meta    iqfile.Meta
	ready   bool
}

// NewFile returns a file source; Init selects the capture directory.
func NewFile() *FileSDR { return &FileSDR{} }

func (f *FileSDR) Init(_ context.Context, cfg Config) error {
	c, err := iqfile.FindCapture(cfg.CaptureDir)
	if err != nil {
		return err
	}
	var meta iqfile.Meta
	if c.MetaPath != "" {
		meta, err = iqfile.ReadMeta(c.MetaPath)
		if err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.cfg = cfg
	f.capture = c
	f.meta = meta
	f.ready = true
	f.mu.Unlock()
	return nil
}

func (f *FileSDR) RX(ctx context.Context) ([]complex64, []complex64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	c, ready, limit := f.capture, f.ready, f.cfg.NumSamples
	f.mu.Unlock()
	if !ready {
		return nil, nil, ErrNotInitialized
	}
	ch0, err := iqfile.ReadC64(c.Ch0Path)
	if err != nil {
		return nil, nil, err
	}
	ch1, err := iqfile.ReadC64(c.Ch1Path)
	if err != nil {
		return nil, nil, err
	}
	if limit > 0 {
		ch0 = head(ch0, limit)
		ch1 = head(ch1, limit)
	}
	return ch0, ch1, nil
}

func (f *FileSDR) Tuning() Tuning {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := Tuning{SampleRate: f.meta.FsHz, CenterFreq: f.meta.FcHz}
	if f.cfg.SampleRate > 0 {
		t.SampleRate = f.cfg.SampleRate
	}
	if f.cfg.CenterFreq > 0 {
		t.CenterFreq = f.cfg.CenterFreq
	}
	return t
}

// Capture returns the files selected by Init.
func (f *FileSDR) Capture() iqfile.Capture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capture
}

// Meta returns the parsed meta.txt, zero if the capture had none.
func (f *FileSDR) Meta() iqfile.Meta {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta
}

func (f *FileSDR) Close() error {
	f.mu.Lock()
	f.ready = false
	f.mu.Unlock()
	return nil
}

func head(x []complex64, n int) []complex64 {
	if n < len(x) {
		return x[:n]
	}
	return x
}

// New returns the source named by kind ("file" or "mock").
func New(kind string) (SDR, error) {
	switch kind {
	case "file", "":
		return NewFile(), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown sdr source %q", kind)
	}
}
