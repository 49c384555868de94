package sdr

import (
	"context"
	"math"
	"math/rand"
	"sync"
)

const (
	defaultMockSamples    = 1 << 16
	defaultMockSampleRate = 2.4e6
	defaultMockCenterFreq = 868.1e6
)

var qamLevels = [4]float64{-3, -1, 1, 3}

// MockSDR synthesizes a 16-QAM pair where ch1 is ch0 delayed, frequency
// shifted and rotated according to Config. Every RX draws fresh symbols
// from the seeded generator.
type MockSDR struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand
}

// NewMock returns a simulated source; Init sets its impairments.
func NewMock() *MockSDR { return &MockSDR{} }

func (m *MockSDR) Init(_ context.Context, cfg Config) error {
	if cfg.NumSamples <= 0 {
		cfg.NumSamples = defaultMockSamples
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultMockSampleRate
	}
	if cfg.CenterFreq <= 0 {
		cfg.CenterFreq = defaultMockCenterFreq
	}
	m.mu.Lock()
	m.cfg = cfg
	m.rng = rand.New(rand.NewSource(cfg.Seed))
	m.mu.Unlock()
	return nil
}

func (m *MockSDR) Close() error { return nil }

func (m *MockSDR) Tuning() Tuning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Tuning{SampleRate: m.cfg.SampleRate, CenterFreq: m.cfg.CenterFreq}
}

// SetImpairments changes the simulated offsets for subsequent captures.
func (m *MockSDR) SetImpairments(delaySamples int, cfoHz, phaseRad float64) {
	m.mu.Lock()
	m.cfg.DelaySamples = delaySamples
	m.cfg.CFOHz = cfoHz
	m.cfg.PhaseRad = phaseRad
	m.mu.Unlock()
}

func (m *MockSDR) RX(ctx context.Context) ([]complex64, []complex64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng == nil {
		return nil, nil, ErrNotInitialized
	}
	cfg := m.cfg

	n := cfg.NumSamples
	lag := cfg.DelaySamples
	abs := lag
	if abs < 0 {
		abs = -abs
	}
	s := make([]complex128, n+abs)
	for i := range s {
		s[i] = complex(qamLevels[m.rng.Intn(4)], qamLevels[m.rng.Intn(4)])
	}
	base0, base1 := s[abs:], s[:n]
	if lag < 0 {
		base0, base1 = s[:n], s[abs:]
	}

	ch0 := make([]complex64, n)
	ch1 := make([]complex64, n)
	step := 2 * math.Pi * cfg.CFOHz / cfg.SampleRate
	for i := 0; i < n; i++ {
		sn, cs := math.Sincos(step*float64(i) + cfg.PhaseRad)
		ch0[i] = complex64(base0[i] + m.noise(cfg.NoiseStd))
		ch1[i] = complex64(base1[i]*complex(cs, sn) + m.noise(cfg.NoiseStd))
	}
	return ch0, ch1, nil
}

func (m *MockSDR) noise(std float64) complex128 {
	if std == 0 {
		return 0
	}
	return complex(m.rng.NormFloat64()*std, m.rng.NormFloat64()*std)
}
