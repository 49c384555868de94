package dsp

import (
	"math/cmplx"
	"testing"
)

func TestEstimateIntegerDelay(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		lag    int
		maxLag int
	}{
		{name: "zero", n: 2048, lag: 0, maxLag: 100},
		{name: "positive", n: 4096, lag: 10, maxLag: 100},
		{name: "negative", n: 4096, lag: -25, maxLag: 100},
		{name: "default_window", n: 8192, lag: 1234, maxLag: 0},
		{name: "window_edge", n: 4096, lag: 64, maxLag: 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, sig := delayedPair(tt.n, tt.lag, 7)
			if got := EstimateIntegerDelay(ref, sig, tt.maxLag); got != tt.lag {
				t.Fatalf("expected lag %d got %d", tt.lag, got)
			}
		})
	}
}

func TestEstimateIntegerDelayStaysInWindow(t *testing.T) {
	ref, sig := delayedPair(4096, 300, 11)
	got := EstimateIntegerDelay(ref, sig, 20)
	if got < -20 || got > 20 {
		t.Fatalf("lag %d outside search window", got)
	}
}

func TestEstimateIntegerDelayShortInput(t *testing.T) {
	if got := EstimateIntegerDelay(nil, nil, 10); got != 0 {
		t.Fatalf("expected 0 for empty input, got %d", got)
	}
	if got := EstimateIntegerDelay([]complex64{1}, []complex64{}, 10); got != 0 {
		t.Fatalf("expected 0 for one empty side, got %d", got)
	}
	// The window is wider than the data; only existing lags are searched.
	ref := []complex64{1, 0, 0}
	sig := []complex64{0, 0, 1}
	if got := EstimateIntegerDelay(ref, sig, 20000); got != 2 {
		t.Fatalf("expected lag 2 got %d", got)
	}
}

func TestEstimateIntegerDelaySilentInput(t *testing.T) {
	tests := []struct {
		name     string
		ref, sig []complex64
	}{
		{name: "both_zero", ref: make([]complex64, 3), sig: make([]complex64, 3)},
		{name: "ref_zero", ref: make([]complex64, 64), sig: qam16(64, 5)},
		{name: "sig_zero", ref: qam16(64, 6), sig: make([]complex64, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateIntegerDelay(tt.ref, tt.sig, 10); got != 0 {
				t.Fatalf("expected lag 0 without a correlation peak, got %d", got)
			}
		})
	}
}

func TestSignConventionRecoversAlignment(t *testing.T) {
	const lag = 10
	a, b := delayedPair(1000, lag, 3)
	if got := EstimateIntegerDelay(a, b, 100); got != lag {
		t.Fatalf("expected lag %d got %d", lag, got)
	}
	shifted := ApplyIntegerDelay(b, lag)
	if len(shifted) != len(a)-lag {
		t.Fatalf("unexpected length %d", len(shifted))
	}
	for i := range shifted {
		if shifted[i] != a[i] {
			t.Fatalf("index %d expected %v got %v", i, a[i], shifted[i])
		}
	}
}

func TestCrossCorrelateMatchesDirect(t *testing.T) {
	ref := qam16(37, 5)
	sig := qam16(23, 6)
	r := CrossCorrelate(ref, sig)
	if len(r) != len(ref)+len(sig)-1 {
		t.Fatalf("unexpected length %d", len(r))
	}
	for k := range r {
		lag := k - (len(ref) - 1)
		var want complex128
		for i := range sig {
			j := i - lag
			if j < 0 || j >= len(ref) {
				continue
			}
			want += complex128(sig[i]) * cmplx.Conj(complex128(ref[j]))
		}
		if cmplx.Abs(r[k]-want) > 1e-9 {
			t.Fatalf("lag %d expected %v got %v", lag, want, r[k])
		}
	}
	if len(CrossCorrelate(nil, sig)) != 0 {
		t.Fatalf("expected empty correlation for empty reference")
	}
}

func TestApplyIntegerDelay(t *testing.T) {
	in := []complex64{1, 2, 3, 4, 5}
	tests := []struct {
		name     string
		lag      int
		expected []complex64
	}{
		{name: "zero", lag: 0, expected: []complex64{1, 2, 3, 4, 5}},
		{name: "positive", lag: 2, expected: []complex64{3, 4, 5}},
		{name: "negative", lag: -2, expected: []complex64{0, 0, 1, 2, 3}},
		{name: "positive_overrun", lag: 9, expected: []complex64{}},
		{name: "negative_overrun", lag: -9, expected: []complex64{0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ApplyIntegerDelay(in, tt.lag)
			if len(out) != len(tt.expected) {
				t.Fatalf("length %d expected %d", len(out), len(tt.expected))
			}
			for i := range tt.expected {
				if out[i] != tt.expected[i] {
					t.Fatalf("index %d expected %v got %v", i, tt.expected[i], out[i])
				}
			}
		})
	}
	if in[0] != 1 || in[4] != 5 {
		t.Fatalf("input was modified: %v", in)
	}
}

func TestCorrelatorPlanSize(t *testing.T) {
	c := NewCorrelator(0)
	if c.Size() != 0 {
		t.Fatalf("expected no plan, got size %d", c.Size())
	}
	ref, sig := delayedPair(1000, 5, 9)
	if got := c.EstimateDelay(ref, sig, 50); got != 5 {
		t.Fatalf("expected lag 5 got %d", got)
	}
	if c.Size() != 2048 {
		t.Fatalf("expected padded size 2048, got %d", c.Size())
	}
	ref, sig = delayedPair(3000, -7, 10)
	if got := c.EstimateDelay(ref, sig, 50); got != -7 {
		t.Fatalf("expected lag -7 got %d", got)
	}
	if c.Size() != 8192 {
		t.Fatalf("expected padded size 8192, got %d", c.Size())
	}
}

func BenchmarkEstimateIntegerDelay(b *testing.B) {
	ref, sig := delayedPair(1<<16, 37, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		EstimateIntegerDelay(ref, sig, 2000)
	}
}

func BenchmarkCorrelatorCached(b *testing.B) {
	ref, sig := delayedPair(1<<16, 37, 1)
	c := NewCorrelator(2 * len(ref))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.EstimateDelay(ref, sig, 2000)
	}
}
