package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultHistoryLimit = 500
	minHistoryLimit     = 1
	maxHistoryLimit     = 10_000
)

func validateHistoryLimit(limit int) (int, error) {
	if limit == 0 {
		return defaultHistoryLimit, nil
	}
	if limit < minHistoryLimit || limit > maxHistoryLimit {
		return 0, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return limit, nil
}

// Hub keeps a bounded history of reports and fans them out to subscribers.
type Hub struct {
	mu           sync.RWMutex
	history      []Report
	historyLimit int
	subscribers  map[chan Report]struct{}
}

// NewHub builds a hub holding at most historyLimit reports (0 selects the
// default).
func NewHub(historyLimit int) (*Hub, error) {
	limit, err := validateHistoryLimit(historyLimit)
	if err != nil {
		return nil, err
	}
	return &Hub{
		historyLimit: limit,
		subscribers:  make(map[chan Report]struct{}),
	}, nil
}

// Report implements Reporter. Slow subscribers miss reports rather than
// block the caller.
func (h *Hub) Report(rep Report) {
	h.mu.Lock()
	h.history = append(h.history, rep)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- rep:
		default:
		}
	}
	h.mu.Unlock()
}

// History returns a copy of stored reports, oldest first.
func (h *Hub) History() []Report {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Report, len(h.history))
	copy(out, h.history)
	return out
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (<-chan Report, func()) {
	ch := make(chan Report, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Summary aggregates the estimates of several captures of the same setup.
type Summary struct {
	Count          int     `json:"count"`
	LagMin         int     `json:"lagMin"`
	LagMax         int     `json:"lagMax"`
	CFOMeanHz      float64 `json:"cfoMeanHz"`
	CFOStdHz       float64 `json:"cfoStdHz"`
	PhaseMeanRad   float64 `json:"phaseMeanRad"`
	ResidualMaxRad float64 `json:"residualMaxRad"`
	GainMeanDB     float64 `json:"gainMeanDb"`
}

// Summary computes aggregate statistics over the stored history. Phase is
// averaged on the circle.
func (h *Hub) Summary() Summary {
	hist := h.History()
	s := Summary{Count: len(hist)}
	if len(hist) == 0 {
		return s
	}
	cfo := make([]float64, len(hist))
	phase := make([]float64, len(hist))
	gain := make([]float64, len(hist))
	s.LagMin, s.LagMax = hist[0].LagSamples, hist[0].LagSamples
	for i, r := range hist {
		cfo[i] = r.CFOHz
		phase[i] = r.PhaseRad
		gain[i] = r.CombiningGainDB
		if r.LagSamples < s.LagMin {
			s.LagMin = r.LagSamples
		}
		if r.LagSamples > s.LagMax {
			s.LagMax = r.LagSamples
		}
		s.ResidualMaxRad = math.Max(s.ResidualMaxRad, r.ResidualStdRad)
	}
	s.CFOMeanHz = stat.Mean(cfo, nil)
	if len(cfo) > 1 {
		s.CFOStdHz = stat.StdDev(cfo, nil)
	}
	s.PhaseMeanRad = stat.CircularMean(phase, nil)
	s.GainMeanDB = stat.Mean(gain, nil)
	return s
}

// WriteJSON writes the history and its summary as one indented document.
func (h *Hub) WriteJSON(w io.Writer) error {
	doc := struct {
		Summary Summary  `json:"summary"`
		Reports []Report `json:"reports"`
	}{Summary: h.Summary(), Reports: h.History()}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode telemetry history: %w", err)
	}
	return nil
}
