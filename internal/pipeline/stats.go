package pipeline

import (
	"slices"
	"sync"
	"time"
)

// ParseSample is the outcome of parsing one document.
type ParseSample struct {
	DurationMs int64
	Entries    int
	Errors     int
}

type sample struct {
	at time.Time
	ParseSample
}

// StatsSnapshot aggregates the parse samples inside the window.
type StatsSnapshot struct {
	Documents   int     `json:"documents"`
	Entries     int     `json:"entries"`
	BlockErrors int     `json:"block_errors"`
	MinMs       int64   `json:"min_ms"`
	MaxMs       int64   `json:"max_ms"`
	AvgMs       float64 `json:"avg_ms"`
	P50Ms       float64 `json:"p50_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
}

// Stats tracks recent document parses within a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
	now     func() time.Time
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{
		samples: make([]sample, 0, 256),
		window:  window,
		now:     time.Now,
	}
}

func (s *Stats) Record(ps ParseSample) {
	ps.DurationMs = max(ps.DurationMs, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, ParseSample: ps})
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	snap := StatsSnapshot{Documents: len(s.samples)}
	durations := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		durations = append(durations, sm.DurationMs)
		sum += sm.DurationMs
		snap.Entries += sm.Entries
		snap.BlockErrors += sm.Errors
	}
	slices.Sort(durations)

	snap.MinMs = durations[0]
	snap.MaxMs = durations[len(durations)-1]
	snap.AvgMs = float64(sum) / float64(len(durations))
	snap.P50Ms = percentile(durations, 50)
	snap.P95Ms = percentile(durations, 95)
	snap.P99Ms = percentile(durations, 99)
	return snap
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}
