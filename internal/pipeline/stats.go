package pipeline

import (
	"slices"
	"sync"
	"time"
)

type extractSample struct {
	at         time.Time
	durationMs int64
	pages      int
}

// StatsSnapshot aggregates recent extraction latencies.
type StatsSnapshot struct {
	Jobs      int     `json:"jobs"`
	Pages     int     `json:"pages"`
	MinMs     int64   `json:"min_ms"`
	MaxMs     int64   `json:"max_ms"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	MsPerPage float64 `json:"ms_per_page"`
}

// ExtractStats keeps completed-job latencies for a rolling window.
type ExtractStats struct {
	mu      sync.Mutex
	samples []extractSample
	window  time.Duration
}

func NewExtractStats(window time.Duration) *ExtractStats {
	if window <= 0 {
		window = time.Hour
	}
	return &ExtractStats{window: window}
}

// Record adds one completed extraction.
func (s *ExtractStats) Record(durationMs int64, pages int) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(now)
	s.samples = append(s.samples, extractSample{
		at:         now,
		durationMs: max(durationMs, 0),
		pages:      max(pages, 0),
	})
}

func (s *ExtractStats) Snapshot() StatsSnapshot {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(now)

	n := len(s.samples)
	if n == 0 {
		return StatsSnapshot{}
	}
	durations := make([]int64, n)
	var total int64
	pages := 0
	for i, sm := range s.samples {
		durations[i] = sm.durationMs
		total += sm.durationMs
		pages += sm.pages
	}
	slices.Sort(durations)

	snap := StatsSnapshot{
		Jobs:  n,
		Pages: pages,
		MinMs: durations[0],
		MaxMs: durations[n-1],
		AvgMs: float64(total) / float64(n),
		P50Ms: interpolate(durations, 50),
		P95Ms: interpolate(durations, 95),
	}
	if pages > 0 {
		snap.MsPerPage = float64(total) / float64(pages)
	}
	return snap
}

func (s *ExtractStats) expire(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm extractSample) bool {
		return sm.at.Before(cutoff)
	})
}

// interpolate returns the pct-th percentile of sorted values, linearly
// interpolated between neighbours.
func interpolate(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	pos := float64(len(sorted)-1) * pct / 100
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	a, b := float64(sorted[lo]), float64(sorted[lo+1])
	return a + (b-a)*frac
}
