package server

import (
	"sync"
	"time"
)

// latencyWindow tracks API request latencies over a sliding window.
type latencyWindow struct {
	mu      sync.Mutex
	window  time.Duration
	entries []latencyEntry
	now     func() time.Time
}

type latencyEntry struct {
	ts      time.Time
	latency time.Duration
}

func newLatencyWindow(window time.Duration) *latencyWindow {
	return &latencyWindow{
		window:  window,
		entries: make([]latencyEntry, 0, 128),
		now:     time.Now,
	}
}

// Record adds a latency sample.
func (w *latencyWindow) Record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, latencyEntry{ts: w.now(), latency: d})
}

// Avg returns the mean latency in milliseconds and the sample count within
// the window. Expired samples are dropped.
func (w *latencyWindow) Avg() (avgMs int64, count int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	start := 0
	for start < len(w.entries) && w.entries[start].ts.Before(cutoff) {
		start++
	}
	if start > 0 {
		w.entries = append(w.entries[:0], w.entries[start:]...)
	}
	if len(w.entries) == 0 {
		return 0, 0
	}

	var total time.Duration
	for _, e := range w.entries {
		total += e.latency
	}
	n := int64(len(w.entries))
	return total.Milliseconds() / n, n
}
