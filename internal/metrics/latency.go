package metrics

import (
	"math"
	"sort"
	"sync"
)

// LatencyTracker keeps the most recent broker submission round-trips in
// a fixed circular buffer and serves p50/p95/p99 for the health probe.
// Prometheus histograms cover long-horizon analysis; this gives an
// operator instant percentiles without a query.
type LatencyTracker struct {
	mu     sync.Mutex
	ringMs []float64
	pos    int
	filled int
}

// NewLatencyTracker holds the last capacity samples (default 10000).
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{ringMs: make([]float64, capacity)}
}

// Record adds one sample in milliseconds.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	lt.ringMs[lt.pos] = ms
	lt.pos = (lt.pos + 1) % len(lt.ringMs)
	if lt.filled < len(lt.ringMs) {
		lt.filled++
	}
	lt.mu.Unlock()
}

// Count returns the number of samples held, capped at capacity.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.filled
}

// Percentiles returns p50, p95 and p99 in milliseconds, or zeros when
// no submissions have been recorded yet.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	n := lt.filled
	if n == 0 {
		lt.mu.Unlock()
		return 0, 0, 0
	}
	sorted := make([]float64, n)
	if n == len(lt.ringMs) {
		// Full ring: oldest sample sits at pos.
		copy(sorted, lt.ringMs[lt.pos:])
		copy(sorted[n-lt.pos:], lt.ringMs[:lt.pos])
	} else {
		copy(sorted, lt.ringMs[:n])
	}
	lt.mu.Unlock()

	sort.Float64s(sorted)
	return quantile(sorted, 0.50), quantile(sorted, 0.95), quantile(sorted, 0.99)
}

// quantile interpolates the q-th quantile (0..1) of a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := q * float64(n-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
