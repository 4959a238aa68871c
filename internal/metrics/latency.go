package metrics

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/gateway-fm/swapgen/pkg/types"
)

// DefaultReservoirSize is the number of samples kept for percentile estimation.
const DefaultReservoirSize = 2048

// Delivery latency bucket bounds in milliseconds.
var deliveryBounds = []float64{500, 2000, 5000, 15000}

var deliveryLabels = []string{"0-500ms", "500ms-2s", "2-5s", "5-15s", "15s+"}

// LatencyStats keeps running latency statistics with reservoir-sampled
// percentiles. Safe for concurrent use.
type LatencyStats struct {
	mu sync.Mutex

	count int64
	sum   float64
	min   float64
	max   float64

	reservoir []float64
	size      int
	buckets   []int64
	rng       *rand.Rand
}

// NewLatencyStats creates an empty latency tracker.
func NewLatencyStats() *LatencyStats {
	return &LatencyStats{
		min:       math.MaxFloat64,
		reservoir: make([]float64, 0, DefaultReservoirSize),
		size:      DefaultReservoirSize,
		buckets:   make([]int64, len(deliveryLabels)),
		rng:       rand.New(rand.NewPCG(1, 2)),
	}
}

// Add records a latency sample in milliseconds.
func (s *LatencyStats) Add(ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += ms
	s.min = min(s.min, ms)
	s.max = max(s.max, ms)

	b := sort.SearchFloat64s(deliveryBounds, ms)
	if b < len(deliveryBounds) && deliveryBounds[b] == ms {
		b++
	}
	s.buckets[b]++

	// Algorithm R.
	if len(s.reservoir) < s.size {
		s.reservoir = append(s.reservoir, ms)
		return
	}
	if j := s.rng.Int64N(s.count); j < int64(s.size) {
		s.reservoir[j] = ms
	}
}

// Stats returns a snapshot, or nil when nothing was recorded.
func (s *LatencyStats) Stats() *types.LatencyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return nil
	}

	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)
	sort.Float64s(sorted)

	out := &types.LatencyStats{
		Count: int(s.count),
		Min:   s.min,
		Max:   s.max,
		Avg:   s.sum / float64(s.count),
		P50:   percentile(sorted, 0.50),
		P90:   percentile(sorted, 0.90),
		P99:   percentile(sorted, 0.99),
	}
	for i, label := range deliveryLabels {
		out.Buckets = append(out.Buckets, types.LatencyBucket{Label: label, Count: int(s.buckets[i])})
	}
	return out
}

// Count returns the number of samples recorded.
func (s *LatencyStats) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// percentile interpolates the p-th percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}

// StrategyLatency tracks LatencyStats per delivery strategy.
type StrategyLatency struct {
	mu    sync.Mutex
	stats map[types.Strategy]*LatencyStats
}

// NewStrategyLatency creates an empty per-strategy tracker.
func NewStrategyLatency() *StrategyLatency {
	return &StrategyLatency{stats: make(map[types.Strategy]*LatencyStats)}
}

// Add records a latency sample for strategy.
func (l *StrategyLatency) Add(strategy types.Strategy, ms float64) {
	l.mu.Lock()
	s, ok := l.stats[strategy]
	if !ok {
		s = NewLatencyStats()
		l.stats[strategy] = s
	}
	l.mu.Unlock()
	s.Add(ms)
}

// Snapshot returns stats for every strategy seen so far.
func (l *StrategyLatency) Snapshot() map[types.Strategy]*types.LatencyStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[types.Strategy]*types.LatencyStats, len(l.stats))
	for k, s := range l.stats {
		out[k] = s.Stats()
	}
	return out
}
