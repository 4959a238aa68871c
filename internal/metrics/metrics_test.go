package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gateway-fm/swapgen/pkg/types"
)

func TestLatencyStats_Empty(t *testing.T) {
	s := NewLatencyStats()
	if got := s.Stats(); got != nil {
		t.Errorf("Stats() on empty tracker = %+v, want nil", got)
	}
}

func TestLatencyStats_Summary(t *testing.T) {
	s := NewLatencyStats()
	for i := 1; i <= 100; i++ {
		s.Add(float64(i * 100)) // 100ms .. 10s
	}

	st := s.Stats()
	if st.Count != 100 {
		t.Errorf("Count = %d, want 100", st.Count)
	}
	if st.Min != 100 || st.Max != 10000 {
		t.Errorf("Min/Max = %v/%v, want 100/10000", st.Min, st.Max)
	}
	if st.Avg != 5050 {
		t.Errorf("Avg = %v, want 5050", st.Avg)
	}
	if st.P50 < 4900 || st.P50 > 5200 {
		t.Errorf("P50 = %v, want ~5050", st.P50)
	}

	want := map[string]int{
		"0-500ms":  4,  // 100..400
		"500ms-2s": 15, // 500..1900
		"2-5s":     30, // 2000..4900
		"5-15s":    51, // 5000..10000
		"15s+":     0,
	}
	if len(st.Buckets) != len(want) {
		t.Fatalf("got %d buckets, want %d", len(st.Buckets), len(want))
	}
	for _, b := range st.Buckets {
		if b.Count != want[b.Label] {
			t.Errorf("bucket %s = %d, want %d", b.Label, b.Count, want[b.Label])
		}
	}
}

func TestLatencyStats_ReservoirBounded(t *testing.T) {
	s := NewLatencyStats()
	for i := 0; i < DefaultReservoirSize*3; i++ {
		s.Add(1)
	}
	if s.Count() != int64(DefaultReservoirSize*3) {
		t.Errorf("Count() = %d", s.Count())
	}
	if len(s.reservoir) != DefaultReservoirSize {
		t.Errorf("reservoir size = %d, want %d", len(s.reservoir), DefaultReservoirSize)
	}
}

func TestStrategyLatency_Concurrent(t *testing.T) {
	l := NewStrategyLatency()
	var wg sync.WaitGroup
	for _, s := range []types.Strategy{types.StrategyFast, types.StrategyUrgent} {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					l.Add(s, 10)
				}
			}()
		}
	}
	wg.Wait()

	snap := l.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d strategies, want 2", len(snap))
	}
	for s, st := range snap {
		if st.Count != 200 {
			t.Errorf("%s count = %d, want 200", s, st.Count)
		}
	}
}

func TestPrometheusMetrics_Record(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.RecordTrade("buy", "sent")
	m.RecordTrade("buy", "sent")
	m.RecordDeliveryAttempt("urgent", false)
	m.SetThrottled(true)
	m.SetWavePhase("burst")
	m.SetProgressive(3, 1)

	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("buy", "sent")); got != 2 {
		t.Errorf("trades_total{buy,sent} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DeliveryAttempts.WithLabelValues("urgent", "error")); got != 1 {
		t.Errorf("delivery_attempts{urgent,error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Throttled); got != 1 {
		t.Errorf("throttled = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WavePhase.WithLabelValues("burst")); got != 1 {
		t.Errorf("wave_phase{burst} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WavePhase.WithLabelValues("active")); got != 0 {
		t.Errorf("wave_phase{active} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ProgressiveStep.WithLabelValues("buy")); got != 3 {
		t.Errorf("progressive_step{buy} = %v, want 3", got)
	}
}

func TestPrometheusMetrics_NilSafe(t *testing.T) {
	var m *PrometheusMetrics
	m.RecordTrade("buy", "sent")
	m.RecordDeliveryLatency("fast", true, 0.1)
	m.SetRunning(true)
	m.SetObservedPrice(1)
}
