// Package pricemon tracks recent pool prices and throttles trading after a
// sharp rise.
package pricemon

import (
	"log/slog"
	"math"
	"sync"
	"time"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// Defaults.
const (
	DefaultMaxPoints        = 100
	DefaultRetention        = 24 * time.Hour
	DefaultThrottleDuration = 30 * time.Minute
	DefaultWindow           = 10 * time.Minute

	// ThrottledMultiplier stretches trade intervals while throttled.
	ThrottledMultiplier = 3.0

	trendPoints      = 5
	volatilityPoints = 10
	minVolPoints     = 3
	minCheckPoints   = 3
	minWindowPoints  = 2
)

// Trend classifies the recent price direction.
type Trend string

const (
	StrongUp   Trend = "strong_up"
	Up         Trend = "up"
	Neutral    Trend = "neutral"
	Down       Trend = "down"
	StrongDown Trend = "strong_down"
)

// Point is one recorded price observation.
type Point struct {
	Price  float64
	Volume float64
	Time   time.Time
}

// Config configures a Monitor.
type Config struct {
	// Threshold is the fractional rise within Window that activates throttling.
	Threshold        float64
	MaxPoints        int
	Retention        time.Duration
	ThrottleDuration time.Duration
	Window           time.Duration
	Now              func() time.Time
	Logger           *slog.Logger
}

// Monitor keeps a bounded price history and throttle state.
// Safe for concurrent use.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	mu              sync.RWMutex
	history         []Point
	throttled       bool
	throttleStarted time.Time
}

// New creates a Monitor. Zero config fields take their defaults.
func New(cfg Config) *Monitor {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.ThrottleDuration <= 0 {
		cfg.ThrottleDuration = DefaultThrottleDuration
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:     cfg,
		logger:  logger,
		history: make([]Point, 0, cfg.MaxPoints),
	}
}

// Record appends a price observation and re-evaluates the throttle.
func (m *Monitor) Record(price, volume float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	m.history = append(m.history, Point{Price: price, Volume: volume, Time: now})
	m.evictLocked(now)
	if over := len(m.history) - m.cfg.MaxPoints; over > 0 {
		m.history = append(m.history[:0], m.history[over:]...)
	}
	m.updateThrottleLocked(now)
}

// Cleanup drops points older than the retention window.
func (m *Monitor) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(m.cfg.Now())
}

func (m *Monitor) evictLocked(now time.Time) {
	cutoff := now.Add(-m.cfg.Retention)
	i := 0
	for i < len(m.history) && m.history[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.history = append(m.history[:0], m.history[i:]...)
	}
}

func (m *Monitor) updateThrottleLocked(now time.Time) {
	if len(m.history) < minCheckPoints {
		return
	}
	cutoff := now.Add(-m.cfg.Window)
	var window []Point
	for i, p := range m.history {
		if p.Time.After(cutoff) {
			window = m.history[i:]
			break
		}
	}
	if len(window) < minWindowPoints {
		return
	}

	first, last := window[0].Price, window[len(window)-1].Price
	if first <= 0 {
		return
	}
	change := (last - first) / first
	breach := change > m.cfg.Threshold

	switch {
	case breach && !m.throttled:
		m.throttled = true
		m.throttleStarted = now
		m.logger.Warn("price rise detected, throttling trades",
			slog.Float64("change_pct", change*100),
			slog.Float64("threshold_pct", m.cfg.Threshold*100),
			slog.Duration("duration", m.cfg.ThrottleDuration))
	// A rise seen while throttled neither lifts nor extends the throttle.
	case m.throttled && !breach && now.Sub(m.throttleStarted) > m.cfg.ThrottleDuration:
		m.throttled = false
		m.logger.Info("price throttle lifted",
			slog.Duration("active_for", now.Sub(m.throttleStarted)))
	}
}

// IsThrottled reports whether trading is currently throttled.
func (m *Monitor) IsThrottled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.throttled
}

// ThrottleMultiplier returns the interval multiplier: 3.0 while throttled, else 1.0.
func (m *Monitor) ThrottleMultiplier() float64 {
	if m.IsThrottled() {
		return ThrottledMultiplier
	}
	return 1.0
}

// Trend classifies the change across the last five points.
func (m *Monitor) Trend() Trend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trendLocked()
}

func (m *Monitor) trendLocked() Trend {
	if len(m.history) < trendPoints {
		return Neutral
	}
	recent := m.history[len(m.history)-trendPoints:]
	first := recent[0].Price
	if first <= 0 {
		return Neutral
	}
	change := (recent[len(recent)-1].Price - first) / first
	switch {
	case change > 0.05:
		return StrongUp
	case change > 0.02:
		return Up
	case change < -0.05:
		return StrongDown
	case change < -0.02:
		return Down
	default:
		return Neutral
	}
}

// Volatility returns the population standard deviation over the mean of the
// last ten prices, or 0 with fewer than three points.
func (m *Monitor) Volatility() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volatilityLocked()
}

func (m *Monitor) volatilityLocked() float64 {
	if len(m.history) < minVolPoints {
		return 0
	}
	recent := m.history[max(0, len(m.history)-volatilityPoints):]

	var sum float64
	for _, p := range recent {
		sum += p.Price
	}
	mean := sum / float64(len(recent))
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, p := range recent {
		d := p.Price - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(recent))) / mean
}

// Stats summarizes the history.
func (m *Monitor) Stats() ptypes.PriceStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := ptypes.PriceStats{
		Trend:     string(m.trendLocked()),
		Points:    len(m.history),
		Throttled: m.throttled,
	}
	if len(m.history) == 0 {
		return s
	}

	s.Current = m.history[len(m.history)-1].Price
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, p := range m.history {
		s.Min = min(s.Min, p.Price)
		s.Max = max(s.Max, p.Price)
		sum += p.Price
	}
	s.Avg = sum / float64(len(m.history))
	s.Volatility = m.volatilityLocked()
	return s
}

// History returns a copy of the recorded points, oldest first.
func (m *Monitor) History() []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Point, len(m.history))
	copy(out, m.history)
	return out
}
