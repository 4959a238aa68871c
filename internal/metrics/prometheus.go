// Package metrics provides Prometheus instrumentation and latency statistics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics for the swap generator.
// All methods are safe on a nil receiver so components can run uninstrumented.
type PrometheusMetrics struct {
	// Counters
	TradesTotal      *prometheus.CounterVec
	DeliveryAttempts *prometheus.CounterVec
	WalletSelections *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec

	// Gauges
	Throttled       prometheus.Gauge
	WavePhase       *prometheus.GaugeVec
	ProgressiveStep *prometheus.GaugeVec
	TraderRunning   prometheus.Gauge
	ObservedPrice   prometheus.Gauge

	// Histograms
	DeliveryLatency *prometheus.HistogramVec
	TradeInterval   *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		TradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapgen_trades_total",
				Help: "Trade attempts by side and outcome",
			},
			[]string{"side", "status"},
		),

		DeliveryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapgen_delivery_attempts_total",
				Help: "Transaction submissions by delivery strategy and result",
			},
			[]string{"strategy", "result"},
		),

		WalletSelections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapgen_wallet_selections_total",
				Help: "Wallet selections by purpose",
			},
			[]string{"purpose"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapgen_errors_total",
				Help: "Errors by category and side",
			},
			[]string{"category", "side"},
		),

		Throttled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "swapgen_price_throttled",
				Help: "1 while trading is throttled after a price rise",
			},
		),

		WavePhase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swapgen_wave_phase",
				Help: "Current volume wave phase (1 if active, 0 otherwise)",
			},
			[]string{"phase"},
		),

		ProgressiveStep: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swapgen_progressive_step",
				Help: "Successful trades counted towards progressive sizing",
			},
			[]string{"side"},
		),

		TraderRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "swapgen_trader_running",
				Help: "1 while the trading loops are running",
			},
		),

		ObservedPrice: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "swapgen_observed_price",
				Help: "Last pool price observed while building a trade",
			},
		),

		DeliveryLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapgen_delivery_latency_seconds",
				Help:    "Time from build to delivery result by strategy",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"strategy", "result"},
		),

		TradeInterval: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapgen_trade_interval_seconds",
				Help:    "Waits between trade attempts by side",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"side"},
		),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordTrade records the outcome of one trade attempt.
func (m *PrometheusMetrics) RecordTrade(side, status string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side, status).Inc()
}

// RecordDeliveryAttempt records one submission by a delivery strategy.
func (m *PrometheusMetrics) RecordDeliveryAttempt(strategy string, ok bool) {
	if m == nil {
		return
	}
	m.DeliveryAttempts.WithLabelValues(strategy, result(ok)).Inc()
}

// RecordDeliveryLatency records the end-to-end latency of a delivery.
func (m *PrometheusMetrics) RecordDeliveryLatency(strategy string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	m.DeliveryLatency.WithLabelValues(strategy, result(ok)).Observe(seconds)
}

// RecordWalletSelection records a wallet pick for "trade" or "sell".
func (m *PrometheusMetrics) RecordWalletSelection(purpose string) {
	if m == nil {
		return
	}
	m.WalletSelections.WithLabelValues(purpose).Inc()
}

// RecordError records an error.
func (m *PrometheusMetrics) RecordError(category, side string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(category, side).Inc()
}

// RecordInterval records a wait between trades.
func (m *PrometheusMetrics) RecordInterval(side string, seconds float64) {
	if m == nil {
		return
	}
	m.TradeInterval.WithLabelValues(side).Observe(seconds)
}

// SetThrottled updates the throttle gauge.
func (m *PrometheusMetrics) SetThrottled(throttled bool) {
	if m == nil {
		return
	}
	if throttled {
		m.Throttled.Set(1)
	} else {
		m.Throttled.Set(0)
	}
}

// wavePhases is the fixed label set of the phase gauge.
var wavePhases = []string{"active", "slow", "burst", "dormant"}

// SetWavePhase marks phase as the only active wave phase.
func (m *PrometheusMetrics) SetWavePhase(phase string) {
	if m == nil {
		return
	}
	for _, p := range wavePhases {
		m.WavePhase.WithLabelValues(p).Set(0)
	}
	m.WavePhase.WithLabelValues(phase).Set(1)
}

// SetProgressive updates the progressive step gauges.
func (m *PrometheusMetrics) SetProgressive(buys, sells int) {
	if m == nil {
		return
	}
	m.ProgressiveStep.WithLabelValues("buy").Set(float64(buys))
	m.ProgressiveStep.WithLabelValues("sell").Set(float64(sells))
}

// SetRunning updates the running gauge.
func (m *PrometheusMetrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.TraderRunning.Set(1)
	} else {
		m.TraderRunning.Set(0)
	}
}

// SetObservedPrice updates the last observed price.
func (m *PrometheusMetrics) SetObservedPrice(price float64) {
	if m == nil {
		return
	}
	m.ObservedPrice.Set(price)
}
