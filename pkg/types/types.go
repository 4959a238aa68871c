// Package types contains public API types for the swap generator.
// These types form the external interface and must remain backwards-compatible.
package types

import "time"

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Strategy names a transaction delivery strategy.
type Strategy string

const (
	StrategyStandard Strategy = "standard" // send and wait for confirmation
	StrategyFast     Strategy = "fast"     // skip preflight, no confirmation wait
	StrategyUrgent   Strategy = "urgent"   // preflight on, repeated outer attempts
	StrategyRelay    Strategy = "relay"    // tipped submission through a relay endpoint
)

// Pacing names how trade intervals are shaped over time.
type Pacing string

const (
	PacingFlat    Pacing = "flat"
	PacingWave    Pacing = "wave"
	PacingOrganic Pacing = "organic"
)

// AmountDistribution names how buy amounts are drawn.
type AmountDistribution string

const (
	AmountUniform AmountDistribution = "uniform"
	AmountTiered  AmountDistribution = "tiered"
)

// TraderStatus represents the current trader state.
type TraderStatus string

const (
	StatusIdle    TraderStatus = "idle"
	StatusRunning TraderStatus = "running"
	StatusStopped TraderStatus = "stopped"
)

// TradeStatus is the outcome of one trade attempt.
type TradeStatus string

const (
	TradeSent    TradeStatus = "sent"
	TradeFailed  TradeStatus = "failed"
	TradeSkipped TradeStatus = "skipped"
)

// TradeEvent describes one finished trade attempt.
type TradeEvent struct {
	SessionID       string      `json:"sessionId,omitempty"`
	Side            Side        `json:"side"`
	Wallet          string      `json:"wallet,omitempty"`
	Amount          float64     `json:"amount"`
	AmountKind      string      `json:"amountKind"` // "qty" or "pct"
	Price           float64     `json:"price,omitempty"`
	Strategy        Strategy    `json:"strategy"`
	Signatures      []string    `json:"signatures,omitempty"`
	Attempts        int         `json:"attempts"`
	Status          TradeStatus `json:"status"`
	Error           string      `json:"error,omitempty"`
	LatencyMs       int64       `json:"latencyMs"`
	ProgressiveStep int         `json:"progressiveStep"`
	Phase           string      `json:"phase,omitempty"`
	Throttled       bool        `json:"throttled"`
	Time            time.Time   `json:"time"`
}

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int             `json:"count"`
	Min     float64         `json:"min"` // ms
	Max     float64         `json:"max"` // ms
	Avg     float64         `json:"avg"` // ms
	P50     float64         `json:"p50"` // ms
	P90     float64         `json:"p90"` // ms
	P99     float64         `json:"p99"` // ms
	Buckets []LatencyBucket `json:"buckets"`
}

// TraderConfig is the runtime-tunable part of the trader configuration.
type TraderConfig struct {
	MinBuyAmount        float64            `json:"minBuyAmount"`   // SOL
	MaxBuyAmount        float64            `json:"maxBuyAmount"`   // SOL
	MinSellPercent      float64            `json:"minSellPercent"` // fraction of holding, 0..1
	MaxSellPercent      float64            `json:"maxSellPercent"`
	BuyInterval         time.Duration      `json:"buyInterval"`
	SellInterval        time.Duration      `json:"sellInterval"`
	ProgressiveFactor   float64            `json:"progressiveFactor"`
	MaxProgressiveSteps int                `json:"maxProgressiveSteps"`
	MinHoldHours        int                `json:"minHoldHours"`
	MaxHoldHours        int                `json:"maxHoldHours"`
	TargetBuyRatio      float64            `json:"targetBuyRatio"` // 0 disables the ratio guard
	SlippageBps         uint16             `json:"slippageBps"`
	BuyStrategy         Strategy           `json:"buyStrategy"`
	SellStrategy        Strategy           `json:"sellStrategy"`
	Pacing              Pacing             `json:"pacing"`
	AmountDistribution  AmountDistribution `json:"amountDistribution"`
}

// ProgressiveCounts holds the successful trade counters driving amount growth.
type ProgressiveCounts struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// WaveInfo describes the current volume wave phase.
type WaveInfo struct {
	Phase               string        `json:"phase"`
	InPhase             time.Duration `json:"inPhase"`
	Remaining           time.Duration `json:"remaining"`
	FrequencyMultiplier float64       `json:"frequencyMultiplier"`
	AmountMultiplier    float64       `json:"amountMultiplier"`
}

// PriceStats summarizes the recorded price history.
type PriceStats struct {
	Current    float64 `json:"current"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Avg        float64 `json:"avg"`
	Volatility float64 `json:"volatility"`
	Trend      string  `json:"trend"`
	Points     int     `json:"points"`
	Throttled  bool    `json:"throttled"`
}

// StatusResponse is the response for GET /v1/status.
type StatusResponse struct {
	Status      TraderStatus               `json:"status"`
	SessionID   string                     `json:"sessionId,omitempty"`
	StartedAt   *time.Time                 `json:"startedAt,omitempty"`
	Mint        string                     `json:"mint"`
	Config      TraderConfig               `json:"config"`
	Progressive ProgressiveCounts          `json:"progressive"`
	Wave        *WaveInfo                  `json:"wave,omitempty"`
	Price       PriceStats                 `json:"price"`
	Wallets     int                        `json:"wallets"`
	TradesSent  uint64                     `json:"tradesSent"`
	TradesFail  uint64                     `json:"tradesFailed"`
	Delivery    map[Strategy]*LatencyStats `json:"delivery,omitempty"`
}

// WalletInfo describes one funding identity without its secret.
type WalletInfo struct {
	PublicKey  string     `json:"publicKey"`
	Profile    string     `json:"profile"`
	Usage      uint64     `json:"usage"`
	TotalBuys  uint64     `json:"totalBuys"`
	TotalSells uint64     `json:"totalSells"`
	LastBuy    *time.Time `json:"lastBuy,omitempty"`
	LastSell   *time.Time `json:"lastSell,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// UsageStats aggregates selection counters across the wallet pool.
type UsageStats struct {
	Wallets    int     `json:"wallets"`
	TotalUsage uint64  `json:"totalUsage"`
	MinUsage   uint64  `json:"minUsage"`
	MaxUsage   uint64  `json:"maxUsage"`
	AvgUsage   float64 `json:"avgUsage"`
	TotalBuys  uint64  `json:"totalBuys"`
	TotalSells uint64  `json:"totalSells"`
}

// WalletsResponse is the response for GET /v1/wallets.
type WalletsResponse struct {
	Usage    UsageStats     `json:"usage"`
	Profiles map[string]int `json:"profiles"`
	Wallets  []WalletInfo   `json:"wallets"`
}

// Session is a persisted trading session.
type Session struct {
	ID        string       `json:"id"`
	StartedAt time.Time    `json:"startedAt"`
	StoppedAt *time.Time   `json:"stoppedAt,omitempty"`
	Mint      string       `json:"mint"`
	Pacing    Pacing       `json:"pacing"`
	Status    TraderStatus `json:"status"`
	Config    TraderConfig `json:"config"`
}

// SessionSummary aggregates the trades of one session.
type SessionSummary struct {
	SessionID  string  `json:"sessionId"`
	Buys       int     `json:"buys"`
	Sells      int     `json:"sells"`
	Failed     int     `json:"failed"`
	AvgLatency float64 `json:"avgLatencyMs"`
	BuyVolume  float64 `json:"buyVolume"`
}

// TradesResponse is the response for GET /v1/trades.
type TradesResponse struct {
	Trades []TradeEvent `json:"trades"`
	Total  int          `json:"total"`
}

// StartRequest optionally overrides parts of the trader configuration on start.
type StartRequest struct {
	Pacing       *Pacing   `json:"pacing,omitempty"`
	BuyStrategy  *Strategy `json:"buyStrategy,omitempty"`
	SellStrategy *Strategy `json:"sellStrategy,omitempty"`
}

// PhaseRequest forces the volume wave into a phase.
type PhaseRequest struct {
	Phase string `json:"phase"`
}

// ErrorResponse is a JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
