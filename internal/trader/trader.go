// Package trader runs the buy and sell control loops that tie wallet
// selection, pacing, price throttling and delivery together.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gateway-fm/swapgen/internal/account"
	"github.com/gateway-fm/swapgen/internal/metrics"
	"github.com/gateway-fm/swapgen/internal/pattern"
	"github.com/gateway-fm/swapgen/internal/pipeline"
	"github.com/gateway-fm/swapgen/internal/pricemon"
	"github.com/gateway-fm/swapgen/internal/swap"
	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// ErrAlreadyRunning is returned by Start while the loops are running or
// still finishing an in-flight trade.
var ErrAlreadyRunning = errors.New("trader already running")

// ErrNoPhases is returned by ForcePhase when the pacing has no wave.
var ErrNoPhases = errors.New("pacing has no wave phases")

// recentWindow is how many successful trade sides are kept for the ratio guard.
const recentWindow = 10

// Executor runs one trade through build and delivery.
type Executor interface {
	Execute(ctx context.Context, acc *account.Account, req swap.Request, strategy ptypes.Strategy) pipeline.Result
}

// SessionStore persists session lifecycle.
type SessionStore interface {
	CreateSession(ctx context.Context, s *ptypes.Session) error
	CompleteSession(ctx context.Context, id string, stoppedAt time.Time, status ptypes.TraderStatus) error
}

// Config for creating a Trader.
type Config struct {
	Trading ptypes.TraderConfig
	Mint    solana.PublicKey

	Pool     *account.Pool
	Monitor  *pricemon.Monitor
	Executor Executor

	// Pacers resolves Trading.Pacing (default: pattern.NewRegistry()).
	Pacers      *pattern.Registry
	PacerConfig pattern.Config

	// Sessions is optional.
	Sessions SessionStore
	// Feed receives a TradeEvent per finished attempt. Created when nil.
	Feed *event.Feed

	// BypassHold sells from the default wallet without hold-time checks.
	BypassHold bool

	Metrics *metrics.PrometheusMetrics
	Latency *metrics.StrategyLatency
	Rand    *rand.Rand
	Now     func() time.Time
	Logger  *slog.Logger
}

// Trader owns the two trading loops.
type Trader struct {
	mint       solana.PublicKey
	pool       *account.Pool
	monitor    *pricemon.Monitor
	executor   Executor
	pacers     *pattern.Registry
	pacerCfg   pattern.Config
	sessions   SessionStore
	feed       *event.Feed
	bypassHold bool
	metrics    *metrics.PrometheusMetrics
	latency    *metrics.StrategyLatency
	now        func() time.Time
	logger     *slog.Logger

	cfgMu sync.RWMutex
	cfg   ptypes.TraderConfig
	pacer pattern.Pacer

	rngMu sync.Mutex
	rng   *rand.Rand

	running atomic.Bool

	stateMu   sync.Mutex
	status    ptypes.TraderStatus
	sessionID string
	startedAt time.Time
	stopCh    chan struct{}
	done      chan struct{}

	buyMu    sync.Mutex
	buyCount int

	sellMu    sync.Mutex
	sellCount int

	recentMu sync.Mutex
	recent   []ptypes.Side

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New creates a Trader. A zero Trading config is replaced by DefaultConfig.
func New(cfg Config) (*Trader, error) {
	if cfg.Pool == nil || cfg.Monitor == nil || cfg.Executor == nil {
		return nil, errors.New("trader: pool, monitor and executor are required")
	}
	if cfg.Trading == (ptypes.TraderConfig{}) {
		cfg.Trading = DefaultConfig()
	}
	if err := Validate(cfg.Trading); err != nil {
		return nil, err
	}
	if cfg.Pacers == nil {
		cfg.Pacers = pattern.NewRegistry()
	}
	if cfg.Feed == nil {
		cfg.Feed = new(event.Feed)
	}
	if cfg.Rand == nil {
		cfg.Rand = account.NewRand(0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PacerConfig.Logger == nil {
		cfg.PacerConfig.Logger = logger
	}

	pacer, err := cfg.Pacers.Get(cfg.Trading.Pacing, cfg.PacerConfig)
	if err != nil {
		return nil, err
	}

	return &Trader{
		mint:       cfg.Mint,
		pool:       cfg.Pool,
		monitor:    cfg.Monitor,
		executor:   cfg.Executor,
		pacers:     cfg.Pacers,
		pacerCfg:   cfg.PacerConfig,
		sessions:   cfg.Sessions,
		feed:       cfg.Feed,
		bypassHold: cfg.BypassHold,
		metrics:    cfg.Metrics,
		latency:    cfg.Latency,
		now:        cfg.Now,
		logger:     logger,
		cfg:        cfg.Trading,
		pacer:      pacer,
		rng:        cfg.Rand,
		status:     ptypes.StatusIdle,
	}, nil
}

// SubscribeTrades delivers every TradeEvent to ch. Sends block the trading
// loop until ch accepts, so ch should be buffered and drained promptly.
func (t *Trader) SubscribeTrades(ch chan<- ptypes.TradeEvent) event.Subscription {
	return t.feed.Subscribe(ch)
}

// Start launches the buy and sell loops and returns. The loops live until
// Stop is called or ctx is cancelled, so ctx must outlive the caller's
// request. Non-nil fields of req override the configuration.
func (t *Trader) Start(ctx context.Context, req ptypes.StartRequest) error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	if t.done != nil {
		select {
		case <-t.done:
		default:
			return ErrAlreadyRunning
		}
	}

	cfg, pacer, err := t.withOverrides(req)
	if err != nil {
		return err
	}
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	t.cfgMu.Lock()
	t.cfg = cfg
	t.pacer = pacer
	t.cfgMu.Unlock()

	id := uuid.NewString()
	stop := make(chan struct{})
	done := make(chan struct{})
	t.sessionID = id
	t.startedAt = t.now()
	t.status = ptypes.StatusRunning
	t.stopCh = stop
	t.done = done

	if t.sessions != nil {
		err := t.sessions.CreateSession(ctx, &ptypes.Session{
			ID:        id,
			StartedAt: t.startedAt,
			Mint:      t.mint.String(),
			Pacing:    cfg.Pacing,
			Status:    ptypes.StatusRunning,
			Config:    cfg,
		})
		if err != nil {
			t.logger.Warn("failed to persist session", slog.String("session", id), slog.String("error", err.Error()))
		}
	}

	t.metrics.SetRunning(true)
	t.logger.Info("trading started",
		slog.String("session", id),
		slog.String("mint", t.mint.String()),
		slog.String("pacing", string(cfg.Pacing)),
		slog.String("buyStrategy", string(cfg.BuyStrategy)),
		slog.String("sellStrategy", string(cfg.SellStrategy)),
		slog.Int("wallets", t.pool.Len()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.loop(gctx, ptypes.SideBuy, stop, id)
		return nil
	})
	g.Go(func() error {
		t.loop(gctx, ptypes.SideSell, stop, id)
		return nil
	})
	go func() {
		_ = g.Wait()
		t.finish(id, done)
	}()
	return nil
}

// Run starts the loops and blocks until they exit.
func (t *Trader) Run(ctx context.Context) error {
	if err := t.Start(ctx, ptypes.StartRequest{}); err != nil {
		return err
	}
	t.Wait()
	return ctx.Err()
}

// Wait blocks until the loops of the last Start have exited.
func (t *Trader) Wait() {
	t.stateMu.Lock()
	done := t.done
	t.stateMu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop clears the running flag and wakes waiting loops. A trade already
// being delivered runs to completion.
func (t *Trader) Stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	t.stateMu.Lock()
	close(t.stopCh)
	t.stateMu.Unlock()
	t.logger.Info("trading stop requested")
}

// IsRunning reports whether the loops are running.
func (t *Trader) IsRunning() bool {
	return t.running.Load()
}

func (t *Trader) finish(id string, done chan struct{}) {
	t.running.Store(false)
	stoppedAt := t.now()

	t.stateMu.Lock()
	t.status = ptypes.StatusStopped
	t.stateMu.Unlock()

	t.metrics.SetRunning(false)
	if t.sessions != nil {
		if err := t.sessions.CompleteSession(context.Background(), id, stoppedAt, ptypes.StatusStopped); err != nil {
			t.logger.Warn("failed to complete session", slog.String("session", id), slog.String("error", err.Error()))
		}
	}
	t.logger.Info("trading stopped",
		slog.String("session", id),
		slog.Uint64("sent", t.sent.Load()),
		slog.Uint64("failed", t.failed.Load()))
	close(done)
}

func (t *Trader) withOverrides(req ptypes.StartRequest) (ptypes.TraderConfig, pattern.Pacer, error) {
	t.cfgMu.RLock()
	cfg, pacer := t.cfg, t.pacer
	t.cfgMu.RUnlock()

	if req.BuyStrategy != nil {
		cfg.BuyStrategy = *req.BuyStrategy
	}
	if req.SellStrategy != nil {
		cfg.SellStrategy = *req.SellStrategy
	}
	if req.Pacing != nil {
		cfg.Pacing = *req.Pacing
	}
	if err := Validate(cfg); err != nil {
		return cfg, nil, err
	}
	if cfg.Pacing != pacer.Name() {
		p, err := t.pacers.Get(cfg.Pacing, t.pacerCfg)
		if err != nil {
			return cfg, nil, err
		}
		pacer = p
	}
	return cfg, pacer, nil
}

// Config returns the current trading configuration.
func (t *Trader) Config() ptypes.TraderConfig {
	t.cfgMu.RLock()
	defer t.cfgMu.RUnlock()
	return t.cfg
}

func (t *Trader) currentPacer() pattern.Pacer {
	t.cfgMu.RLock()
	defer t.cfgMu.RUnlock()
	return t.pacer
}

func (t *Trader) loop(ctx context.Context, side ptypes.Side, stop <-chan struct{}, sessionID string) {
	for t.running.Load() && ctx.Err() == nil {
		wait := t.nextInterval(side)
		t.metrics.RecordInterval(string(side), wait.Seconds())
		t.logger.Debug("next trade scheduled",
			slog.String("side", string(side)),
			slog.Duration("in", wait))

		if !sleep(ctx, stop, wait) {
			return
		}
		if !t.running.Load() {
			return
		}
		t.trade(ctx, side, sessionID)
	}
}

// sleep waits for d. It returns false when ctx is done.
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return true
	case <-timer.C:
		return true
	}
}

// nextInterval is the paced, throttled wait before the next trade on side.
func (t *Trader) nextInterval(side ptypes.Side) time.Duration {
	cfg := t.Config()
	base := cfg.BuyInterval
	if side == ptypes.SideSell {
		base = cfg.SellInterval
	}
	d := t.currentPacer().Interval(t.pool.GenerateInterval(base))
	return time.Duration(float64(d) * t.monitor.ThrottleMultiplier())
}

func (t *Trader) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	return lo + (hi-lo)*t.rng.Float64()
}

// step returns the capped progressive step for side.
func (t *Trader) step(side ptypes.Side, maxSteps int) int {
	if side == ptypes.SideBuy {
		t.buyMu.Lock()
		defer t.buyMu.Unlock()
		return min(t.buyCount, maxSteps)
	}
	t.sellMu.Lock()
	defer t.sellMu.Unlock()
	return min(t.sellCount, maxSteps)
}

func (t *Trader) advance(side ptypes.Side) {
	if side == ptypes.SideBuy {
		t.buyMu.Lock()
		t.buyCount++
		t.buyMu.Unlock()
	} else {
		t.sellMu.Lock()
		t.sellCount++
		t.sellMu.Unlock()
	}

	t.recentMu.Lock()
	t.recent = append(t.recent, side)
	if len(t.recent) > recentWindow {
		t.recent = t.recent[len(t.recent)-recentWindow:]
	}
	t.recentMu.Unlock()
}

func (t *Trader) recentSides() []ptypes.Side {
	t.recentMu.Lock()
	defer t.recentMu.Unlock()
	out := make([]ptypes.Side, len(t.recent))
	copy(out, t.recent)
	return out
}

// trade runs one iteration of the side's loop body.
func (t *Trader) trade(ctx context.Context, side ptypes.Side, sessionID string) {
	cfg := t.Config()
	pacer := t.currentPacer()

	ev := ptypes.TradeEvent{
		SessionID: sessionID,
		Side:      side,
		Strategy:  cfg.BuyStrategy,
		Throttled: t.monitor.IsThrottled(),
		Time:      t.now(),
	}
	if side == ptypes.SideSell {
		ev.Strategy = cfg.SellStrategy
	}
	if info := pacer.Info(); info != nil {
		ev.Phase = info.Phase
		t.metrics.SetWavePhase(info.Phase)
	}
	t.metrics.SetThrottled(ev.Throttled)

	if cfg.TargetBuyRatio > 0 {
		wantBuy := t.pool.ShouldBuyNext(t.recentSides(), cfg.TargetBuyRatio)
		if wantBuy != (side == ptypes.SideBuy) {
			t.skip(ev, "ratio guard")
			return
		}
	}

	step := t.step(side, cfg.MaxProgressiveSteps)
	growth := math.Pow(cfg.ProgressiveFactor, float64(step))
	ev.ProgressiveStep = step

	var (
		acc *account.Account
		req swap.Request
	)
	switch side {
	case ptypes.SideBuy:
		base := t.uniform(cfg.MinBuyAmount, cfg.MaxBuyAmount)
		if cfg.AmountDistribution == ptypes.AmountTiered {
			base = t.pool.GenerateAmount(cfg.MinBuyAmount, cfg.MaxBuyAmount)
		}
		amount := base * growth * pacer.AmountMultiplier()
		acc = t.pool.SelectForTrade()
		t.metrics.RecordWalletSelection("trade")
		req = swap.Request{
			Mint:        t.mint,
			Direction:   ptypes.SideBuy,
			AmountKind:  swap.AmountQty,
			Amount:      amount,
			SlippageBps: cfg.SlippageBps,
			MaxAmount:   amount,
		}

	default:
		pct := min(t.uniform(cfg.MinSellPercent, cfg.MaxSellPercent)*growth, 1.0)
		if t.bypassHold {
			acc = t.pool.Default()
		} else {
			var err error
			acc, err = t.pool.SelectForSell(cfg.MinHoldHours, cfg.MaxHoldHours)
			if err != nil {
				t.skip(ev, err.Error())
				return
			}
		}
		t.metrics.RecordWalletSelection("sell")
		req = swap.Request{
			Mint:        t.mint,
			Direction:   ptypes.SideSell,
			AmountKind:  swap.AmountPct,
			Amount:      pct,
			SlippageBps: cfg.SlippageBps,
		}
	}

	ev.Wallet = acc.PublicKey.String()
	ev.Amount = req.Amount
	ev.AmountKind = string(req.AmountKind)

	// Cancelling the loops must not abandon a transaction mid-retry.
	res := t.executor.Execute(context.WithoutCancel(ctx), acc, req, ev.Strategy)
	ev.Price = res.Price
	ev.Attempts = res.Attempts()
	ev.Signatures = res.Signatures()
	ev.LatencyMs = res.Elapsed.Milliseconds()

	if res.Price > 0 {
		volume := 0.0
		if side == ptypes.SideBuy {
			volume = req.Amount
		}
		t.monitor.Record(res.Price, volume)
		t.metrics.SetObservedPrice(res.Price)
	}

	logAttrs := []any{
		slog.String("side", string(side)),
		slog.String("wallet", ev.Wallet),
		slog.Float64("amount", req.Amount),
		slog.String("amountKind", ev.AmountKind),
		slog.Int("progressiveStep", step),
		slog.Int("maxProgressiveSteps", cfg.MaxProgressiveSteps),
		slog.String("strategy", string(ev.Strategy)),
		slog.Int("attempts", ev.Attempts),
		slog.Duration("elapsed", res.Elapsed),
	}

	if res.Error != nil {
		ev.Status = ptypes.TradeFailed
		ev.Error = res.Error.Error()
		t.failed.Add(1)
		t.metrics.RecordError(res.Stage, string(side))
		t.logger.Warn("trade failed", append(logAttrs, slog.String("error", ev.Error))...)
	} else {
		ev.Status = ptypes.TradeSent
		t.sent.Add(1)
		t.recordWallet(side, acc)
		t.advance(side)
		t.logger.Info("trade sent", append(logAttrs, slog.Any("signatures", ev.Signatures))...)
	}

	counts := t.ProgressiveCounts()
	t.metrics.SetProgressive(counts.Buys, counts.Sells)
	t.metrics.RecordTrade(string(side), string(ev.Status))
	t.feed.Send(ev)
}

func (t *Trader) recordWallet(side ptypes.Side, acc *account.Account) {
	var err error
	switch {
	case side == ptypes.SideBuy:
		err = t.pool.RecordBuy(acc.PublicKey)
	case t.bypassHold:
		// SelectForSell already recorded the sell otherwise.
		err = t.pool.RecordSell(acc.PublicKey)
	}
	if err != nil {
		t.logger.Error("failed to record wallet activity",
			slog.String("wallet", acc.PublicKey.String()),
			slog.String("error", err.Error()))
	}
}

func (t *Trader) skip(ev ptypes.TradeEvent, reason string) {
	ev.Status = ptypes.TradeSkipped
	ev.Error = reason
	t.logger.Debug("trade skipped", slog.String("side", string(ev.Side)), slog.String("reason", reason))
	t.metrics.RecordTrade(string(ev.Side), string(ev.Status))
	t.feed.Send(ev)
}

// ProgressiveCounts returns the successful trade counters.
func (t *Trader) ProgressiveCounts() ptypes.ProgressiveCounts {
	t.buyMu.Lock()
	buys := t.buyCount
	t.buyMu.Unlock()
	t.sellMu.Lock()
	sells := t.sellCount
	t.sellMu.Unlock()
	return ptypes.ProgressiveCounts{Buys: buys, Sells: sells}
}

// ResetProgressive zeroes both progressive counters. It may be called at
// any time, running or not.
func (t *Trader) ResetProgressive() {
	t.buyMu.Lock()
	t.buyCount = 0
	t.buyMu.Unlock()
	t.sellMu.Lock()
	t.sellCount = 0
	t.sellMu.Unlock()
	t.metrics.SetProgressive(0, 0)
	t.logger.Info("progressive counters reset")
}

// ForcePhase switches the wave pacer into the named phase.
func (t *Trader) ForcePhase(name string) error {
	phase, err := pattern.ParsePhase(name)
	if err != nil {
		return err
	}
	pacer := t.currentPacer()
	w, ok := pacer.(interface{ ForcePhase(pattern.Phase) })
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPhases, pacer.Name())
	}
	w.ForcePhase(phase)
	t.metrics.SetWavePhase(phase.String())
	return nil
}

// Status returns a snapshot of the trader state.
func (t *Trader) Status() ptypes.StatusResponse {
	t.stateMu.Lock()
	status, id, started := t.status, t.sessionID, t.startedAt
	t.stateMu.Unlock()

	resp := ptypes.StatusResponse{
		Status:      status,
		SessionID:   id,
		Mint:        t.mint.String(),
		Config:      t.Config(),
		Progressive: t.ProgressiveCounts(),
		Wave:        t.currentPacer().Info(),
		Price:       t.monitor.Stats(),
		Wallets:     t.pool.Len(),
		TradesSent:  t.sent.Load(),
		TradesFail:  t.failed.Load(),
	}
	if !started.IsZero() {
		resp.StartedAt = &started
	}
	if t.latency != nil {
		resp.Delivery = t.latency.Snapshot()
	}
	return resp
}

