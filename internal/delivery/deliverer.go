// Package delivery signs trade instructions and submits them with one of
// several latency/reliability strategies.
package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/gateway-fm/swapgen/internal/metrics"
	"github.com/gateway-fm/swapgen/internal/rpc"
	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

var (
	// ErrUnknownStrategy is returned for a strategy name Deliver does not know.
	ErrUnknownStrategy = errors.New("unknown delivery strategy")
	// ErrRelayNotConfigured is returned when the relay strategy is used without a relay.
	ErrRelayNotConfigured = errors.New("relay not configured")
	// ErrNoInstructions is returned when there is nothing to sign.
	ErrNoInstructions = errors.New("no instructions to deliver")
	// ErrAtCapacity is returned when too many deliveries are in flight.
	ErrAtCapacity = errors.New("delivery at capacity")
)

// DefaultTipAccount receives the relay tip.
var DefaultTipAccount = solana.MustPublicKeyFromBase58("FLaShB3iXXTWE1vu9wQsChUKq3HFtpMAhb8kAh1pf1wi")

// Defaults for the retry policies.
const (
	DefaultTipLamports      = 100_000
	DefaultFastMaxRetries   = 3
	DefaultUrgentMaxRetries = 5
	DefaultUrgentAttempts   = 3
	DefaultUrgentBackoff    = 200 * time.Millisecond
	DefaultRelayAttempts    = 3
	DefaultRelayDelay       = 500 * time.Millisecond
	DefaultConcurrency      = 16

	// MaxRelayRetryAfter caps a relay-requested Retry-After.
	MaxRelayRetryAfter = 5 * time.Second
)

// Submitter posts base64-encoded transactions to a relay.
type Submitter interface {
	Submit(ctx context.Context, txs ...string) ([]string, error)
}

// Config for creating a Deliverer.
type Config struct {
	RPC   rpc.Client
	Relay Submitter // optional; required for StrategyRelay

	TipAccount  solana.PublicKey
	TipLamports uint64

	FastMaxRetries   uint
	UrgentMaxRetries uint
	UrgentAttempts   int
	UrgentBackoff    time.Duration
	RelayAttempts    int
	RelayDelay       time.Duration

	// Concurrency caps in-flight deliveries (default: 16).
	Concurrency int

	Metrics *metrics.PrometheusMetrics
	Latency *metrics.StrategyLatency
	Logger  *slog.Logger
}

// Result describes a delivered transaction.
type Result struct {
	Strategy   ptypes.Strategy
	Signatures []string
	Attempts   int
	Elapsed    time.Duration
}

// Deliverer dispatches signed transactions by strategy.
type Deliverer struct {
	cfg       Config
	semaphore chan struct{}
	logger    *slog.Logger
}

// New creates a Deliverer, filling zero fields with defaults.
func New(cfg Config) *Deliverer {
	if cfg.TipAccount == (solana.PublicKey{}) {
		cfg.TipAccount = DefaultTipAccount
	}
	if cfg.TipLamports == 0 {
		cfg.TipLamports = DefaultTipLamports
	}
	if cfg.FastMaxRetries == 0 {
		cfg.FastMaxRetries = DefaultFastMaxRetries
	}
	if cfg.UrgentMaxRetries == 0 {
		cfg.UrgentMaxRetries = DefaultUrgentMaxRetries
	}
	if cfg.UrgentAttempts <= 0 {
		cfg.UrgentAttempts = DefaultUrgentAttempts
	}
	if cfg.UrgentBackoff <= 0 {
		cfg.UrgentBackoff = DefaultUrgentBackoff
	}
	if cfg.RelayAttempts <= 0 {
		cfg.RelayAttempts = DefaultRelayAttempts
	}
	if cfg.RelayDelay <= 0 {
		cfg.RelayDelay = DefaultRelayDelay
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Deliverer{
		cfg:       cfg,
		semaphore: make(chan struct{}, cfg.Concurrency),
		logger:    logger,
	}
}

// Deliver signs instructions with payer and submits them using strategy.
// On error the on-chain outcome is unknown; the returned Result still carries
// the number of attempts made.
func (d *Deliverer) Deliver(ctx context.Context, strategy ptypes.Strategy, payer solana.PrivateKey, ixs []solana.Instruction) (*Result, error) {
	if len(ixs) == 0 {
		return &Result{Strategy: strategy}, ErrNoInstructions
	}

	select {
	case d.semaphore <- struct{}{}:
		defer func() { <-d.semaphore }()
	default:
		return &Result{Strategy: strategy}, ErrAtCapacity
	}

	start := time.Now()
	var (
		res *Result
		err error
	)
	switch strategy {
	case ptypes.StrategyStandard:
		res, err = d.standard(ctx, payer, ixs)
	case ptypes.StrategyFast:
		res, err = d.fast(ctx, payer, ixs)
	case ptypes.StrategyUrgent:
		res, err = d.urgent(ctx, payer, ixs)
	case ptypes.StrategyRelay:
		res, err = d.relay(ctx, payer, ixs)
	default:
		return &Result{Strategy: strategy}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	res.Strategy = strategy
	res.Elapsed = time.Since(start)

	d.cfg.Metrics.RecordDeliveryLatency(string(strategy), err == nil, res.Elapsed.Seconds())
	if err == nil && d.cfg.Latency != nil {
		d.cfg.Latency.Add(strategy, float64(res.Elapsed.Milliseconds()))
	}
	return res, err
}

// Available returns the number of free delivery slots.
func (d *Deliverer) Available() int {
	return cap(d.semaphore) - len(d.semaphore)
}

// InFlight returns the number of deliveries in progress.
func (d *Deliverer) InFlight() int {
	return len(d.semaphore)
}

func (d *Deliverer) standard(ctx context.Context, payer solana.PrivateKey, ixs []solana.Instruction) (*Result, error) {
	res := &Result{Attempts: 1}
	tx, err := d.sign(ctx, payer, ixs)
	if err != nil {
		return res, err
	}
	sig, err := d.cfg.RPC.SendAndConfirm(ctx, tx)
	d.cfg.Metrics.RecordDeliveryAttempt(string(ptypes.StrategyStandard), err == nil)
	if err != nil {
		return res, fmt.Errorf("standard delivery: %w", err)
	}
	res.Signatures = []string{sig.String()}
	return res, nil
}

func (d *Deliverer) fast(ctx context.Context, payer solana.PrivateKey, ixs []solana.Instruction) (*Result, error) {
	res := &Result{Attempts: 1}
	tx, err := d.sign(ctx, payer, ixs)
	if err != nil {
		return res, err
	}
	retries := d.cfg.FastMaxRetries
	sig, err := d.cfg.RPC.Send(ctx, tx, rpc.SendOptions{
		SkipPreflight:       true,
		PreflightCommitment: solrpc.CommitmentProcessed,
		MaxRetries:          &retries,
	})
	d.cfg.Metrics.RecordDeliveryAttempt(string(ptypes.StrategyFast), err == nil)
	if err != nil {
		return res, fmt.Errorf("fast delivery: %w", err)
	}
	res.Signatures = []string{sig.String()}
	return res, nil
}

// urgent resends the same signed transaction so a late landing of an earlier
// attempt cannot execute the trade twice.
func (d *Deliverer) urgent(ctx context.Context, payer solana.PrivateKey, ixs []solana.Instruction) (*Result, error) {
	res := &Result{Attempts: 1}
	tx, err := d.sign(ctx, payer, ixs)
	if err != nil {
		return res, err
	}
	retries := d.cfg.UrgentMaxRetries
	opts := rpc.SendOptions{
		PreflightCommitment: solrpc.CommitmentProcessed,
		MaxRetries:          &retries,
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.UrgentAttempts; attempt++ {
		res.Attempts = attempt
		sig, err := d.cfg.RPC.Send(ctx, tx, opts)
		d.cfg.Metrics.RecordDeliveryAttempt(string(ptypes.StrategyUrgent), err == nil)
		if err == nil {
			res.Signatures = []string{sig.String()}
			return res, nil
		}
		lastErr = err
		d.logger.Warn("urgent delivery attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("maxAttempts", d.cfg.UrgentAttempts),
			slog.String("error", err.Error()))

		if attempt < d.cfg.UrgentAttempts {
			if err := sleep(ctx, d.cfg.UrgentBackoff); err != nil {
				return res, err
			}
		}
	}
	return res, fmt.Errorf("urgent delivery failed after %d attempts: %w", res.Attempts, lastErr)
}

func (d *Deliverer) relay(ctx context.Context, payer solana.PrivateKey, ixs []solana.Instruction) (*Result, error) {
	res := &Result{}
	if d.cfg.Relay == nil {
		return res, ErrRelayNotConfigured
	}

	tip := system.NewTransferInstruction(d.cfg.TipLamports, payer.PublicKey(), d.cfg.TipAccount).Build()
	withTip := make([]solana.Instruction, 0, len(ixs)+1)
	withTip = append(withTip, tip)
	withTip = append(withTip, ixs...)

	tx, err := d.sign(ctx, payer, withTip)
	if err != nil {
		res.Attempts = 1
		return res, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return res, fmt.Errorf("serialize transaction: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	var lastErr error
	for attempt := 1; attempt <= d.cfg.RelayAttempts; attempt++ {
		res.Attempts = attempt
		sigs, err := d.cfg.Relay.Submit(ctx, encoded)
		d.cfg.Metrics.RecordDeliveryAttempt(string(ptypes.StrategyRelay), err == nil)
		if err == nil {
			res.Signatures = sigs
			return res, nil
		}
		lastErr = err
		d.logger.Warn("relay submission failed",
			slog.Int("attempt", attempt),
			slog.Int("maxAttempts", d.cfg.RelayAttempts),
			slog.String("error", err.Error()))

		if !rpc.IsRetryable(err) {
			break
		}
		if attempt < d.cfg.RelayAttempts {
			delay := min(rpc.RetryDelay(err, d.cfg.RelayDelay), MaxRelayRetryAfter)
			if err := sleep(ctx, delay); err != nil {
				return res, err
			}
		}
	}
	return res, fmt.Errorf("relay delivery failed after %d attempts: %w", res.Attempts, lastErr)
}

// sign builds a transaction paid by payer over a fresh blockhash.
func (d *Deliverer) sign(ctx context.Context, payer solana.PrivateKey, ixs []solana.Instruction) (*solana.Transaction, error) {
	hash, err := d.cfg.RPC.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction(ixs, hash, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
