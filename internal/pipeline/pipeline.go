// Package pipeline runs one trade through its lifecycle: build the swap
// instructions, then sign and deliver them with a strategy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/gateway-fm/swapgen/internal/account"
	"github.com/gateway-fm/swapgen/internal/delivery"
	"github.com/gateway-fm/swapgen/internal/swap"
	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// ErrPayerMismatch is returned when a builder pays from a different wallet
// than the one selected for the trade.
var ErrPayerMismatch = errors.New("builder payer does not match wallet")

// Deliverer signs and submits instructions.
type Deliverer interface {
	Deliver(ctx context.Context, strategy ptypes.Strategy, payer solana.PrivateKey, ixs []solana.Instruction) (*delivery.Result, error)
}

// Result contains the outcome of a pipeline execution.
type Result struct {
	// Price observed while building; zero when the build failed.
	Price float64
	// Delivery is nil when the build failed.
	Delivery *delivery.Result
	Elapsed  time.Duration
	// Stage is "build" or "deliver" when Error is set.
	Stage string
	Error error
}

// Attempts returns the number of delivery attempts made.
func (r Result) Attempts() int {
	if r.Delivery == nil {
		return 0
	}
	return r.Delivery.Attempts
}

// Signatures returns the delivered signatures, if any.
func (r Result) Signatures() []string {
	if r.Delivery == nil {
		return nil
	}
	return r.Delivery.Signatures
}

// Config for creating a Pipeline.
type Config struct {
	Builder   swap.Builder
	Deliverer Deliverer
	Logger    *slog.Logger
}

// Pipeline handles the complete trade lifecycle.
type Pipeline struct {
	builder   swap.Builder
	deliverer Deliverer
	logger    *slog.Logger
}

// New creates a new Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		builder:   cfg.Builder,
		deliverer: cfg.Deliverer,
		logger:    logger,
	}
}

// Execute builds req for acc and delivers it with strategy. It blocks until
// the delivery strategy returns.
func (p *Pipeline) Execute(ctx context.Context, acc *account.Account, req swap.Request, strategy ptypes.Strategy) Result {
	start := time.Now()
	req.Payer = acc.PublicKey

	built, err := p.builder.Build(ctx, req)
	if err != nil {
		return Result{Elapsed: time.Since(start), Stage: "build", Error: fmt.Errorf("build: %w", err)}
	}
	if !built.Payer.Equals(acc.PublicKey) {
		return Result{
			Price:   built.Price,
			Elapsed: time.Since(start),
			Stage:   "build",
			Error:   fmt.Errorf("%w: %s != %s", ErrPayerMismatch, built.Payer, acc.PublicKey),
		}
	}

	res, err := p.deliverer.Deliver(ctx, strategy, acc.Key, built.Instructions)
	out := Result{
		Price:    built.Price,
		Delivery: res,
		Elapsed:  time.Since(start),
	}
	if err != nil {
		out.Stage = "deliver"
		out.Error = fmt.Errorf("deliver: %w", err)
		return out
	}

	p.logger.Debug("trade delivered",
		slog.String("side", string(req.Direction)),
		slog.String("strategy", string(strategy)),
		slog.String("wallet", acc.PublicKey.String()),
		slog.Any("signatures", res.Signatures),
		slog.Duration("elapsed", out.Elapsed))
	return out
}
