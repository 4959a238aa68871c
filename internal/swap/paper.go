package swap

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// PaperConfig configures a PaperBuilder.
type PaperConfig struct {
	// StartPrice is the initial simulated price in SOL per token (default: 0.000001).
	StartPrice float64
	// Volatility is the per-build log-return standard deviation (default: 0.01).
	Volatility float64
	// Impact is the log-price move per SOL traded (default: 0.002).
	Impact float64
	// TokenDecimals of the simulated mint (default: 6).
	TokenDecimals int32

	UnitLimit uint32
	UnitPrice uint64

	Rand   *rand.Rand
	Logger *slog.Logger
}

// PaperBuilder emits a zero-lamport self transfer in place of a swap and
// tracks a geometric random-walk price that buys push up and sells push down.
// It lets the whole delivery path run without touching a pool.
type PaperBuilder struct {
	mu    sync.Mutex
	price float64
	cfg   PaperConfig
	rng   *rand.Rand

	logger *slog.Logger
}

// NewPaperBuilder creates a PaperBuilder.
func NewPaperBuilder(cfg PaperConfig) *PaperBuilder {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 0.000001
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.01
	}
	if cfg.Impact <= 0 {
		cfg.Impact = 0.002
	}
	if cfg.TokenDecimals <= 0 {
		cfg.TokenDecimals = 6
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PaperBuilder{
		price:  cfg.StartPrice,
		cfg:    cfg,
		rng:    rng,
		logger: logger,
	}
}

// Build validates req, moves the simulated price and returns a harmless
// instruction set paid by req.Payer.
func (b *PaperBuilder) Build(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	amount := req.Amount
	if req.AmountKind == AmountQty && req.MaxAmount > 0 {
		amount = min(amount, req.MaxAmount)
	}

	b.mu.Lock()
	// A percentage sell is treated as a fixed notional for price impact.
	notional := amount
	if req.AmountKind == AmountPct {
		notional = amount * 0.1
	}
	move := b.cfg.Volatility * b.rng.NormFloat64()
	if req.Direction == ptypes.SideBuy {
		move += b.cfg.Impact * notional
	} else {
		move -= b.cfg.Impact * notional
	}
	b.price *= math.Exp(move)
	price := b.price
	b.mu.Unlock()

	var minOut uint64
	if req.Direction == ptypes.SideBuy && req.AmountKind == AmountQty {
		// tokens = SOL / price, in base units
		tokens := decimal.NewFromFloat(amount).
			Div(decimal.NewFromFloat(price)).
			Shift(b.cfg.TokenDecimals).
			Truncate(0)
		minOut = MinOut(uint64(tokens.IntPart()), req.SlippageBps)
	}

	ixs := PriorityFee(b.cfg.UnitLimit, b.cfg.UnitPrice)
	ixs = append(ixs, system.NewTransferInstruction(0, req.Payer, req.Payer).Build())

	b.logger.Debug("paper swap built",
		slog.String("side", string(req.Direction)),
		slog.String("payer", req.Payer.String()),
		slog.Float64("amount", amount),
		slog.Float64("price", price))

	return &Result{
		Payer:        req.Payer,
		Instructions: ixs,
		Price:        price,
		MinOut:       minOut,
	}, nil
}

// Price returns the current simulated price.
func (b *PaperBuilder) Price() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.price
}

var _ Builder = (*PaperBuilder)(nil)
