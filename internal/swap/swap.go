// Package swap defines the contract between the trader and a pool-specific
// instruction builder, plus a paper builder for dry runs.
package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/shopspring/decimal"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// AmountKind says how Request.Amount is interpreted.
type AmountKind string

const (
	// AmountQty is an absolute quantity in SOL.
	AmountQty AmountKind = "qty"
	// AmountPct is a fraction (0,1] of the payer's token holding.
	AmountPct AmountKind = "pct"
)

// LamportsPerSOL is the lamport denomination of one SOL.
const LamportsPerSOL = 1_000_000_000

var (
	// ErrInvalidAmount is returned for non-positive amounts or percentages above 1.
	ErrInvalidAmount = errors.New("invalid swap amount")
	// ErrInvalidRequest is returned for requests missing a payer or direction.
	ErrInvalidRequest = errors.New("invalid swap request")
)

// Request describes one swap to build. It is built fresh for every attempt.
type Request struct {
	Mint        solana.PublicKey
	Direction   ptypes.Side
	AmountKind  AmountKind
	Amount      float64
	SlippageBps uint16
	// MaxAmount caps the input side in SOL. Zero means no cap.
	MaxAmount float64
	Payer     solana.PublicKey
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if r.Payer == (solana.PublicKey{}) {
		return fmt.Errorf("%w: missing payer", ErrInvalidRequest)
	}
	if r.Direction != ptypes.SideBuy && r.Direction != ptypes.SideSell {
		return fmt.Errorf("%w: direction %q", ErrInvalidRequest, r.Direction)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, r.Amount)
	}
	if r.AmountKind == AmountPct && r.Amount > 1 {
		return fmt.Errorf("%w: percentage %v above 1", ErrInvalidAmount, r.Amount)
	}
	return nil
}

// Result carries the instructions for one swap.
type Result struct {
	Payer        solana.PublicKey
	Instructions []solana.Instruction
	// Price is the pool price observed while building, in SOL per token.
	Price float64
	// MinOut is the slippage-protected minimum output in base units.
	MinOut uint64
}

// Builder turns a Request into instructions for one pool.
type Builder interface {
	Build(ctx context.Context, req Request) (*Result, error)
}

// ToLamports converts a SOL amount to lamports, truncating sub-lamport dust.
func ToLamports(sol float64) uint64 {
	d := decimal.NewFromFloat(sol).Mul(decimal.NewFromInt(LamportsPerSOL)).Truncate(0)
	if d.IsNegative() {
		return 0
	}
	return uint64(d.IntPart())
}

// MinOut applies slippageBps to an expected output amount.
func MinOut(expected uint64, slippageBps uint16) uint64 {
	keep := decimal.NewFromInt(10_000 - int64(min(slippageBps, 10_000))).Div(decimal.NewFromInt(10_000))
	return uint64(decimal.NewFromInt(int64(expected)).Mul(keep).Truncate(0).IntPart())
}

// PriorityFee returns compute budget instructions for a unit limit and a
// price in micro-lamports per unit. Zero values are omitted.
func PriorityFee(unitLimit uint32, unitPrice uint64) []solana.Instruction {
	var ixs []solana.Instruction
	if unitLimit > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitLimitInstruction(unitLimit).Build())
	}
	if unitPrice > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitPriceInstruction(unitPrice).Build())
	}
	return ixs
}
