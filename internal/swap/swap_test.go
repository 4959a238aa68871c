package swap

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gagliardetto/solana-go"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

func TestRequestValidate(t *testing.T) {
	payer := solana.NewWallet().PublicKey()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"valid buy", Request{Payer: payer, Direction: ptypes.SideBuy, AmountKind: AmountQty, Amount: 0.1}, nil},
		{"valid sell", Request{Payer: payer, Direction: ptypes.SideSell, AmountKind: AmountPct, Amount: 1}, nil},
		{"missing payer", Request{Direction: ptypes.SideBuy, Amount: 0.1}, ErrInvalidRequest},
		{"bad direction", Request{Payer: payer, Direction: "hold", Amount: 0.1}, ErrInvalidRequest},
		{"zero amount", Request{Payer: payer, Direction: ptypes.SideBuy, Amount: 0}, ErrInvalidAmount},
		{"pct above one", Request{Payer: payer, Direction: ptypes.SideSell, AmountKind: AmountPct, Amount: 1.5}, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestToLamports(t *testing.T) {
	tests := []struct {
		sol  float64
		want uint64
	}{
		{1, 1_000_000_000},
		{0.001, 1_000_000},
		{0.0000000015, 1},
		{0.1 + 0.2, 300_000_000},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := ToLamports(tt.sol); got != tt.want {
			t.Errorf("ToLamports(%v) = %d, want %d", tt.sol, got, tt.want)
		}
	}
}

func TestMinOut(t *testing.T) {
	tests := []struct {
		expected uint64
		bps      uint16
		want     uint64
	}{
		{10_000, 0, 10_000},
		{10_000, 100, 9_900},
		{10_000, 50, 9_950},
		{999, 100, 989},
		{10_000, 20_000, 0},
	}
	for _, tt := range tests {
		if got := MinOut(tt.expected, tt.bps); got != tt.want {
			t.Errorf("MinOut(%d, %d) = %d, want %d", tt.expected, tt.bps, got, tt.want)
		}
	}
}

func TestPriorityFee(t *testing.T) {
	if got := PriorityFee(0, 0); len(got) != 0 {
		t.Errorf("PriorityFee(0,0) returned %d instructions", len(got))
	}
	if got := PriorityFee(200_000, 20_000); len(got) != 2 {
		t.Errorf("PriorityFee returned %d instructions, want 2", len(got))
	}
}

func TestPaperBuilder_Build(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	b := NewPaperBuilder(PaperConfig{
		StartPrice: 0.001,
		Volatility: 1e-9,
		Rand:       rand.New(rand.NewPCG(1, 1)),
	})

	res, err := b.Build(context.Background(), Request{
		Payer:       payer,
		Direction:   ptypes.SideBuy,
		AmountKind:  AmountQty,
		Amount:      1,
		SlippageBps: 100,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !res.Payer.Equals(payer) {
		t.Errorf("Payer = %s, want %s", res.Payer, payer)
	}
	if len(res.Instructions) != 1 {
		t.Fatalf("instructions = %d, want 1", len(res.Instructions))
	}
	if res.Price <= 0.001 {
		t.Errorf("buy should push price up, got %v", res.Price)
	}
	// ~1000 tokens at 6 decimals, less 1% slippage
	if res.MinOut < 980_000_000 || res.MinOut > 990_000_000 {
		t.Errorf("MinOut = %d", res.MinOut)
	}
	if res.Price != b.Price() {
		t.Errorf("Price() = %v, want %v", b.Price(), res.Price)
	}

	sell, err := b.Build(context.Background(), Request{
		Payer:      payer,
		Direction:  ptypes.SideSell,
		AmountKind: AmountPct,
		Amount:     0.5,
	})
	if err != nil {
		t.Fatalf("Build sell: %v", err)
	}
	if sell.Price >= res.Price {
		t.Errorf("sell should push price down: %v -> %v", res.Price, sell.Price)
	}
	if sell.MinOut != 0 {
		t.Errorf("percentage sell MinOut = %d, want 0", sell.MinOut)
	}
}

func TestPaperBuilder_PriorityFeeAndCancel(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	b := NewPaperBuilder(PaperConfig{UnitLimit: 200_000, UnitPrice: 20_000})

	res, err := b.Build(context.Background(), Request{Payer: payer, Direction: ptypes.SideBuy, AmountKind: AmountQty, Amount: 0.01})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Instructions) != 3 {
		t.Errorf("instructions = %d, want 3", len(res.Instructions))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, Request{Payer: payer, Direction: ptypes.SideBuy, AmountKind: AmountQty, Amount: 0.01}); !errors.Is(err, context.Canceled) {
		t.Errorf("Build with cancelled ctx = %v", err)
	}
}
