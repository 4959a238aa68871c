package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/gateway-fm/swapgen/internal/account"
	"github.com/gateway-fm/swapgen/internal/delivery"
	"github.com/gateway-fm/swapgen/internal/swap"
	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// mockBuilder returns a self transfer paid by the request payer, or by
// payer when set.
type mockBuilder struct {
	err   error
	payer solana.PublicKey
	got   swap.Request
}

func (m *mockBuilder) Build(ctx context.Context, req swap.Request) (*swap.Result, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	payer := req.Payer
	if m.payer != (solana.PublicKey{}) {
		payer = m.payer
	}
	return &swap.Result{
		Payer:        payer,
		Instructions: []solana.Instruction{system.NewTransferInstruction(0, payer, payer).Build()},
		Price:        0.5,
	}, nil
}

// mockDeliverer records the payer and strategy it was called with.
type mockDeliverer struct {
	err      error
	calls    int
	payer    solana.PublicKey
	strategy ptypes.Strategy
}

func (m *mockDeliverer) Deliver(ctx context.Context, strategy ptypes.Strategy, payer solana.PrivateKey, ixs []solana.Instruction) (*delivery.Result, error) {
	m.calls++
	m.payer = payer.PublicKey()
	m.strategy = strategy
	res := &delivery.Result{Strategy: strategy, Attempts: 2, Elapsed: time.Millisecond}
	if m.err != nil {
		return res, m.err
	}
	res.Signatures = []string{"sig"}
	return res, nil
}

func newAccount(t *testing.T) *account.Account {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("NewRandomPrivateKey: %v", err)
	}
	return account.NewAccount(key, account.BalancedTrader, time.Now())
}

func TestExecute_Success(t *testing.T) {
	acc := newAccount(t)
	b := &mockBuilder{}
	d := &mockDeliverer{}
	p := New(Config{Builder: b, Deliverer: d})

	res := p.Execute(context.Background(), acc, swap.Request{
		Direction:  ptypes.SideBuy,
		AmountKind: swap.AmountQty,
		Amount:     0.1,
	}, ptypes.StrategyFast)

	if res.Error != nil {
		t.Fatalf("Execute error: %v", res.Error)
	}
	if !b.got.Payer.Equals(acc.PublicKey) {
		t.Errorf("builder payer = %s, want %s", b.got.Payer, acc.PublicKey)
	}
	if !d.payer.Equals(acc.PublicKey) || d.strategy != ptypes.StrategyFast {
		t.Errorf("deliverer called with payer=%s strategy=%s", d.payer, d.strategy)
	}
	if res.Price != 0.5 || res.Attempts() != 2 || len(res.Signatures()) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestExecute_Failures(t *testing.T) {
	buildErr := errors.New("pool not found")
	sendErr := errors.New("blockhash not found")

	tests := []struct {
		name      string
		builder   *mockBuilder
		deliverer *mockDeliverer
		wantStage string
		wantErr   error
		wantCalls int
	}{
		{"build error", &mockBuilder{err: buildErr}, &mockDeliverer{}, "build", buildErr, 0},
		{"payer mismatch", &mockBuilder{payer: solana.NewWallet().PublicKey()}, &mockDeliverer{}, "build", ErrPayerMismatch, 0},
		{"deliver error", &mockBuilder{}, &mockDeliverer{err: sendErr}, "deliver", sendErr, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{Builder: tt.builder, Deliverer: tt.deliverer})
			res := p.Execute(context.Background(), newAccount(t), swap.Request{
				Direction:  ptypes.SideSell,
				AmountKind: swap.AmountPct,
				Amount:     0.2,
			}, ptypes.StrategyUrgent)

			if !errors.Is(res.Error, tt.wantErr) {
				t.Fatalf("Error = %v, want %v", res.Error, tt.wantErr)
			}
			if res.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", res.Stage, tt.wantStage)
			}
			if tt.deliverer.calls != tt.wantCalls {
				t.Errorf("deliver calls = %d, want %d", tt.deliverer.calls, tt.wantCalls)
			}
		})
	}
}

func TestExecute_DeliverFailureKeepsAttempts(t *testing.T) {
	p := New(Config{Builder: &mockBuilder{}, Deliverer: &mockDeliverer{err: errors.New("x")}})
	res := p.Execute(context.Background(), newAccount(t), swap.Request{
		Direction: ptypes.SideBuy, AmountKind: swap.AmountQty, Amount: 1,
	}, ptypes.StrategyRelay)
	if res.Attempts() != 2 {
		t.Errorf("Attempts() = %d, want 2", res.Attempts())
	}
	if res.Signatures() != nil {
		t.Errorf("Signatures() = %v, want nil", res.Signatures())
	}
}
