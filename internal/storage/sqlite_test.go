package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// createTestJournal opens a journal in a per-test temporary directory.
func createTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testSession(id string, started time.Time) *ptypes.Session {
	return &ptypes.Session{
		ID:        id,
		StartedAt: started,
		Mint:      "So11111111111111111111111111111111111111112",
		Pacing:    ptypes.PacingWave,
		Status:    ptypes.StatusRunning,
		Config: ptypes.TraderConfig{
			MinBuyAmount: 0.01,
			MaxBuyAmount: 0.02,
			BuyInterval:  time.Minute,
			BuyStrategy:  ptypes.StrategyFast,
		},
	}
}

func TestNewSQLiteJournal_InvalidPath(t *testing.T) {
	_, err := NewSQLiteJournal("/nonexistent/directory/that/should/not/exist/journal.db", nil)
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 2; i++ {
		j, err := NewSQLiteJournal(path, nil)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		j.Close()
	}
}

func TestColumnExists(t *testing.T) {
	j := createTestJournal(t)

	tests := []struct {
		table, column string
		want          bool
	}{
		{"trades", "phase", true},
		{"trades", "throttled", true},
		{"sessions", "config", true},
		{"trades", "nope", false},
		{"trades'; DROP TABLE trades; --", "id", false},
	}
	for _, tt := range tests {
		if got := j.columnExists(tt.table, tt.column); got != tt.want {
			t.Errorf("columnExists(%q, %q) = %v, want %v", tt.table, tt.column, got, tt.want)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	if err := j.CreateSession(ctx, testSession("s1", base)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := j.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != ptypes.StatusRunning || got.StoppedAt != nil {
		t.Errorf("fresh session = %+v", got)
	}
	if got.Config.MinBuyAmount != 0.01 || got.Config.BuyInterval != time.Minute || got.Config.BuyStrategy != ptypes.StrategyFast {
		t.Errorf("config round trip = %+v", got.Config)
	}
	if !got.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, base)
	}

	stopped := base.Add(time.Hour)
	if err := j.CompleteSession(ctx, "s1", stopped, ptypes.StatusStopped); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	got, err = j.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != ptypes.StatusStopped || got.StoppedAt == nil || !got.StoppedAt.Equal(stopped) {
		t.Errorf("completed session = %+v", got)
	}
}

func TestSessionNotFound(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	if _, err := j.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession err = %v, want ErrNotFound", err)
	}
	if err := j.CompleteSession(ctx, "missing", base, ptypes.StatusStopped); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteSession err = %v, want ErrNotFound", err)
	}
	if _, err := j.SessionSummary(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SessionSummary err = %v, want ErrNotFound", err)
	}
}

func TestListSessions(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := j.CreateSession(ctx, testSession(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("CreateSession(%s): %v", id, err)
		}
	}

	got, err := j.ListSessions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("page 1 = %v", ids(got))
	}

	got, err = j.ListSessions(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("page 2 = %v", ids(got))
	}
}

func ids(ss []ptypes.Session) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ID
	}
	return out
}

func seedTrades(t *testing.T, j *SQLiteJournal) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"s1", "s2"} {
		if err := j.CreateSession(ctx, testSession(id, base)); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	trades := []ptypes.TradeEvent{
		{SessionID: "s1", Side: ptypes.SideBuy, Wallet: "w1", Amount: 0.01, AmountKind: "qty", Price: 1.5,
			Strategy: ptypes.StrategyFast, Signatures: []string{"sig1"}, Attempts: 1, Status: ptypes.TradeSent,
			LatencyMs: 100, Phase: "active", Time: base.Add(1 * time.Second)},
		{SessionID: "s1", Side: ptypes.SideBuy, Wallet: "w2", Amount: 0.03, AmountKind: "qty", Price: 1.6,
			Strategy: ptypes.StrategyFast, Signatures: []string{"sig2"}, Attempts: 1, Status: ptypes.TradeSent,
			LatencyMs: 300, ProgressiveStep: 1, Time: base.Add(2 * time.Second)},
		{SessionID: "s1", Side: ptypes.SideSell, Wallet: "w1", Amount: 0.4, AmountKind: "pct",
			Strategy: ptypes.StrategyUrgent, Attempts: 3, Status: ptypes.TradeFailed, Error: "blockhash not found",
			LatencyMs: 900, Throttled: true, Time: base.Add(3 * time.Second)},
		{SessionID: "s1", Side: ptypes.SideSell, Wallet: "w2", Amount: 0.2, AmountKind: "pct", Price: 1.4,
			Strategy: ptypes.StrategyRelay, Signatures: []string{"sig3", "sig4"}, Attempts: 2, Status: ptypes.TradeSent,
			LatencyMs: 200, Time: base.Add(4 * time.Second)},
		{SessionID: "s1", Side: ptypes.SideSell, AmountKind: "pct", Strategy: ptypes.StrategyUrgent,
			Status: ptypes.TradeSkipped, Error: "no wallet eligible for selling", Time: base.Add(5 * time.Second)},
		{SessionID: "s2", Side: ptypes.SideBuy, Wallet: "w3", Amount: 0.5, AmountKind: "qty",
			Strategy: ptypes.StrategyStandard, Attempts: 1, Status: ptypes.TradeSent, Time: base.Add(6 * time.Second)},
	}
	for _, ev := range trades {
		if err := j.InsertTrade(ctx, ev); err != nil {
			t.Fatalf("InsertTrade: %v", err)
		}
	}
}

func TestListTrades(t *testing.T) {
	j := createTestJournal(t)
	seedTrades(t, j)
	ctx := context.Background()

	resp, err := j.ListTrades(ctx, "s1", 2, 0)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if resp.Total != 5 || len(resp.Trades) != 2 {
		t.Fatalf("total=%d len=%d, want 5 and 2", resp.Total, len(resp.Trades))
	}
	if resp.Trades[0].Status != ptypes.TradeSkipped {
		t.Errorf("newest trade status = %s, want skipped", resp.Trades[0].Status)
	}
	relay := resp.Trades[1]
	if relay.Strategy != ptypes.StrategyRelay || len(relay.Signatures) != 2 || relay.Signatures[1] != "sig4" {
		t.Errorf("relay trade = %+v", relay)
	}

	resp, err = j.ListTrades(ctx, "s1", 10, 2)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(resp.Trades) != 3 {
		t.Fatalf("page 2 len = %d, want 3", len(resp.Trades))
	}
	failed := resp.Trades[0]
	if failed.Error != "blockhash not found" || !failed.Throttled || failed.Attempts != 3 || failed.Signatures != nil {
		t.Errorf("failed trade = %+v", failed)
	}
	first := resp.Trades[2]
	if first.Phase != "active" || first.Wallet != "w1" || !first.Time.Equal(base.Add(time.Second)) {
		t.Errorf("first trade = %+v", first)
	}

	all, err := j.ListTrades(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("ListTrades all: %v", err)
	}
	if all.Total != 6 || len(all.Trades) != 6 {
		t.Errorf("all trades total=%d len=%d, want 6", all.Total, len(all.Trades))
	}
}

func TestListTrades_Empty(t *testing.T) {
	j := createTestJournal(t)
	resp, err := j.ListTrades(context.Background(), "none", 10, 0)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if resp.Total != 0 || resp.Trades == nil || len(resp.Trades) != 0 {
		t.Errorf("resp = %+v, want empty non-nil slice", resp)
	}
}

func TestSessionSummary(t *testing.T) {
	j := createTestJournal(t)
	seedTrades(t, j)

	sum, err := j.SessionSummary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SessionSummary: %v", err)
	}
	if sum.Buys != 2 || sum.Sells != 1 || sum.Failed != 1 {
		t.Errorf("counts = %+v, want 2 buys 1 sell 1 failed", sum)
	}
	if sum.AvgLatency != 200 {
		t.Errorf("AvgLatency = %v, want 200", sum.AvgLatency)
	}
	if sum.BuyVolume < 0.0399 || sum.BuyVolume > 0.0401 {
		t.Errorf("BuyVolume = %v, want 0.04", sum.BuyVolume)
	}
}

func TestSessionSummary_NoTrades(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	if err := j.CreateSession(ctx, testSession("idle", base)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	sum, err := j.SessionSummary(ctx, "idle")
	if err != nil {
		t.Fatalf("SessionSummary: %v", err)
	}
	if *sum != (ptypes.SessionSummary{SessionID: "idle"}) {
		t.Errorf("summary = %+v, want zero counts", sum)
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultLimit, 0},
		{-5, -1, DefaultLimit, 0},
		{50, 10, 50, 10},
		{MaxLimit + 1, 0, MaxLimit, 0},
	}
	for _, tt := range tests {
		l, o := clampPage(tt.limit, tt.offset)
		if l != tt.wantLimit || o != tt.wantOffset {
			t.Errorf("clampPage(%d, %d) = (%d, %d), want (%d, %d)", tt.limit, tt.offset, l, o, tt.wantLimit, tt.wantOffset)
		}
	}
}
