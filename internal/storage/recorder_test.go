package storage

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/event"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// feedSource signals once the recorder has subscribed.
type feedSource struct {
	feed       event.Feed
	subscribed chan struct{}
}

func (f *feedSource) SubscribeTrades(ch chan<- ptypes.TradeEvent) event.Subscription {
	sub := f.feed.Subscribe(ch)
	close(f.subscribed)
	return sub
}

func TestRecorder_WritesEvents(t *testing.T) {
	j := createTestJournal(t)
	src := &feedSource{subscribed: make(chan struct{})}
	rec := NewRecorder(j, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	select {
	case <-src.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not subscribe")
	}

	for i := 0; i < 3; i++ {
		n := src.feed.Send(ptypes.TradeEvent{
			SessionID:  "s1",
			Side:       ptypes.SideBuy,
			Amount:     float64(i + 1),
			AmountKind: "qty",
			Strategy:   ptypes.StrategyFast,
			Status:     ptypes.TradeSent,
			Time:       base.Add(time.Duration(i) * time.Second),
		})
		if n != 1 {
			t.Fatalf("Send delivered to %d subscribers, want 1", n)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}

	resp, err := j.ListTrades(context.Background(), "s1", 10, 0)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("journaled %d trades, want 3", resp.Total)
	}
}
