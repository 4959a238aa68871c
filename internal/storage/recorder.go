package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/event"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// recorderBuffer is sized so a slow disk does not stall the trading loops,
// which block on the feed until every subscriber has accepted the event.
const recorderBuffer = 256

// TradeSource publishes trade events.
type TradeSource interface {
	SubscribeTrades(ch chan<- ptypes.TradeEvent) event.Subscription
}

// Recorder writes every published trade event to a Journal.
type Recorder struct {
	journal Journal
	source  TradeSource
	timeout time.Duration
	logger  *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(journal Journal, source TradeSource, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		journal: journal,
		source:  source,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Run records events until ctx is cancelled or the subscription fails.
// Events already buffered when ctx is cancelled are still written.
func (r *Recorder) Run(ctx context.Context) error {
	ch := make(chan ptypes.TradeEvent, recorderBuffer)
	sub := r.source.SubscribeTrades(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-ch:
			r.write(ev)
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			r.drain(ch)
			return nil
		}
	}
}

func (r *Recorder) drain(ch <-chan ptypes.TradeEvent) {
	for {
		select {
		case ev := <-ch:
			r.write(ev)
		default:
			return
		}
	}
}

func (r *Recorder) write(ev ptypes.TradeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.journal.InsertTrade(ctx, ev); err != nil {
		r.logger.Warn("failed to journal trade",
			slog.String("session", ev.SessionID),
			slog.String("side", string(ev.Side)),
			slog.String("error", err.Error()))
	}
}
