package storage

import (
	"context"
	"errors"
	"time"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Journal defines the persistence interface for trading sessions and trades.
type Journal interface {
	// Session lifecycle
	CreateSession(ctx context.Context, s *ptypes.Session) error
	CompleteSession(ctx context.Context, id string, stoppedAt time.Time, status ptypes.TraderStatus) error
	GetSession(ctx context.Context, id string) (*ptypes.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]ptypes.Session, error)

	// Trades
	InsertTrade(ctx context.Context, ev ptypes.TradeEvent) error
	ListTrades(ctx context.Context, sessionID string, limit, offset int) (*ptypes.TradesResponse, error)
	SessionSummary(ctx context.Context, sessionID string) (*ptypes.SessionSummary, error)

	Close() error
}
