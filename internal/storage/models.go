// Package storage persists trading sessions and the trade journal.
package storage

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// Paging bounds for list queries.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// clampPage normalizes limit and offset for list queries.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// unmarshalJSON decodes a JSON column, logging instead of failing so a
// corrupt field does not hide the rest of the row.
func unmarshalJSON(data string, v any, field, id string) {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		slog.Warn("failed to unmarshal JSON field",
			"field", field,
			"id", id,
			"error", err.Error(),
			"dataLen", len(data))
	}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*ptypes.Session, error) {
	var (
		s          ptypes.Session
		stoppedAt  sql.NullTime
		pacing     string
		status     string
		configJSON sql.NullString
	)
	if err := row.Scan(&s.ID, &s.StartedAt, &stoppedAt, &s.Mint, &pacing, &configJSON, &status); err != nil {
		return nil, err
	}
	s.Pacing = ptypes.Pacing(pacing)
	s.Status = ptypes.TraderStatus(status)
	if stoppedAt.Valid {
		t := stoppedAt.Time
		s.StoppedAt = &t
	}
	if configJSON.Valid && configJSON.String != "" {
		unmarshalJSON(configJSON.String, &s.Config, "config", s.ID)
	}
	return &s, nil
}

func scanTrade(row scanner) (*ptypes.TradeEvent, error) {
	var (
		ev       ptypes.TradeEvent
		side     string
		strategy string
		status   string
		wallet   sql.NullString
		sigsJSON sql.NullString
		errMsg   sql.NullString
		phase    sql.NullString
	)
	err := row.Scan(&ev.SessionID, &side, &wallet, &ev.Amount, &ev.AmountKind, &ev.Price,
		&strategy, &sigsJSON, &ev.Attempts, &status, &errMsg, &ev.LatencyMs,
		&ev.ProgressiveStep, &phase, &ev.Throttled, &ev.Time)
	if err != nil {
		return nil, err
	}
	ev.Side = ptypes.Side(side)
	ev.Strategy = ptypes.Strategy(strategy)
	ev.Status = ptypes.TradeStatus(status)
	ev.Wallet = wallet.String
	ev.Error = errMsg.String
	ev.Phase = phase.String
	if sigsJSON.Valid && sigsJSON.String != "" {
		unmarshalJSON(sigsJSON.String, &ev.Signatures, "signatures", ev.SessionID)
	}
	return &ev, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
