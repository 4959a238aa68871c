package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteJournal opens (creating if needed) the journal database at dbPath.
func NewSQLiteJournal(dbPath string, logger *slog.Logger) (*SQLiteJournal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets the HTTP readers query while the recorder writes.
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_cache_size=10000&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	j := &SQLiteJournal{db: db, logger: logger}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		stopped_at DATETIME,
		mint TEXT NOT NULL,
		pacing TEXT NOT NULL,
		config TEXT,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		side TEXT NOT NULL,
		wallet TEXT,
		amount REAL NOT NULL,
		amount_kind TEXT NOT NULL,
		price REAL DEFAULT 0,
		strategy TEXT NOT NULL,
		signatures TEXT,
		attempts INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		latency_ms INTEGER DEFAULT 0,
		progressive_step INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_trades_session ON trades(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the first schema; applied to older databases.
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"trades", "phase", "ALTER TABLE trades ADD COLUMN phase TEXT"},
		{"trades", "throttled", "ALTER TABLE trades ADD COLUMN throttled INTEGER DEFAULT 0"},
	}
	for _, m := range migrations {
		if j.columnExists(m.table, m.column) {
			continue
		}
		if _, err := j.db.Exec(m.ddl); err != nil {
			j.logger.Warn("migration failed",
				slog.String("table", m.table),
				slog.String("column", m.column),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// columnExists reports whether table has column. Identifiers are checked
// before being interpolated into the pragma query.
func (j *SQLiteJournal) columnExists(table, column string) bool {
	if !isValidIdentifier(table) || !isValidIdentifier(column) {
		return false
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = '%s'", table, column)
	var count int
	if err := j.db.QueryRow(query).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// isValidIdentifier allows only ASCII letters, digits and underscore.
func isValidIdentifier(s string) bool {
	if len(s) == 0 || len(s) > 128 {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// CreateSession stores a new session record.
func (j *SQLiteJournal) CreateSession(ctx context.Context, s *ptypes.Session) error {
	configJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, stopped_at, mint, pacing, config, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.StartedAt, nil, s.Mint, string(s.Pacing), string(configJSON), string(s.Status))
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// CompleteSession sets the stop time and final status of a session.
func (j *SQLiteJournal) CompleteSession(ctx context.Context, id string, stoppedAt time.Time, status ptypes.TraderStatus) error {
	res, err := j.db.ExecContext(ctx,
		"UPDATE sessions SET stopped_at = ?, status = ? WHERE id = ?",
		nullTime(stoppedAt), string(status), id)
	if err != nil {
		return fmt.Errorf("failed to complete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession returns one session by id.
func (j *SQLiteJournal) GetSession(ctx context.Context, id string) (*ptypes.Session, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, started_at, stopped_at, mint, pacing, config, status
		FROM sessions WHERE id = ?
	`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, err
}

// ListSessions returns sessions newest first.
func (j *SQLiteJournal) ListSessions(ctx context.Context, limit, offset int) ([]ptypes.Session, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, stopped_at, mint, pacing, config, status
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []ptypes.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// InsertTrade appends one trade event to the journal.
func (j *SQLiteJournal) InsertTrade(ctx context.Context, ev ptypes.TradeEvent) error {
	var sigs sql.NullString
	if len(ev.Signatures) > 0 {
		b, err := json.Marshal(ev.Signatures)
		if err != nil {
			return fmt.Errorf("failed to marshal signatures: %w", err)
		}
		sigs = sql.NullString{String: string(b), Valid: true}
	}
	created := ev.Time
	if created.IsZero() {
		created = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (session_id, side, wallet, amount, amount_kind, price, strategy,
			signatures, attempts, status, error, latency_ms, progressive_step, phase, throttled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.SessionID, string(ev.Side), nullString(ev.Wallet), ev.Amount, ev.AmountKind, ev.Price,
		string(ev.Strategy), sigs, ev.Attempts, string(ev.Status), nullString(ev.Error),
		ev.LatencyMs, ev.ProgressiveStep, nullString(ev.Phase), ev.Throttled, created)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ListTrades returns a page of trades, newest first. An empty sessionID
// lists trades across all sessions.
func (j *SQLiteJournal) ListTrades(ctx context.Context, sessionID string, limit, offset int) (*ptypes.TradesResponse, error) {
	limit, offset = clampPage(limit, offset)

	where, args := "", []any{}
	if sessionID != "" {
		where, args = "WHERE session_id = ?", append(args, sessionID)
	}

	var total int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id, side, wallet, amount, amount_kind, COALESCE(price, 0), strategy,
			signatures, COALESCE(attempts, 0), status, error, COALESCE(latency_ms, 0),
			COALESCE(progressive_step, 0), phase, COALESCE(throttled, 0), created_at
		FROM trades `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &ptypes.TradesResponse{Trades: []ptypes.TradeEvent{}, Total: total}
	for rows.Next() {
		ev, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		resp.Trades = append(resp.Trades, *ev)
	}
	return resp, rows.Err()
}

// SessionSummary aggregates the trades of one session. Buys and sells count
// delivered trades only; skipped attempts are not counted as failures.
func (j *SQLiteJournal) SessionSummary(ctx context.Context, sessionID string) (*ptypes.SessionSummary, error) {
	if _, err := j.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	sum := &ptypes.SessionSummary{SessionID: sessionID}
	err := j.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN side = 'buy' AND status = 'sent' THEN 1 END),
			COUNT(CASE WHEN side = 'sell' AND status = 'sent' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			COALESCE(AVG(CASE WHEN status = 'sent' THEN latency_ms END), 0),
			COALESCE(SUM(CASE WHEN side = 'buy' AND status = 'sent' THEN amount END), 0)
		FROM trades WHERE session_id = ?
	`, sessionID).Scan(&sum.Buys, &sum.Sells, &sum.Failed, &sum.AvgLatency, &sum.BuyVolume)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize session %s: %w", sessionID, err)
	}
	return sum, nil
}
