// Package transport provides the HTTP control API handlers.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/swapgen/internal/storage"
	"github.com/gateway-fm/swapgen/internal/pattern"
	"github.com/gateway-fm/swapgen/internal/trader"
	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// validateStartRequest checks the optional overrides of a start request.
func validateStartRequest(req *ptypes.StartRequest) error {
	if req.Pacing != nil && !trader.ValidPacing(*req.Pacing) {
		return fmt.Errorf("invalid pacing: %s (valid: flat, wave, organic)", *req.Pacing)
	}
	if req.BuyStrategy != nil && !trader.ValidStrategy(*req.BuyStrategy) {
		return fmt.Errorf("invalid buyStrategy: %s (valid: standard, fast, urgent, relay)", *req.BuyStrategy)
	}
	if req.SellStrategy != nil && !trader.ValidStrategy(*req.SellStrategy) {
		return fmt.Errorf("invalid sellStrategy: %s (valid: standard, fast, urgent, relay)", *req.SellStrategy)
	}
	return nil
}

// TraderAPI defines the trader operations the handlers need.
type TraderAPI interface {
	Start(ctx context.Context, req ptypes.StartRequest) error
	Stop()
	ResetProgressive()
	ForcePhase(name string) error
	Status() ptypes.StatusResponse
	SubscribeTrades(ch chan<- ptypes.TradeEvent) event.Subscription
}

// WalletAPI exposes the wallet pool.
type WalletAPI interface {
	Summary() ptypes.WalletsResponse
	ResetUsage()
}

// JournalAPI is the read side of the trade journal.
type JournalAPI interface {
	GetSession(ctx context.Context, id string) (*ptypes.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]ptypes.Session, error)
	ListTrades(ctx context.Context, sessionID string, limit, offset int) (*ptypes.TradesResponse, error)
	SessionSummary(ctx context.Context, sessionID string) (*ptypes.SessionSummary, error)
}

// HealthChecker defines the interface for health checking.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Trader  TraderAPI
	Wallets WalletAPI
	// Journal is optional; history routes answer 503 without it.
	Journal JournalAPI
	Health  HealthChecker
	// Gatherer backs /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer
	// BaseContext outlives requests and is handed to Trader.Start.
	BaseContext context.Context
	// CORSAllowedOrigins is a comma separated list; empty or "*" allows all.
	CORSAllowedOrigins string
	// StatusInterval is the websocket status push period (default 1s).
	StatusInterval time.Duration
	Logger         *slog.Logger
}

// Server handles HTTP requests for the trader.
type Server struct {
	trader    TraderAPI
	wallets   WalletAPI
	journal   JournalAPI
	health    HealthChecker
	gatherer  prometheus.Gatherer
	baseCtx   context.Context
	logger    *slog.Logger
	startTime time.Time
	wsServer  *WebSocketServer

	corsAllowedOrigins []string
	corsAllowAll       bool
}

// NewServer creates a new HTTP server and starts its websocket broadcaster.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	wsServer := NewWebSocketServer(cfg.Trader, cfg.StatusInterval, logger)
	wsServer.Start()

	s := &Server{
		trader:    cfg.Trader,
		wallets:   cfg.Wallets,
		journal:   cfg.Journal,
		health:    cfg.Health,
		gatherer:  cfg.Gatherer,
		baseCtx:   cfg.BaseContext,
		logger:    logger,
		startTime: time.Now(),
		wsServer:  wsServer,
	}

	origins := strings.TrimSpace(cfg.CORSAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		s.corsAllowedOrigins = strings.Split(origins, ",")
		for i, o := range s.corsAllowedOrigins {
			s.corsAllowedOrigins[i] = strings.TrimSpace(o)
		}
	}
	return s
}

// Close stops the websocket broadcaster and disconnects clients.
func (s *Server) Close() {
	s.wsServer.Stop()
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/v1/start", s.corsMiddleware(s.handleStart))
	mux.HandleFunc("/v1/stop", s.corsMiddleware(s.handleStop))
	mux.HandleFunc("/v1/reset", s.corsMiddleware(s.handleReset))
	mux.HandleFunc("/v1/reset-usage", s.corsMiddleware(s.handleResetUsage))
	mux.HandleFunc("/v1/phase", s.corsMiddleware(s.handlePhase))
	mux.HandleFunc("/v1/wallets", s.corsMiddleware(s.handleWallets))
	mux.HandleFunc("/v1/trades", s.corsMiddleware(s.handleTrades))
	mux.HandleFunc("/v1/sessions", s.corsMiddleware(s.handleSessions))
	mux.HandleFunc("/v1/sessions/", s.corsMiddleware(s.handleSessionDetail))
	mux.HandleFunc("/v1/ws", s.wsServer.Handler())

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeJSONError writes a JSON error response.
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ptypes.ErrorResponse{Error: message})
}

// handleStatus returns the trader status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.trader.Status())
}

// handleStart starts trading. An empty body starts with the current config.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ptypes.StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := validateStartRequest(&req); err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	// The request context ends with the response; the loops must not.
	if err := s.trader.Start(s.baseCtx, req); err != nil {
		switch {
		case errors.Is(err, trader.ErrAlreadyRunning):
			s.writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, trader.ErrInvalidConfig):
			s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		default:
			s.logger.Error("failed to start trading", slog.String("error", err.Error()))
			s.writeJSONError(w, "Failed to start trading: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	st := s.trader.Status()
	s.writeJSON(w, map[string]string{"status": "started", "sessionId": st.SessionID})
}

// handleStop stops trading. Stopping an idle trader is not an error.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.trader.Stop()
	s.writeJSON(w, map[string]string{"status": "stopped"})
}

// handleReset zeroes the progressive counters.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.trader.ResetProgressive()
	s.writeJSON(w, map[string]string{"status": "reset"})
}

// handleResetUsage zeroes the wallet selection counters.
func (s *Server) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.wallets.ResetUsage()
	s.writeJSON(w, map[string]string{"status": "reset"})
}

// handlePhase forces the volume wave into the requested phase.
func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ptypes.PhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.trader.ForcePhase(req.Phase); err != nil {
		switch {
		case errors.Is(err, pattern.ErrUnknownPhase):
			s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		case errors.Is(err, trader.ErrNoPhases):
			s.writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			s.writeJSONError(w, "Failed to force phase: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	s.writeJSON(w, map[string]string{"status": "forced", "phase": req.Phase})
}

// handleWallets returns the wallet pool view.
func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.wallets.Summary())
}

// pagination parses limit and offset query parameters.
func pagination(r *http.Request, defLimit, maxLimit int) (int, int) {
	limit, offset := defLimit, 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxLimit {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

func (s *Server) requireJournal(w http.ResponseWriter) bool {
	if s.journal == nil {
		s.writeJSONError(w, "Journal not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// handleTrades returns journaled trades, optionally for one session.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.requireJournal(w) {
		return
	}

	limit, offset := pagination(r, 100, 1000)
	resp, err := s.journal.ListTrades(r.Context(), r.URL.Query().Get("session"), limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to list trades: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, resp)
}

// handleSessions returns recorded sessions, newest first.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.requireJournal(w) {
		return
	}

	limit, offset := pagination(r, 50, 100)
	sessions, err := s.journal.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to list sessions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, sessions)
}

// SessionDetail is the response for GET /v1/sessions/{id}.
type SessionDetail struct {
	Session ptypes.Session         `json:"session"`
	Summary *ptypes.SessionSummary `json:"summary"`
}

// handleSessionDetail handles /v1/sessions/{id}.
func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.requireJournal(w) {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions/"), "/")
	if id == "" {
		s.writeJSONError(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	session, err := s.journal.GetSession(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeJSONError(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeJSONError(w, "Failed to get session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	summary, err := s.journal.SessionSummary(r.Context(), id)
	if err != nil {
		s.writeJSONError(w, "Failed to summarize session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, SessionDetail{Session: *session, Summary: summary})
}

// handleHealth handles liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

// ReadinessCheck represents a single readiness check result.
type ReadinessCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "ok" or "failed"
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleReady handles readiness probes against the Solana RPC node.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := []ReadinessCheck{}
	allHealthy := true

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		start := time.Now()
		err := s.health.Health(ctx)
		cancel()

		check := ReadinessCheck{
			Name:      "solana-rpc",
			Status:    "ok",
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			check.Status = "failed"
			check.Error = err.Error()
			allHealthy = false
		}
		checks = append(checks, check)
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"ready":  allHealthy,
		"checks": checks,
	})
}
