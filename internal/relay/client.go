// Package relay submits signed transactions to a block-engine style relay
// endpoint that forwards them to block producers for a tip.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/gateway-fm/swapgen/internal/rpc"
)

// ErrRejected is returned when the relay answers but does not accept the batch.
var ErrRejected = errors.New("relay rejected submission")

// DefaultURL is the batch submission endpoint used when none is configured.
const DefaultURL = "http://ny.flashblock.trade/api/v2/submit-batch"

// Config holds configuration for the relay client.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond caps outbound submissions. Zero means unlimited.
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// Client posts base64-encoded transactions to the relay.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a relay client.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
	}
}

type submitRequest struct {
	JSONRPC      string   `json:"jsonrpc"`
	ID           int      `json:"id"`
	Method       string   `json:"method"`
	Transactions []string `json:"transactions"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Signatures []string `json:"signatures"`
	} `json:"data"`
}

// Submit sends one batch of base64-encoded transactions and returns the
// signatures the relay accepted.
func (c *Client) Submit(ctx context.Context, txs ...string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(submitRequest{
		JSONRPC:      "3.0",
		ID:           1,
		Method:       "POST",
		Transactions: txs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.ParseFloat(ra, 64); err == nil {
				retryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return nil, &rpc.HTTPStatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Body:       string(errBody),
		}
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Success || len(out.Data.Signatures) == 0 {
		msg := out.Message
		if msg == "" {
			msg = "no signatures returned"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	c.logger.Debug("relay accepted batch",
		slog.Int("transactions", len(txs)),
		slog.Any("signatures", out.Data.Signatures))
	return out.Data.Signatures, nil
}
