// Package rpc provides the Solana JSON-RPC capability used for delivery.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// ErrConfirmTimeout is returned when a sent transaction is not confirmed in time.
var ErrConfirmTimeout = errors.New("confirmation timed out")

// SendOptions controls how a transaction is submitted.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment solrpc.CommitmentType
	// MaxRetries is the node-side rebroadcast limit. Nil leaves it to the node.
	MaxRetries *uint
}

// Client is the blockchain capability needed to deliver transactions.
type Client interface {
	// LatestBlockhash returns a recent blockhash for signing.
	LatestBlockhash(ctx context.Context) (solana.Hash, error)

	// Send submits a signed transaction without waiting for confirmation.
	Send(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error)

	// SendAndConfirm submits a signed transaction and waits for confirmation.
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// Health checks node health.
	Health(ctx context.Context) error
}

// ClientConfig holds configuration for the RPC client.
type ClientConfig struct {
	URL string
	// Headers are added to every request, e.g. provider API keys.
	Headers        map[string]string
	Timeout        time.Duration
	Commitment     solrpc.CommitmentType
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Logger         *slog.Logger
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:            url,
		Timeout:        10 * time.Second,
		Commitment:     solrpc.CommitmentConfirmed,
		ConfirmTimeout: 60 * time.Second,
		PollInterval:   500 * time.Millisecond,
	}
}

// SolanaClient implements Client on top of solana-go.
type SolanaClient struct {
	rpc            *solrpc.Client
	timeout        time.Duration
	commitment     solrpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
}

// NewSolanaClient creates a new Solana RPC client.
func NewSolanaClient(cfg ClientConfig) *SolanaClient {
	defaults := DefaultClientConfig(cfg.URL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Commitment == "" {
		cfg.Commitment = defaults.Commitment
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaults.ConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	headers := cfg.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	return &SolanaClient{
		rpc:            solrpc.NewWithHeaders(cfg.URL, headers),
		timeout:        cfg.Timeout,
		commitment:     cfg.Commitment,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		logger:         logger,
	}
}

// LatestBlockhash returns the latest blockhash at the client commitment.
func (c *SolanaClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", wrapError(err))
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, errors.New("get latest blockhash: empty result")
	}
	return res.Value.Blockhash, nil
}

// Send submits a signed transaction.
func (c *SolanaClient) Send(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, solrpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.PreflightCommitment,
		MaxRetries:          opts.MaxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", wrapError(err))
	}
	return sig, nil
}

// SendAndConfirm submits with preflight and polls signature status until the
// client commitment is reached, the transaction fails, or the confirm
// timeout elapses.
func (c *SolanaClient) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.Send(ctx, tx, SendOptions{PreflightCommitment: c.commitment})
	if err != nil {
		return sig, err
	}
	if err := c.waitConfirmed(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (c *SolanaClient) waitConfirmed(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Debug("signature status poll failed",
				slog.String("signature", sig.String()),
				slog.String("error", err.Error()))
		} else if res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, st.Err)
			}
			if reached(st.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
		case <-ticker.C:
		}
	}
	return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
}

// reached reports whether status satisfies the wanted commitment.
func reached(status solrpc.ConfirmationStatusType, want solrpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		default:
			return 0
		}
	}
	got := rank(string(status))
	return got > 0 && got >= rank(string(want))
}

// Health checks the node health endpoint.
func (c *SolanaClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("get health: %w", wrapError(err))
	}
	if status != solrpc.HealthOk {
		return fmt.Errorf("node unhealthy: %s", status)
	}
	return nil
}

// Close releases the underlying transport.
func (c *SolanaClient) Close() error {
	return c.rpc.Close()
}

// wrapError converts solana-go JSON-RPC errors into RPCError.
func wrapError(err error) error {
	var jerr *jsonrpc.RPCError
	if errors.As(err, &jerr) {
		return &RPCError{Code: jerr.Code, Message: jerr.Message}
	}
	return err
}
