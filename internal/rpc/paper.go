package rpc

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ErrPaperDropped is returned when PaperClient simulates a dropped transaction.
var ErrPaperDropped = errors.New("paper: transaction dropped")

// PaperConfig configures a PaperClient.
type PaperConfig struct {
	// Latency is the simulated per-call network delay.
	Latency time.Duration
	// DropRate is the probability in [0, 1) that a send fails.
	DropRate float64
	Rand     *rand.Rand
	Logger   *slog.Logger
}

// PaperClient implements Client without a network. Sends verify the
// transaction signatures and return the first one; nothing is broadcast.
type PaperClient struct {
	latency  time.Duration
	dropRate float64
	logger   *slog.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	slot  uint64
	sends uint64
}

// NewPaperClient creates a dry-run client.
func NewPaperClient(cfg PaperConfig) *PaperClient {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PaperClient{
		latency:  cfg.Latency,
		dropRate: cfg.DropRate,
		logger:   cfg.Logger,
		rng:      cfg.Rand,
	}
}

// LatestBlockhash returns a fresh synthetic blockhash.
func (c *PaperClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Hash{}, err
	}
	c.mu.Lock()
	c.slot++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], c.slot)
	c.mu.Unlock()
	return solana.Hash(sha256.Sum256(buf[:])), nil
}

// Send verifies and records the transaction.
func (c *PaperClient) Send(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("paper: unsigned transaction")
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("paper: %w", err)
	}

	c.mu.Lock()
	drop := c.dropRate > 0 && c.rng.Float64() < c.dropRate
	if !drop {
		c.sends++
	}
	c.mu.Unlock()
	if drop {
		return solana.Signature{}, ErrPaperDropped
	}

	sig := tx.Signatures[0]
	c.logger.Debug("paper transaction accepted",
		slog.String("signature", sig.String()),
		slog.Int("instructions", len(tx.Message.Instructions)),
		slog.Bool("skipPreflight", opts.SkipPreflight))
	return sig, nil
}

// SendAndConfirm behaves like Send; paper transactions confirm immediately.
func (c *PaperClient) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return c.Send(ctx, tx, SendOptions{})
}

// Health always succeeds.
func (c *PaperClient) Health(ctx context.Context) error {
	return ctx.Err()
}

// Sends returns the number of accepted transactions.
func (c *PaperClient) Sends() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

func (c *PaperClient) wait(ctx context.Context) error {
	if c.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
