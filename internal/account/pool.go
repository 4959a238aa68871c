package account

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

var (
	// ErrNoWallets is returned when a pool would be created without wallets.
	ErrNoWallets = errors.New("no wallets loaded")
	// ErrNoEligibleWallet is returned when no wallet has held long enough to sell.
	ErrNoEligibleWallet = errors.New("no wallet eligible for selling")
	// ErrUnknownWallet is returned when a public key is not in the pool.
	ErrUnknownWallet = errors.New("wallet not in pool")
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Rand is the randomness source. Defaults to a randomly seeded PCG.
	Rand *rand.Rand
	// Now returns the current time. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Pool is a fixed set of funding wallets with usage-balanced selection and
// hold-time gated selling. Safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	accounts []*Account
	byKey    map[solana.PublicKey]*Account
	rng      *rand.Rand
	now      func() time.Time
	logger   *slog.Logger
}

// NewPool creates a pool over the given accounts.
func NewPool(accounts []*Account, cfg PoolConfig) (*Pool, error) {
	if len(accounts) == 0 {
		return nil, ErrNoWallets
	}
	if cfg.Rand == nil {
		cfg.Rand = NewRand(0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	byKey := make(map[solana.PublicKey]*Account, len(accounts))
	for _, a := range accounts {
		byKey[a.PublicKey] = a
	}

	return &Pool{
		accounts: accounts,
		byKey:    byKey,
		rng:      cfg.Rand,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}, nil
}

// NewPoolFromKeys creates a pool assigning each key a randomly drawn profile.
func NewPoolFromKeys(keys []solana.PrivateKey, cfg PoolConfig) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrNoWallets
	}
	if cfg.Rand == nil {
		cfg.Rand = NewRand(0)
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	created := now()
	accounts := make([]*Account, len(keys))
	for i, k := range keys {
		accounts[i] = NewAccount(k, DrawProfile(cfg.Rand), created)
	}
	return NewPool(accounts, cfg)
}

// Len returns the number of wallets in the pool.
func (p *Pool) Len() int {
	return len(p.accounts)
}

// Default returns the first wallet loaded, used as the payer when hold-time
// eligibility is bypassed.
func (p *Pool) Default() *Account {
	return p.accounts[0]
}

// SelectForTrade picks a wallet, favouring the least used ones, and counts
// the selection. Weights are max_usage+1-usage; equal usage picks uniformly.
func (p *Pool) SelectForTrade() *Account {
	p.mu.Lock()
	defer p.mu.Unlock()

	minU, maxU := p.usageBoundsLocked()

	var picked *Account
	if minU == maxU {
		picked = p.accounts[p.rng.IntN(len(p.accounts))]
	} else {
		var total uint64
		for _, a := range p.accounts {
			total += maxU + 1 - a.usage
		}
		x := p.rng.Uint64N(total)
		for _, a := range p.accounts {
			w := maxU + 1 - a.usage
			if x < w {
				picked = a
				break
			}
			x -= w
		}
		if picked == nil {
			picked = p.accounts[0]
		}
	}

	picked.usage++
	return picked
}

// SelectForSell picks a random wallet among those whose hold time is met and
// records the sell on it. The required hold is drawn per check from the
// intersection of the wallet profile window and [minHours, maxHours].
func (p *Pool) SelectForSell(minHours, maxHours int) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	eligible := make([]*Account, 0, len(p.accounts))
	for _, a := range p.accounts {
		if p.canSellLocked(a, now, minHours, maxHours) {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleWallet
	}

	p.rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	a := eligible[0]
	a.usage++
	a.totalSells++
	a.lastSell = now
	return a, nil
}

// CanSell reports whether the wallet currently meets its hold requirement.
// The required hold is redrawn on every call.
func (p *Pool) CanSell(pub solana.PublicKey, minHours, maxHours int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.byKey[pub]
	if !ok {
		return false
	}
	return p.canSellLocked(a, p.now(), minHours, maxHours)
}

func (p *Pool) canSellLocked(a *Account, now time.Time, minHours, maxHours int) bool {
	if a.lastBuy.IsZero() {
		return false
	}
	lo, hi := a.holdWindow(minHours, maxHours)
	required := lo + p.rng.IntN(hi-lo+1)
	held := int(now.Sub(a.lastBuy) / time.Hour)
	return held >= required
}

// RecordBuy marks a successful buy by the wallet.
func (p *Pool) RecordBuy(pub solana.PublicKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.byKey[pub]
	if !ok {
		return ErrUnknownWallet
	}
	a.lastBuy = p.now()
	a.usage++
	a.totalBuys++
	return nil
}

// RecordSell marks a sell by the wallet.
func (p *Pool) RecordSell(pub solana.PublicKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.byKey[pub]
	if !ok {
		return ErrUnknownWallet
	}
	a.lastSell = p.now()
	a.usage++
	a.totalSells++
	return nil
}

// ResetUsage zeroes every selection counter.
func (p *Pool) ResetUsage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts {
		a.usage = 0
	}
	p.logger.Info("wallet usage counters reset", slog.Int("wallets", len(p.accounts)))
}

// UsageStats aggregates the selection counters.
func (p *Pool) UsageStats() ptypes.UsageStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	minU, maxU := p.usageBoundsLocked()
	s := ptypes.UsageStats{
		Wallets:  len(p.accounts),
		MinUsage: minU,
		MaxUsage: maxU,
	}
	for _, a := range p.accounts {
		s.TotalUsage += a.usage
		s.TotalBuys += a.totalBuys
		s.TotalSells += a.totalSells
	}
	s.AvgUsage = float64(s.TotalUsage) / float64(len(p.accounts))
	return s
}

// ProfileStats counts wallets per profile.
func (p *Pool) ProfileStats() map[Profile]int {
	counts := make(map[Profile]int, len(Profiles))
	for _, a := range p.accounts {
		counts[a.Profile]++
	}
	return counts
}

// Summary returns the usage aggregate, profile counts and every wallet.
func (p *Pool) Summary() ptypes.WalletsResponse {
	profiles := make(map[string]int, len(Profiles))
	for prof, n := range p.ProfileStats() {
		profiles[prof.String()] = n
	}
	return ptypes.WalletsResponse{
		Usage:    p.UsageStats(),
		Profiles: profiles,
		Wallets:  p.Snapshot(),
	}
}

// LeastUsed returns up to n wallets ordered by ascending usage.
func (p *Pool) LeastUsed(n int) []ptypes.WalletInfo {
	all := p.Snapshot()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Usage < all[j].Usage })
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// Snapshot returns the public view of every wallet.
func (p *Pool) Snapshot() []ptypes.WalletInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ptypes.WalletInfo, len(p.accounts))
	for i, a := range p.accounts {
		out[i] = ptypes.WalletInfo{
			PublicKey:  a.PublicKey.String(),
			Profile:    a.Profile.String(),
			Usage:      a.usage,
			TotalBuys:  a.totalBuys,
			TotalSells: a.totalSells,
			LastBuy:    timePtr(a.lastBuy),
			LastSell:   timePtr(a.lastSell),
			CreatedAt:  a.CreatedAt,
		}
	}
	return out
}

func (p *Pool) usageBoundsLocked() (uint64, uint64) {
	minU, maxU := p.accounts[0].usage, p.accounts[0].usage
	for _, a := range p.accounts[1:] {
		minU = min(minU, a.usage)
		maxU = max(maxU, a.usage)
	}
	return minU, maxU
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
