// Package account manages the pool of funding wallets used for trading.
package account

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Profile is a behavioural archetype assigned to a wallet at creation.
type Profile uint8

const (
	FrequentSeller Profile = iota
	LongTermHolder
	BalancedTrader
	Aggressive
	Conservative
)

// Profiles lists every profile in declaration order.
var Profiles = []Profile{FrequentSeller, LongTermHolder, BalancedTrader, Aggressive, Conservative}

// Traits holds the fixed behaviour parameters of a profile.
type Traits struct {
	SellProbability     float64
	MinHoldHours        int
	MaxHoldHours        int
	AmountMultiplier    float64
	FrequencyMultiplier float64
}

var profileTraits = [...]Traits{
	FrequentSeller: {0.45, 6, 48, 0.8, 0.7},
	LongTermHolder: {0.15, 72, 168, 1.2, 2.0},
	BalancedTrader: {0.30, 24, 96, 1.0, 1.0},
	Aggressive:     {0.35, 4, 24, 1.5, 0.5},
	Conservative:   {0.25, 48, 120, 0.6, 1.5},
}

// Traits returns the behaviour parameters for p.
func (p Profile) Traits() Traits {
	if int(p) >= len(profileTraits) {
		return profileTraits[BalancedTrader]
	}
	return profileTraits[p]
}

func (p Profile) String() string {
	switch p {
	case FrequentSeller:
		return "frequent_seller"
	case LongTermHolder:
		return "long_term_holder"
	case BalancedTrader:
		return "balanced_trader"
	case Aggressive:
		return "aggressive"
	case Conservative:
		return "conservative"
	default:
		return fmt.Sprintf("profile(%d)", uint8(p))
	}
}

// DrawProfile picks a profile with weights 20/15/35/15/15 percent.
func DrawProfile(r *rand.Rand) Profile {
	x := r.Float64()
	switch {
	case x < 0.20:
		return FrequentSeller
	case x < 0.35:
		return LongTermHolder
	case x < 0.70:
		return BalancedTrader
	case x < 0.85:
		return Aggressive
	default:
		return Conservative
	}
}

// Account is a funding wallet and its usage record.
// Key, PublicKey, Profile and CreatedAt never change; the counters and
// timestamps are owned by the Pool and only touched under its lock.
type Account struct {
	Key       solana.PrivateKey
	PublicKey solana.PublicKey
	Profile   Profile
	CreatedAt time.Time

	usage      uint64
	totalBuys  uint64
	totalSells uint64
	lastBuy    time.Time
	lastSell   time.Time
}

// NewAccount creates an account from a private key.
func NewAccount(key solana.PrivateKey, profile Profile, createdAt time.Time) *Account {
	return &Account{
		Key:       key,
		PublicKey: key.PublicKey(),
		Profile:   profile,
		CreatedAt: createdAt,
	}
}

// NewAccountFromBase58 creates an account from a base58-encoded secret key.
func NewAccountFromBase58(encoded string, profile Profile, createdAt time.Time) (*Account, error) {
	key, err := solana.PrivateKeyFromBase58(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return NewAccount(key, profile, createdAt), nil
}

// holdWindow intersects the profile hold window with the global one.
// Crossed bounds collapse to the lower bound.
func (a *Account) holdWindow(globalMin, globalMax int) (int, int) {
	t := a.Profile.Traits()
	lo := max(t.MinHoldHours, globalMin)
	hi := min(t.MaxHoldHours, globalMax)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// NewRand returns a PCG-backed generator. A zero seed draws a random one.
// The result is not safe for concurrent use.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
