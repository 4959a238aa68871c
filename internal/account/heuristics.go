package account

import (
	"time"

	"github.com/shopspring/decimal"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// MinInterval is the floor applied to generated intervals.
const MinInterval = time.Second

// ratioWindow is how many recent trades the buy ratio guard looks at.
const ratioWindow = 10

// GenerateInterval scales base by a heavy-tailed random factor:
// 70% in [0.5, 2), 20% in [2, 5), 10% in [5, 10), then jitter of +-10%.
func (p *Pool) GenerateInterval(base time.Duration) time.Duration {
	p.mu.Lock()
	x, r, jitter := p.rng.Float64(), p.rng.Float64(), p.rng.Float64()
	p.mu.Unlock()

	var factor float64
	switch {
	case x < 0.7:
		factor = 0.5 + r*1.5
	case x < 0.9:
		factor = 2 + r*3
	default:
		factor = 5 + r*5
	}
	factor *= 0.9 + jitter*0.2

	d := time.Duration(float64(base) * factor)
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// GenerateAmount draws an amount in [lo, hi] skewed towards small values:
// 60% from the lowest 40% of the range, 30% from the middle 40%, 10% from
// the top 20%. The result is rounded to 3 decimal places.
func (p *Pool) GenerateAmount(lo, hi float64) float64 {
	p.mu.Lock()
	x, r := p.rng.Float64(), p.rng.Float64()
	p.mu.Unlock()

	span := hi - lo
	var v float64
	switch {
	case x < 0.6:
		v = lo + span*0.4*r
	case x < 0.9:
		v = lo + span*(0.4+0.4*r)
	default:
		v = lo + span*(0.8+0.2*r)
	}
	return decimal.NewFromFloat(v).Round(3).InexactFloat64()
}

// ShouldBuyNext decides whether the next trade should be a buy, nudging the
// observed buy ratio of the last trades towards target. recent is ordered
// oldest first; an empty history always buys.
func (p *Pool) ShouldBuyNext(recent []ptypes.Side, target float64) bool {
	if len(recent) == 0 {
		return true
	}
	if len(recent) > ratioWindow {
		recent = recent[len(recent)-ratioWindow:]
	}

	buys := 0
	for _, s := range recent {
		if s == ptypes.SideBuy {
			buys++
		}
	}
	ratio := float64(buys) / float64(len(recent))

	prob := target
	switch {
	case ratio < target:
		prob = target + 0.1
	case ratio > target+0.1:
		prob = target - 0.2
	}
	prob = min(max(prob, 0), 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < prob
}
