package pattern

import (
	"math/rand/v2"
	"time"

	"github.com/gateway-fm/swapgen/pkg/types"
)

// Weekly holds one interval multiplier per weekday, Monday first.
type Weekly [7]float64

// NewWeekly draws a weekly curve: weekdays in [0.8, 1.2), weekends in
// [1.2, 1.8) so weekends trade less often.
func NewWeekly(r *rand.Rand) Weekly {
	var w Weekly
	for i := 0; i < 5; i++ {
		w[i] = 0.8 + r.Float64()*0.4
	}
	for i := 5; i < 7; i++ {
		w[i] = 1.2 + r.Float64()*0.6
	}
	return w
}

// Multiplier returns the entry for the weekday of t.
func (w Weekly) Multiplier(t time.Time) float64 {
	// time.Weekday starts at Sunday.
	return w[(int(t.Weekday())+6)%7]
}

// Organic layers a weekly curve and a random daily offset over a Wave.
type Organic struct {
	*Wave
	weekly Weekly
}

// NewOrganic creates an Organic pacer. The hour offset in cfg is replaced
// by a random one in [0, 24).
func NewOrganic(cfg WaveConfig) *Organic {
	if cfg.Rand == nil {
		cfg.Rand = newRand()
	}
	cfg.HourOffset = cfg.Rand.IntN(24)
	weekly := NewWeekly(cfg.Rand)
	return &Organic{
		Wave:   NewWave(cfg),
		weekly: weekly,
	}
}

// Name returns the pacing identifier.
func (o *Organic) Name() types.Pacing {
	return types.PacingOrganic
}

// Interval returns the wave's natural interval scaled by the weekday multiplier.
func (o *Organic) Interval(base time.Duration) time.Duration {
	d := o.Wave.NaturalInterval(base)
	return time.Duration(float64(d) * o.weekly.Multiplier(o.Wave.now()))
}

// Weekly returns the weekday multipliers.
func (o *Organic) Weekly() Weekly {
	return o.weekly
}
