// Package pattern shapes trade pacing: volume waves, organic daily and weekly
// curves, and a flat baseline.
package pattern

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/gateway-fm/swapgen/pkg/types"
)

// Pacer turns a base interval into the interval to actually wait.
type Pacer interface {
	// Name returns the pacing identifier.
	Name() types.Pacing

	// Interval scales a base interval for the current moment.
	Interval(base time.Duration) time.Duration

	// AmountMultiplier scales trade sizes for the current moment.
	AmountMultiplier() float64

	// Info describes the wave state, or nil when the pacer has none.
	Info() *types.WaveInfo
}

// Config holds pacer configuration.
type Config struct {
	ActiveDuration time.Duration
	SlowDuration   time.Duration
	Rand           *rand.Rand
	Now            func() time.Time
	Logger         *slog.Logger
}

func (c Config) waveConfig() WaveConfig {
	return WaveConfig{
		ActiveDuration: c.ActiveDuration,
		SlowDuration:   c.SlowDuration,
		Rand:           c.Rand,
		Now:            c.Now,
		Logger:         c.Logger,
	}
}

// Registry manages pacer lookup by name.
type Registry struct {
	pacers map[types.Pacing]func(Config) Pacer
}

// NewRegistry creates a registry with all built-in pacers.
func NewRegistry() *Registry {
	r := &Registry{
		pacers: make(map[types.Pacing]func(Config) Pacer),
	}

	r.Register(types.PacingFlat, func(Config) Pacer {
		return Flat{}
	})
	r.Register(types.PacingWave, func(cfg Config) Pacer {
		return NewWave(cfg.waveConfig())
	})
	r.Register(types.PacingOrganic, func(cfg Config) Pacer {
		return NewOrganic(cfg.waveConfig())
	})

	return r
}

// Register adds a pacer factory to the registry.
func (r *Registry) Register(name types.Pacing, factory func(Config) Pacer) {
	r.pacers[name] = factory
}

// Get returns a pacer instance for the given name and config.
func (r *Registry) Get(name types.Pacing, cfg Config) (Pacer, error) {
	factory, ok := r.pacers[name]
	if !ok {
		return nil, fmt.Errorf("unknown pacing: %s", name)
	}
	return factory(cfg), nil
}

// Flat leaves intervals and amounts unchanged.
type Flat struct{}

// Name returns the pacing identifier.
func (Flat) Name() types.Pacing { return types.PacingFlat }

// Interval returns base unchanged.
func (Flat) Interval(base time.Duration) time.Duration { return base }

// AmountMultiplier always returns 1.
func (Flat) AmountMultiplier() float64 { return 1.0 }

// Info returns nil.
func (Flat) Info() *types.WaveInfo { return nil }

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
