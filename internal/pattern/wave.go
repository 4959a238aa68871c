package pattern

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gateway-fm/swapgen/pkg/types"
)

// Phase is a volume wave phase.
type Phase uint8

const (
	Active Phase = iota
	Slow
	Burst
	Dormant
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case Slow:
		return "slow"
	case Burst:
		return "burst"
	case Dormant:
		return "dormant"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// ErrUnknownPhase is returned by ParsePhase.
var ErrUnknownPhase = errors.New("unknown phase")

// ParsePhase converts a phase name back to a Phase.
func ParsePhase(s string) (Phase, error) {
	for _, p := range []Phase{Active, Slow, Burst, Dormant} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// Fixed dwell times of the short phases.
const (
	BurstDuration   = 15 * time.Minute
	DormantDuration = time.Hour

	DefaultActiveDuration = 2 * time.Hour
	DefaultSlowDuration   = time.Hour
)

// Multipliers scale interval (Frequency) and size (Amount) per phase.
// A Frequency above 1 means longer intervals.
type Multipliers struct {
	Frequency float64
	Amount    float64
}

// PhaseMultipliers holds one Multipliers entry per phase.
type PhaseMultipliers [4]Multipliers

// DefaultMultipliers are the stock per-phase multipliers.
var DefaultMultipliers = PhaseMultipliers{
	Active:  {Frequency: 1.0, Amount: 1.0},
	Slow:    {Frequency: 2.5, Amount: 0.7},
	Burst:   {Frequency: 0.3, Amount: 1.5},
	Dormant: {Frequency: 4.0, Amount: 0.3},
}

// hourMultiplier maps hour of day to an interval multiplier.
var hourMultiplier = [24]float64{
	1.5, 1.5, 1.5, 1.5, 1.5, 1.5, // 0-5
	0.8, 0.8, 0.8, 0.8, // 6-9
	1.2, 1.2, // 10-11
	0.9, 0.9, 0.9, // 12-14
	0.7, 0.7, 0.7, // 15-17
	1.1, 1.1, 1.1, // 18-20
	1.3, 1.3, 1.3, // 21-23
}

// WaveConfig configures a Wave.
type WaveConfig struct {
	ActiveDuration time.Duration
	SlowDuration   time.Duration
	// HourOffset shifts the hour-of-day curve.
	HourOffset int
	Rand       *rand.Rand
	Now        func() time.Time
	Logger     *slog.Logger
}

// Wave cycles through activity phases. Transitions are evaluated lazily:
// each CurrentPhase call fires at most one transition once the dwell time
// of the current phase has elapsed. Safe for concurrent use.
type Wave struct {
	activeDuration time.Duration
	slowDuration   time.Duration
	hourOffset     int
	now            func() time.Time
	logger         *slog.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	phase       Phase
	phaseStart  time.Time
	multipliers PhaseMultipliers
}

// NewWave creates a Wave starting in Active with probability 0.6, else Slow.
func NewWave(cfg WaveConfig) *Wave {
	if cfg.ActiveDuration <= 0 {
		cfg.ActiveDuration = DefaultActiveDuration
	}
	if cfg.SlowDuration <= 0 {
		cfg.SlowDuration = DefaultSlowDuration
	}
	if cfg.Rand == nil {
		cfg.Rand = newRand()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &Wave{
		activeDuration: cfg.ActiveDuration,
		slowDuration:   cfg.SlowDuration,
		hourOffset:     ((cfg.HourOffset % 24) + 24) % 24,
		now:            cfg.Now,
		logger:         cfg.Logger,
		rng:            cfg.Rand,
		phase:          Slow,
		phaseStart:     cfg.Now(),
		multipliers:    DefaultMultipliers,
	}
	if w.rng.Float64() < 0.6 {
		w.phase = Active
	}
	return w
}

// Name returns the pacing identifier.
func (w *Wave) Name() types.Pacing {
	return types.PacingWave
}

func (w *Wave) dwell(p Phase) time.Duration {
	switch p {
	case Active:
		return w.activeDuration
	case Slow:
		return w.slowDuration
	case Burst:
		return BurstDuration
	default:
		return DormantDuration
	}
}

// CurrentPhase returns the current phase, first advancing it if its dwell
// time has elapsed.
func (w *Wave) CurrentPhase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceLocked()
	return w.phase
}

func (w *Wave) advanceLocked() {
	now := w.now()
	if now.Sub(w.phaseStart) < w.dwell(w.phase) {
		return
	}

	prev := w.phase
	switch w.phase {
	case Active:
		if w.rng.Float64() < 0.15 {
			w.phase = Burst
		} else {
			w.phase = Slow
		}
	case Slow:
		if w.rng.Float64() < 0.10 {
			w.phase = Dormant
		} else {
			w.phase = Active
		}
	case Burst:
		w.phase = Slow
	case Dormant:
		w.phase = Active
	}
	w.phaseStart = now

	w.logger.Info("volume wave phase changed",
		slog.String("from", prev.String()),
		slog.String("to", w.phase.String()),
		slog.Duration("dwell", w.dwell(w.phase)))
}

// FrequencyMultiplier returns the interval multiplier of the current phase.
func (w *Wave) FrequencyMultiplier() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceLocked()
	return w.multipliers[w.phase].Frequency
}

// AmountMultiplier returns the size multiplier of the current phase.
func (w *Wave) AmountMultiplier() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceLocked()
	return w.multipliers[w.phase].Amount
}

// Interval implements Pacer.
func (w *Wave) Interval(base time.Duration) time.Duration {
	return w.NaturalInterval(base)
}

// NaturalInterval scales base by the phase frequency multiplier, the
// hour-of-day curve and a uniform variation in [0.8, 1.2).
func (w *Wave) NaturalInterval(base time.Duration) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceLocked()

	hour := (w.now().Hour() + w.hourOffset) % 24
	variation := 0.8 + w.rng.Float64()*0.4
	factor := w.multipliers[w.phase].Frequency * hourMultiplier[hour] * variation
	return time.Duration(float64(base) * factor)
}

// Info describes the current phase without advancing it.
func (w *Wave) Info() *types.WaveInfo {
	w.mu.Lock()
	defer w.mu.Unlock()

	in := w.now().Sub(w.phaseStart)
	remaining := max(w.dwell(w.phase)-in, 0)
	m := w.multipliers[w.phase]
	return &types.WaveInfo{
		Phase:               w.phase.String(),
		InPhase:             in,
		Remaining:           remaining,
		FrequencyMultiplier: m.Frequency,
		AmountMultiplier:    m.Amount,
	}
}

// SetMultipliers replaces the per-phase multipliers.
func (w *Wave) SetMultipliers(m PhaseMultipliers) {
	w.mu.Lock()
	w.multipliers = m
	w.mu.Unlock()
	w.logger.Info("volume wave multipliers updated")
}

// ForcePhase switches to p and restarts its dwell timer.
func (w *Wave) ForcePhase(p Phase) {
	if p > Dormant {
		return
	}
	w.mu.Lock()
	prev := w.phase
	w.phase = p
	w.phaseStart = w.now()
	w.mu.Unlock()
	w.logger.Info("volume wave phase forced",
		slog.String("from", prev.String()),
		slog.String("to", p.String()))
}
