package pattern

import (
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/gateway-fm/swapgen/pkg/types"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Monday 2024-01-01 16:00 UTC: hour multiplier 0.7.
var monday = time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)

func newTestWave(seed uint64, c *clock) *Wave {
	return NewWave(WaveConfig{
		ActiveDuration: 2 * time.Hour,
		SlowDuration:   time.Hour,
		Rand:           rand.New(rand.NewPCG(seed, seed)),
		Now:            c.Now,
		Logger:         quietLogger(),
	})
}

func TestWave_InitialPhaseDistribution(t *testing.T) {
	c := &clock{t: monday}
	samples := 5000
	active := 0
	for i := 0; i < samples; i++ {
		w := newTestWave(uint64(i+1), c)
		switch w.CurrentPhase() {
		case Active:
			active++
		case Slow:
		default:
			t.Fatalf("initial phase %s, want active or slow", w.CurrentPhase())
		}
	}
	if got := float64(active) / float64(samples); math.Abs(got-0.6) > 0.03 {
		t.Errorf("initial active share = %.3f, want ~0.6", got)
	}
}

func TestWave_OneTransitionPerCall(t *testing.T) {
	c := &clock{t: monday}
	w := newTestWave(1, c)
	w.ForcePhase(Burst)

	// Far beyond every dwell: still only one step, Burst -> Slow.
	c.Advance(48 * time.Hour)
	if got := w.CurrentPhase(); got != Slow {
		t.Fatalf("after burst dwell: phase %s, want slow", got)
	}
	// The new phase starts now, so nothing fires until its dwell elapses.
	if got := w.CurrentPhase(); got != Slow {
		t.Errorf("second call advanced again: phase %s", got)
	}
}

func TestWave_DeterministicTransitions(t *testing.T) {
	tests := []struct {
		from  Phase
		dwell time.Duration
		want  Phase
	}{
		{Burst, BurstDuration, Slow},
		{Dormant, DormantDuration, Active},
	}
	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			c := &clock{t: monday}
			w := newTestWave(3, c)
			w.ForcePhase(tt.from)

			c.Advance(tt.dwell - time.Second)
			if got := w.CurrentPhase(); got != tt.from {
				t.Fatalf("before dwell: phase %s, want %s", got, tt.from)
			}
			c.Advance(time.Second)
			if got := w.CurrentPhase(); got != tt.want {
				t.Errorf("after dwell: phase %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWave_RandomTransitionShares(t *testing.T) {
	tests := []struct {
		from     Phase
		dwell    time.Duration
		rare     Phase
		common   Phase
		rareProb float64
	}{
		{Active, 2 * time.Hour, Burst, Slow, 0.15},
		{Slow, time.Hour, Dormant, Active, 0.10},
	}
	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			c := &clock{t: monday}
			w := newTestWave(11, c)
			samples := 5000
			rare := 0
			for i := 0; i < samples; i++ {
				w.ForcePhase(tt.from)
				c.Advance(tt.dwell)
				switch w.CurrentPhase() {
				case tt.rare:
					rare++
				case tt.common:
				default:
					t.Fatalf("unexpected transition from %s", tt.from)
				}
			}
			if got := float64(rare) / float64(samples); math.Abs(got-tt.rareProb) > 0.02 {
				t.Errorf("%s -> %s share = %.3f, want ~%.2f", tt.from, tt.rare, got, tt.rareProb)
			}
		})
	}
}

func TestWave_Multipliers(t *testing.T) {
	c := &clock{t: monday}
	w := newTestWave(5, c)

	tests := []struct {
		phase     Phase
		frequency float64
		amount    float64
	}{
		{Active, 1.0, 1.0},
		{Slow, 2.5, 0.7},
		{Burst, 0.3, 1.5},
		{Dormant, 4.0, 0.3},
	}
	for _, tt := range tests {
		w.ForcePhase(tt.phase)
		if got := w.FrequencyMultiplier(); got != tt.frequency {
			t.Errorf("%s frequency = %v, want %v", tt.phase, got, tt.frequency)
		}
		if got := w.AmountMultiplier(); got != tt.amount {
			t.Errorf("%s amount = %v, want %v", tt.phase, got, tt.amount)
		}
	}

	custom := DefaultMultipliers
	custom[Active] = Multipliers{Frequency: 0.5, Amount: 2}
	w.SetMultipliers(custom)
	w.ForcePhase(Active)
	if got := w.AmountMultiplier(); got != 2 {
		t.Errorf("custom active amount = %v, want 2", got)
	}
}

func TestWave_NaturalInterval(t *testing.T) {
	c := &clock{t: monday}
	w := newTestWave(9, c)
	w.ForcePhase(Slow)

	base := 10 * time.Second
	// slow 2.5 x hour 16 -> 0.7 x [0.8, 1.2)
	lo := time.Duration(float64(base) * 2.5 * 0.7 * 0.8)
	hi := time.Duration(float64(base) * 2.5 * 0.7 * 1.2)
	for i := 0; i < 1000; i++ {
		d := w.NaturalInterval(base)
		if d < lo || d >= hi {
			t.Fatalf("NaturalInterval = %v, want [%v, %v)", d, lo, hi)
		}
	}
}

func TestWave_HourOfDayCurve(t *testing.T) {
	tests := []struct {
		hour int
		want float64
	}{
		{0, 1.5}, {5, 1.5}, {6, 0.8}, {9, 0.8}, {10, 1.2}, {11, 1.2},
		{12, 0.9}, {14, 0.9}, {15, 0.7}, {17, 0.7}, {18, 1.1}, {20, 1.1},
		{21, 1.3}, {23, 1.3},
	}
	for _, tt := range tests {
		if got := hourMultiplier[tt.hour]; got != tt.want {
			t.Errorf("hour %d multiplier = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestWave_Info(t *testing.T) {
	c := &clock{t: monday}
	w := newTestWave(2, c)
	w.ForcePhase(Burst)
	c.Advance(5 * time.Minute)

	info := w.Info()
	if info.Phase != "burst" {
		t.Errorf("Info().Phase = %s, want burst", info.Phase)
	}
	if info.InPhase != 5*time.Minute || info.Remaining != 10*time.Minute {
		t.Errorf("Info() in=%v remaining=%v, want 5m/10m", info.InPhase, info.Remaining)
	}
	if info.FrequencyMultiplier != 0.3 || info.AmountMultiplier != 1.5 {
		t.Errorf("Info() multipliers = %v/%v", info.FrequencyMultiplier, info.AmountMultiplier)
	}
}

func TestWeekly(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for n := 0; n < 100; n++ {
		w := NewWeekly(r)
		for i := 0; i < 5; i++ {
			if w[i] < 0.8 || w[i] >= 1.2 {
				t.Fatalf("weekday %d multiplier %v outside [0.8, 1.2)", i, w[i])
			}
		}
		for i := 5; i < 7; i++ {
			if w[i] < 1.2 || w[i] >= 1.8 {
				t.Fatalf("weekend %d multiplier %v outside [1.2, 1.8)", i, w[i])
			}
		}
	}

	w := Weekly{1, 2, 3, 4, 5, 6, 7}
	if got := w.Multiplier(monday); got != 1 {
		t.Errorf("Monday multiplier = %v, want 1", got)
	}
	if got := w.Multiplier(monday.AddDate(0, 0, 6)); got != 7 {
		t.Errorf("Sunday multiplier = %v, want 7", got)
	}
}

func TestOrganic_Interval(t *testing.T) {
	c := &clock{t: monday}
	o := NewOrganic(WaveConfig{Rand: rand.New(rand.NewPCG(4, 4)), Now: c.Now, Logger: quietLogger()})
	if o.Name() != types.PacingOrganic {
		t.Errorf("Name() = %s", o.Name())
	}

	base := time.Minute
	// Widest possible bounds: burst 0.3 .. dormant 4.0, hour 0.7 .. 1.5,
	// variation 0.8 .. 1.2, weekday 0.8 .. 1.2.
	lo := time.Duration(float64(base) * 0.3 * 0.7 * 0.8 * 0.8)
	hi := time.Duration(float64(base) * 4.0 * 1.5 * 1.2 * 1.2)
	for i := 0; i < 500; i++ {
		d := o.Interval(base)
		if d < lo || d > hi {
			t.Fatalf("Organic interval %v outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	cfg := Config{Rand: rand.New(rand.NewPCG(1, 1)), Now: (&clock{t: monday}).Now, Logger: quietLogger()}

	for _, name := range []types.Pacing{types.PacingFlat, types.PacingWave, types.PacingOrganic} {
		p, err := r.Get(name, cfg)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("Get(%s).Name() = %s", name, p.Name())
		}
	}

	if _, err := r.Get("bogus", cfg); err == nil {
		t.Error("Get(bogus) should fail")
	}

	flat, _ := r.Get(types.PacingFlat, cfg)
	if flat.Interval(time.Second) != time.Second || flat.AmountMultiplier() != 1 || flat.Info() != nil {
		t.Error("flat pacer must not alter anything")
	}
}
