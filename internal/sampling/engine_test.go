package sampling

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/enableai/agentmon-go/internal/clock"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg:  Config{BaseRate: 0.1, EnhancedMultiplier: 2, PerformanceThreshold: 70, MaxDailySamples: 100},
		},
		{
			name:    "rate above one",
			cfg:     Config{BaseRate: 1.5, MaxDailySamples: 10},
			wantErr: true,
		},
		{
			name:    "negative rate",
			cfg:     Config{BaseRate: -0.1, MaxDailySamples: 10},
			wantErr: true,
		},
		{
			name:    "multiplier below one",
			cfg:     Config{BaseRate: 0.1, EnhancedMultiplier: 0.5, MaxDailySamples: 10},
			wantErr: true,
		},
		{
			name:    "threshold above range",
			cfg:     Config{BaseRate: 0.1, PerformanceThreshold: 150, MaxDailySamples: 10},
			wantErr: true,
		},
		{
			name:    "negative budget",
			cfg:     Config{BaseRate: 0.1, MaxDailySamples: -1},
			wantErr: true,
		},
		{
			name: "zero budget is valid and means never sample",
			cfg:  Config{BaseRate: 0.5, MaxDailySamples: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_ZeroBudgetNeverSamples(t *testing.T) {
	e, err := New(Config{
		BaseRate:        1.0,
		MaxDailySamples: 0,
		Rand:            func() float64 { return 0 },
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if e.Decide(0, false) {
			t.Fatal("sampled despite zero budget")
		}
	}
}

func TestEngine_DailyCapIsHardCeiling(t *testing.T) {
	// Every draw passes the 5% rate check, so without the cap all 1000
	// calls would sample. The budget must stop the count at exactly 40.
	e, err := New(Config{
		BaseRate:        0.05,
		MaxDailySamples: 40,
		Rand:            func() float64 { return 0.01 },
	})
	if err != nil {
		t.Fatal(err)
	}

	sampled := 0
	for i := 0; i < 1000; i++ {
		if e.Decide(0, false) {
			sampled++
		}
	}
	if sampled != 40 {
		t.Errorf("sampled = %d, want exactly 40", sampled)
	}
	if got := e.State().DailyCount; got != 40 {
		t.Errorf("daily count = %d, want 40", got)
	}
}

func TestEngine_SampledFractionConvergesToRate(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const rate = 0.2
	const trials = 20000

	e, err := New(Config{
		BaseRate:        rate,
		MaxDailySamples: trials,
		Rand:            rng.Float64,
	})
	if err != nil {
		t.Fatal(err)
	}

	sampled := 0
	for i := 0; i < trials; i++ {
		if e.Decide(0, false) {
			sampled++
		}
	}

	observed := float64(sampled) / trials
	// ~6 standard deviations of tolerance for a binomial at this size
	tolerance := 6 * math.Sqrt(rate*(1-rate)/trials)
	if math.Abs(observed-rate) > tolerance {
		t.Errorf("observed fraction %v not within %v of %v", observed, tolerance, rate)
	}
}

func TestEngine_EnhancedRateBelowThreshold(t *testing.T) {
	var draw float64
	e, err := New(Config{
		BaseRate:             0.3,
		EnhancedMultiplier:   2,
		PerformanceThreshold: 70,
		MaxDailySamples:      1000,
		Rand:                 func() float64 { return draw },
	})
	if err != nil {
		t.Fatal(err)
	}

	// Draw between base and enhanced rate: only enhanced sampling takes it
	draw = 0.45
	if e.Decide(90, true) {
		t.Error("sampled at base rate with draw above it")
	}
	if !e.Decide(50, true) {
		t.Error("not sampled at enhanced rate with qualifying draw")
	}
	// Without any score yet the base rate applies
	if e.Decide(0, false) {
		t.Error("enhanced rate applied before the first score arrived")
	}
}

func TestEngine_EnhancedRateCappedAtOne(t *testing.T) {
	e, err := New(Config{
		BaseRate:             0.9,
		EnhancedMultiplier:   5,
		PerformanceThreshold: 70,
		MaxDailySamples:      10,
		Rand:                 func() float64 { return 0.999 },
	})
	if err != nil {
		t.Fatal(err)
	}
	// Effective rate is min(0.9*5, 1.0) = 1.0, so even the highest draw samples
	if !e.Decide(10, true) {
		t.Error("draw below capped rate 1.0 was not sampled")
	}
}

func TestEngine_DailyWindowRollover(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 8, 29, 23, 50, 0, 0, time.UTC))
	e, err := New(Config{
		BaseRate:        1.0,
		MaxDailySamples: 2,
		Window:          WindowDaily,
		Clock:           fake,
		Rand:            func() float64 { return 0 },
	})
	if err != nil {
		t.Fatal(err)
	}

	if !e.Decide(0, false) || !e.Decide(0, false) {
		t.Fatal("expected first two calls to sample")
	}
	if e.Decide(0, false) {
		t.Fatal("budget exhausted but still sampled")
	}

	// Cross midnight: the new date resets the budget
	fake.Advance(20 * time.Minute)
	if !e.Decide(0, false) {
		t.Error("budget did not reset at date rollover")
	}
	if got := e.State().DailyCount; got != 1 {
		t.Errorf("daily count after rollover = %d, want 1", got)
	}
}

func TestEngine_DurationWindowRollover(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	e, err := New(Config{
		BaseRate:        1.0,
		MaxDailySamples: 1,
		Window:          time.Hour,
		Clock:           fake,
		Rand:            func() float64 { return 0 },
	})
	if err != nil {
		t.Fatal(err)
	}

	if !e.Decide(0, false) {
		t.Fatal("first call should sample")
	}
	fake.Advance(30 * time.Minute)
	if e.Decide(0, false) {
		t.Fatal("sampled mid-window with exhausted budget")
	}
	fake.Advance(31 * time.Minute)
	if !e.Decide(0, false) {
		t.Error("budget did not reset after the window elapsed")
	}
}

func TestEngine_ConcurrentCallersNeverExceedBudget(t *testing.T) {
	const budget = 50
	e, err := New(Config{
		BaseRate:        1.0,
		MaxDailySamples: budget,
		Rand:            func() float64 { return 0 },
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	sampled := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := 0
			for i := 0; i < 100; i++ {
				if e.Decide(0, false) {
					local++
				}
			}
			mu.Lock()
			sampled += local
			mu.Unlock()
		}()
	}
	wg.Wait()

	if sampled != budget {
		t.Errorf("sampled = %d, want exactly %d", sampled, budget)
	}
}
