// Package sampling decides, per interaction, whether to report it for
// quality scoring. Decisions are made under a base rate and a hard daily
// budget, with an enhanced rate when the agent's recent health is poor.
package sampling

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/enableai/agentmon-go/internal/clock"
)

// WindowDaily resets the sample budget at each calendar-date rollover.
// Any positive duration in Config.Window overrides it with a fixed window.
const WindowDaily = time.Duration(0)

// Config holds sampling configuration.
type Config struct {
	// BaseRate is the probability in [0,1] that an interaction is sampled
	BaseRate float64
	// EnhancedMultiplier scales BaseRate when recent health is below
	// PerformanceThreshold. Must be >= 1; the effective rate is capped at 1.
	EnhancedMultiplier float64
	// PerformanceThreshold is the average score in [0,100] below which
	// enhanced sampling kicks in
	PerformanceThreshold float64
	// MaxDailySamples is the hard per-window budget. 0 means never sample.
	MaxDailySamples int
	// Window is the budget reset period. WindowDaily (zero) means calendar
	// date rollover.
	Window time.Duration
	// Clock supplies the current time (default: system clock)
	Clock clock.Clock
	// Rand draws uniform values in [0,1); defaults to math/rand. Injected
	// by tests for deterministic decisions.
	Rand func() float64
}

// State is a snapshot of the engine's window accounting.
type State struct {
	DailyCount  int
	WindowStart time.Time
}

// Engine makes per-call sampling decisions. It is safe for concurrent use;
// the daily counter and window rollover are guarded by a single mutex so
// the budget can never be exceeded by racing callers.
type Engine struct {
	mu sync.Mutex

	cfg         Config
	dailyCount  int
	windowStart time.Time
}

// New creates a sampling engine, failing fast on malformed configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.BaseRate < 0 || cfg.BaseRate > 1 {
		return nil, fmt.Errorf("sampling rate must be in [0,1], got %v", cfg.BaseRate)
	}
	if cfg.EnhancedMultiplier == 0 {
		cfg.EnhancedMultiplier = 1
	}
	if cfg.EnhancedMultiplier < 1 {
		return nil, fmt.Errorf("enhanced multiplier must be >= 1, got %v", cfg.EnhancedMultiplier)
	}
	if cfg.PerformanceThreshold < 0 || cfg.PerformanceThreshold > 100 {
		return nil, fmt.Errorf("performance threshold must be in [0,100], got %v", cfg.PerformanceThreshold)
	}
	if cfg.MaxDailySamples < 0 {
		return nil, fmt.Errorf("max daily samples must be >= 0, got %d", cfg.MaxDailySamples)
	}
	if cfg.Window < 0 {
		return nil, fmt.Errorf("sampling window must be >= 0, got %v", cfg.Window)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Engine{
		cfg:         cfg,
		windowStart: cfg.Clock.Now(),
	}, nil
}

// Decide returns whether the next interaction should be sampled. avgScore
// is the agent's current rolling average; haveScore is false until the
// first score arrives, in which case the base rate applies.
//
// The daily budget is a hard ceiling: enhanced sampling raises the draw
// probability but never the cap.
func (e *Engine) Decide(avgScore float64, haveScore bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.cfg.Clock.Now()
	e.rollWindowLocked(now)

	if e.dailyCount >= e.cfg.MaxDailySamples {
		return false
	}

	rate := e.cfg.BaseRate
	if haveScore && avgScore < e.cfg.PerformanceThreshold {
		rate *= e.cfg.EnhancedMultiplier
		if rate > 1 {
			rate = 1
		}
	}

	if e.cfg.Rand() >= rate {
		return false
	}

	e.dailyCount++
	return true
}

// State returns the current window accounting.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{DailyCount: e.dailyCount, WindowStart: e.windowStart}
}

// rollWindowLocked resets the counter when the window boundary has been
// crossed. Must be called with the mutex held.
func (e *Engine) rollWindowLocked(now time.Time) {
	if e.cfg.Window == WindowDaily {
		wy, wm, wd := e.windowStart.Date()
		ny, nm, nd := now.Date()
		if wy != ny || wm != nm || wd != nd {
			e.dailyCount = 0
			e.windowStart = now
		}
		return
	}
	if now.Sub(e.windowStart) >= e.cfg.Window {
		e.dailyCount = 0
		e.windowStart = now
	}
}
