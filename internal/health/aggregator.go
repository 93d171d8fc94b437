// Package health aggregates quality scores into a rolling health signal:
// average score, categorical status, and trend direction.
package health

import (
	"fmt"
	"sync"

	"github.com/enableai/agentmon-go/internal/domain"
)

// Status thresholds on the rolling average score.
const (
	// CriticalBelow marks status critical when the average is below it
	CriticalBelow = 60.0
	// WarningBelow marks status warning when the average is below it
	WarningBelow = 75.0
)

// DefaultWindowSize is the number of recent scores kept.
const DefaultWindowSize = 10

// DefaultTrendEpsilon is the minimum half-window mean difference that
// counts as movement rather than noise.
const DefaultTrendEpsilon = 2.0

// Config holds aggregator configuration.
type Config struct {
	// WindowSize is the number of recent scores to keep (default: 10)
	WindowSize int
	// TrendEpsilon is the dead band for trend detection (default: 2.0)
	TrendEpsilon float64
	// MaxIssues bounds the recent issue tag list (default: WindowSize)
	MaxIssues int
}

// Aggregator maintains a rolling window of scores and recomputes the
// health snapshot each time a new score arrives. Safe for concurrent use.
type Aggregator struct {
	mu sync.RWMutex

	cfg      Config
	scores   []float64
	issues   []string
	snapshot domain.HealthSnapshot
}

// New creates a health aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.WindowSize < 0 {
		return nil, fmt.Errorf("window size must be >= 0, got %d", cfg.WindowSize)
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.TrendEpsilon <= 0 {
		cfg.TrendEpsilon = DefaultTrendEpsilon
	}
	if cfg.MaxIssues <= 0 {
		cfg.MaxIssues = cfg.WindowSize
	}
	return &Aggregator{
		cfg:    cfg,
		scores: make([]float64, 0, cfg.WindowSize),
		snapshot: domain.HealthSnapshot{
			Status: domain.StatusHealthy,
			Trend:  domain.TrendStable,
		},
	}, nil
}

// Record adds a score (and optional issue tag) to the window and returns
// the recomputed snapshot.
func (a *Aggregator) Record(score float64, issue string) domain.HealthSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.scores = append(a.scores, score)
	if len(a.scores) > a.cfg.WindowSize {
		a.scores = a.scores[len(a.scores)-a.cfg.WindowSize:]
	}
	if issue != "" && issue != "none" {
		a.issues = append(a.issues, issue)
		if len(a.issues) > a.cfg.MaxIssues {
			a.issues = a.issues[len(a.issues)-a.cfg.MaxIssues:]
		}
	}

	a.snapshot = a.computeLocked()
	return a.cloneLocked()
}

// Snapshot returns the current health snapshot. The returned value is a
// copy; callers cannot mutate aggregator state through it.
func (a *Aggregator) Snapshot() domain.HealthSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cloneLocked()
}

// cloneLocked copies the snapshot so callers cannot alias internal state.
// Must be called with the lock held.
func (a *Aggregator) cloneLocked() domain.HealthSnapshot {
	snap := a.snapshot
	snap.RecentIssues = append([]string(nil), a.snapshot.RecentIssues...)
	return snap
}

// HaveScores reports whether any score has arrived yet.
func (a *Aggregator) HaveScores() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.scores) > 0
}

// computeLocked recomputes the snapshot. Must be called with the lock held.
func (a *Aggregator) computeLocked() domain.HealthSnapshot {
	snap := domain.HealthSnapshot{
		Status:      domain.StatusHealthy,
		Trend:       domain.TrendStable,
		SampleCount: len(a.scores),
	}
	if len(a.scores) == 0 {
		return snap
	}

	snap.AverageScore = mean(a.scores)

	// Trend: compare the older half of the window to the newer half
	recent := snap.AverageScore
	if len(a.scores) >= 2 {
		mid := len(a.scores) / 2
		first := mean(a.scores[:mid])
		second := mean(a.scores[mid:])
		recent = second
		switch {
		case second-first > a.cfg.TrendEpsilon:
			snap.Trend = domain.TrendImproving
		case first-second > a.cfg.TrendEpsilon:
			snap.Trend = domain.TrendDeclining
		}
	}

	switch {
	case snap.AverageScore < CriticalBelow:
		snap.Status = domain.StatusCritical
	case snap.Trend == domain.TrendDeclining && recent < CriticalBelow:
		// A sharp fall into failing scores is critical even while older
		// scores still prop up the window average.
		snap.Status = domain.StatusCritical
	case snap.AverageScore < WarningBelow:
		snap.Status = domain.StatusWarning
	}

	snap.RecentIssues = append([]string(nil), a.issues...)
	return snap
}

func mean(scores []float64) float64 {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
