// Package healing drives the two-phase self-healing cycle: a scan that may
// flag the agent server-side, then a heal that is attempted only while the
// agent is validly flagged. The local state check before every heal is the
// component's core correctness contract.
package healing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/enableai/agentmon-go/internal/clock"
	"github.com/enableai/agentmon-go/internal/domain"
	"github.com/enableai/agentmon-go/internal/observability"
	"github.com/enableai/agentmon-go/pkg/client"
)

// ErrInvalidState is logged (never surfaced) when a heal would have been
// attempted without a valid flag.
var ErrInvalidState = errors.New("heal attempted without a valid flag")

// Backend is the slice of the backend client the orchestrator needs.
type Backend interface {
	TriggerScan(ctx context.Context) (*client.ScanResult, error)
	GetHealingStatus(ctx context.Context, agentID string) (*client.HealingStatus, error)
	HealAgent(ctx context.Context, agentID, strategy string) (*client.HealResult, error)
}

// Config holds orchestrator configuration.
type Config struct {
	// AgentID is the agent this orchestrator owns state for. Required.
	AgentID string
	// Strategy is "auto" (apply the improved prompt) or "suggest"
	// (recommendation only). Default: "suggest".
	Strategy string
	// RecoveryThreshold is the average score at or above which a healed
	// agent re-arms once the cool-down elapses (default: 75)
	RecoveryThreshold float64
	// Cooldown is the minimum time after a successful heal before the
	// agent can be re-flagged (default: 5m)
	Cooldown time.Duration
	// FlagTTL is how long a locally cached flag is trusted before the
	// backend flag state is re-queried prior to healing (default: 1m)
	FlagTTL time.Duration
	// ApplyPrompt receives the improved prompt under strategy "auto"
	ApplyPrompt func(prompt string)
	// OnSuggestion receives the recommendation under strategy "suggest"
	OnSuggestion func(suggestion string)
	// Backend performs scan/status/heal calls. Required.
	Backend Backend
	// Clock supplies the current time (default: system clock)
	Clock clock.Clock
	// Logger receives cycle outcomes; defaults to slog.Default()
	Logger *slog.Logger
	// Metrics records cycles and heal outcomes
	Metrics *observability.Metrics
}

// Orchestrator owns the healing state for one agent. At most one heal
// cycle is in flight at a time; concurrent triggers collapse into it via
// a weighted semaphore with a single slot.
type Orchestrator struct {
	cfg Config

	mu        sync.Mutex
	state     domain.HealingState
	flaggedAt time.Time
	healedAt  time.Time

	inflight *semaphore.Weighted
}

// New creates a healing orchestrator in the NotFlagged state.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("healing backend is required")
	}
	switch cfg.Strategy {
	case "":
		cfg.Strategy = client.StrategySuggest
	case client.StrategyAuto, client.StrategySuggest:
	default:
		return nil, fmt.Errorf("unknown healing strategy %q", cfg.Strategy)
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = 75
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.FlagTTL <= 0 {
		cfg.FlagTTL = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "healing", "agent_id", cfg.AgentID)

	return &Orchestrator{
		cfg:      cfg,
		state:    domain.HealingNotFlagged,
		inflight: semaphore.NewWeighted(1),
	}, nil
}

// State returns the current healing state.
func (o *Orchestrator) State() domain.HealingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Evaluate runs one re-evaluation against the latest health snapshot. It
// is safe to call concurrently: only one cycle runs at a time and extra
// triggers return immediately. Errors are handled internally; Evaluate
// never panics or propagates backend failures.
func (o *Orchestrator) Evaluate(ctx context.Context, snap domain.HealthSnapshot) {
	o.rearm(snap)

	if !snap.Status.NeedsAttention() {
		return
	}
	if !o.inflight.TryAcquire(1) {
		// A cycle is already in flight; collapse into it
		return
	}
	defer o.inflight.Release(1)

	o.cfg.Metrics.HealCycle()
	o.runCycle(ctx, snap)
}

// rearm moves Healed back to NotFlagged once health has recovered above
// the threshold and the cool-down has elapsed.
func (o *Orchestrator) rearm(snap domain.HealthSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != domain.HealingHealed {
		return
	}
	if snap.AverageScore >= o.cfg.RecoveryThreshold &&
		o.cfg.Clock.Now().Sub(o.healedAt) >= o.cfg.Cooldown {
		o.cfg.Logger.Info("health recovered, re-arming healing cycle",
			"average_score", snap.AverageScore)
		o.state = domain.HealingNotFlagged
	}
}

// runCycle performs one scan-then-heal pass. The semaphore guarantees a
// single caller, so state reads here cannot race another cycle; the mutex
// still guards each transition against readers.
func (o *Orchestrator) runCycle(ctx context.Context, snap domain.HealthSnapshot) {
	switch o.State() {
	case domain.HealingNotFlagged, domain.HealingFailed:
		// Phase one: ask the backend to scan. A failed heal is retried
		// only through a fresh qualifying scan, never immediately.
		if !o.scan(ctx) {
			return
		}
	case domain.HealingFlagged:
		// Carry on to heal, refreshing a stale flag first
		if !o.confirmFlag(ctx) {
			return
		}
	default:
		// Healed (cooling down) or mid-heal: nothing to do
		return
	}

	o.heal(ctx)
}

// scan triggers a backend scan and adopts the flag if this agent was
// marked. Returns true when the local state advanced to Flagged.
func (o *Orchestrator) scan(ctx context.Context) bool {
	result, err := o.cfg.Backend.TriggerScan(ctx)
	if err != nil {
		o.cfg.Logger.Warn("healing scan failed", "error", err)
		return false
	}
	if !result.Flagged(o.cfg.AgentID) {
		o.cfg.Logger.Debug("scan did not flag agent",
			"agents_scanned", result.TotalAgentsScanned)
		return false
	}

	o.mu.Lock()
	o.state = domain.HealingFlagged
	o.flaggedAt = o.cfg.Clock.Now()
	o.mu.Unlock()
	o.cfg.Logger.Info("agent flagged for healing")
	return true
}

// confirmFlag re-checks the backend flag when the local cache is stale.
// Returns true when the flag still stands.
func (o *Orchestrator) confirmFlag(ctx context.Context) bool {
	o.mu.Lock()
	fresh := o.cfg.Clock.Now().Sub(o.flaggedAt) <= o.cfg.FlagTTL
	o.mu.Unlock()
	if fresh {
		return true
	}

	status, err := o.cfg.Backend.GetHealingStatus(ctx, o.cfg.AgentID)
	if err != nil {
		o.cfg.Logger.Warn("flag state re-query failed", "error", err)
		return false
	}
	if !status.HealingRecommended {
		o.mu.Lock()
		o.state = domain.HealingNotFlagged
		o.mu.Unlock()
		o.cfg.Logger.Info("stale flag cleared by backend, skipping heal")
		return false
	}

	o.mu.Lock()
	o.flaggedAt = o.cfg.Clock.Now()
	o.mu.Unlock()
	return true
}

// heal performs phase two. The flag check immediately before transition is
// the invariant: heal is never sent unless the local state is Flagged.
func (o *Orchestrator) heal(ctx context.Context) {
	o.mu.Lock()
	if o.state != domain.HealingFlagged {
		o.mu.Unlock()
		o.cfg.Logger.Error("heal skipped", "error", ErrInvalidState, "state", o.state)
		return
	}
	o.state = domain.HealingInProgress
	o.mu.Unlock()

	result, err := o.cfg.Backend.HealAgent(ctx, o.cfg.AgentID, o.cfg.Strategy)
	if err != nil {
		// Includes backend invalid-state rejections from races: caught,
		// logged, and absorbed. Retry happens on the next scan cycle.
		o.setState(domain.HealingFailed)
		o.cfg.Metrics.HealResult("failed")
		o.cfg.Logger.Error("heal failed", "strategy", o.cfg.Strategy, "error", err)
		return
	}

	switch o.cfg.Strategy {
	case client.StrategyAuto:
		if result.AppliedPrompt != "" && o.cfg.ApplyPrompt != nil {
			o.cfg.ApplyPrompt(result.AppliedPrompt)
		}
		o.cfg.Metrics.HealResult("healed")
		o.cfg.Logger.Info("heal applied", "prompt_updated", result.PromptUpdated)
	case client.StrategySuggest:
		if result.Suggestion != "" && o.cfg.OnSuggestion != nil {
			o.cfg.OnSuggestion(result.Suggestion)
		}
		o.cfg.Metrics.HealResult("suggested")
		o.cfg.Logger.Info("heal suggestion received")
	}

	o.mu.Lock()
	o.state = domain.HealingHealed
	o.healedAt = o.cfg.Clock.Now()
	o.mu.Unlock()
}

func (o *Orchestrator) setState(s domain.HealingState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}
