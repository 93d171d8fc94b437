// Package agentmon wraps an arbitrary inference function with quality
// monitoring and self-healing: adaptive sampling under a daily budget,
// batched best-effort reporting, a rolling health signal, and a two-phase
// scan/heal cycle. The wrapped response path is hermetically isolated from
// every monitoring failure.
package agentmon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enableai/agentmon-go/internal/batch"
	"github.com/enableai/agentmon-go/internal/clock"
	"github.com/enableai/agentmon-go/internal/domain"
	"github.com/enableai/agentmon-go/internal/healing"
	"github.com/enableai/agentmon-go/internal/health"
	"github.com/enableai/agentmon-go/internal/observability"
	"github.com/enableai/agentmon-go/internal/report"
	"github.com/enableai/agentmon-go/internal/sampling"
	"github.com/enableai/agentmon-go/pkg/client"
)

// Public aliases for the data model consumed through snapshots and state
// queries.
type (
	// Interaction is one wrapped inference call
	Interaction = domain.Interaction
	// HealthSnapshot is the rolling health signal
	HealthSnapshot = domain.HealthSnapshot
	// HealingState tracks the scan/heal cycle
	HealingState = domain.HealingState
)

// Healing state values.
const (
	HealingNotFlagged = domain.HealingNotFlagged
	HealingFlagged    = domain.HealingFlagged
	HealingInProgress = domain.HealingInProgress
	HealingHealed     = domain.HealingHealed
	HealingFailed     = domain.HealingFailed
)

// ErrInvalidHealingState is logged (never surfaced to callers) when a heal
// would have been attempted without a valid flag.
var ErrInvalidHealingState = healing.ErrInvalidState

// Backend is the backend client surface the monitor depends on.
// *client.Client satisfies it; tests substitute fakes.
type Backend interface {
	report.Backend
	healing.Backend
}

// Monitor wraps one agent's inference function. Each Monitor owns an
// independent sampling state, health window, and healing state; nothing is
// shared process-wide. Safe for concurrent callers.
type Monitor struct {
	cfg     Config
	backend Backend
	logger  *slog.Logger
	metrics *observability.Metrics
	clk     clock.Clock

	engine   *sampling.Engine
	buffer   *batch.Buffer
	reporter *report.Reporter
	healthA  *health.Aggregator
	healer   *healing.Orchestrator

	promptMu       sync.RWMutex
	systemPrompt   string
	lastSuggestion string

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a monitored agent. Malformed configuration fails fast here;
// nothing after construction returns configuration errors.
func New(cfg Config) (*Monitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("agent_id", cfg.AgentID)

	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}

	backend := cfg.Backend
	if backend == nil {
		c, err := client.New(client.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Retry:   cfg.Retry,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		backend = c
	}

	var metrics *observability.Metrics
	if cfg.Registerer != nil {
		var err error
		metrics, err = observability.New(cfg.Registerer, cfg.AgentID)
		if err != nil {
			return nil, err
		}
	}

	m := &Monitor{
		cfg:          cfg,
		backend:      backend,
		logger:       logger,
		metrics:      metrics,
		clk:          clk,
		systemPrompt: cfg.SystemPrompt,
	}

	if m.samplingActive() {
		window, _ := cfg.windowDuration()
		engine, err := sampling.New(sampling.Config{
			BaseRate:             cfg.SamplingRate,
			EnhancedMultiplier:   cfg.EnhancedMultiplier,
			PerformanceThreshold: cfg.PerformanceThreshold,
			MaxDailySamples:      cfg.MaxDailySamples,
			Window:               window,
			Clock:                clk,
		})
		if err != nil {
			return nil, err
		}
		m.engine = engine
	}

	healthA, err := health.New(health.Config{WindowSize: cfg.HealthWindow})
	if err != nil {
		return nil, err
	}
	m.healthA = healthA

	reporter, err := report.New(report.Config{
		AgentID:       cfg.AgentID,
		Tool:          cfg.Tool,
		UseCase:       cfg.UseCase,
		Async:         cfg.ReportAsync,
		QueueSize:     cfg.QueueSize,
		SubmitTimeout: cfg.SubmitTimeout,
		OnResult:      m.handleResult,
		Backend:       backend,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}
	m.reporter = reporter

	if cfg.BatchSize > 1 {
		buffer, err := batch.New(batch.Config{
			BatchSize:    cfg.BatchSize,
			IdleTimeout:  cfg.BatchIdleTimeout,
			MaxRetries:   cfg.BatchMaxRetries,
			Sender:       reporter,
			Clock:        clk,
			Logger:       logger,
			Metrics:      metrics,
		})
		if err != nil {
			return nil, err
		}
		m.buffer = buffer
	}

	healer, err := healing.New(healing.Config{
		AgentID:           cfg.AgentID,
		Strategy:          cfg.strategy(),
		RecoveryThreshold: cfg.PerformanceThreshold,
		Cooldown:          cfg.HealingCooldown,
		FlagTTL:           cfg.FlagTTL,
		ApplyPrompt:       m.applyPrompt,
		OnSuggestion:      m.recordSuggestion,
		Backend:           backend,
		Clock:             clk,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return nil, err
	}
	m.healer = healer

	logger.Info("agent monitor initialized",
		"sampling", m.samplingActive(), "async", cfg.ReportAsync,
		"batch_size", cfg.BatchSize, "strategy", cfg.strategy())
	return m, nil
}

// GenerateResponse invokes the inference function and monitors the
// interaction. The response is always returned to the caller first:
// inference errors pass through unchanged, and no monitoring failure or
// latency is observable on the response path when async reporting is on.
func (m *Monitor) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	response, err := m.cfg.Infer(ctx, prompt)
	latency := time.Since(start)
	if err != nil {
		return "", err
	}

	m.metrics.Interaction()

	it := domain.Interaction{
		ID:        uuid.NewString(),
		AgentID:   m.cfg.AgentID,
		Prompt:    prompt,
		Response:  response,
		Latency:   latency,
		Timestamp: m.clk.Now(),
		Sampled:   m.decideSample(),
	}

	if it.Sampled {
		m.metrics.Sampled()
		if m.buffer != nil {
			m.buffer.Append(ctx, it)
		} else {
			// Best effort: the reporter logs failures, we never surface them
			_ = m.reporter.Submit(ctx, it)
		}
	}

	return response, nil
}

// Health returns the current rolling health snapshot.
func (m *Monitor) Health() HealthSnapshot {
	return m.healthA.Snapshot()
}

// HealingState returns where the agent is in the scan/heal cycle.
func (m *Monitor) HealingState() HealingState {
	return m.healer.State()
}

// SystemPrompt returns the agent's current prompt, including any prompt
// applied by auto healing.
func (m *Monitor) SystemPrompt() string {
	m.promptMu.RLock()
	defer m.promptMu.RUnlock()
	return m.systemPrompt
}

// LastSuggestion returns the most recent heal recommendation received
// under the suggest strategy, or "" if none arrived yet.
func (m *Monitor) LastSuggestion() string {
	m.promptMu.RLock()
	defer m.promptMu.RUnlock()
	return m.lastSuggestion
}

// Close force-flushes any buffered batch as a single best-effort attempt,
// drains the async reporter, and waits for in-flight healing signals. Safe
// to call more than once.
func (m *Monitor) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		if m.buffer != nil {
			m.buffer.Flush(ctx)
			m.buffer.Close()
		}
		err = m.reporter.Close(ctx)

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	})
	return err
}

// samplingActive reports whether the sampling engine is consulted at all.
// Disabled sampling and a rate of 1.0 both mean full monitoring, bypassing
// the engine.
func (m *Monitor) samplingActive() bool {
	return m.cfg.EnableSampling && m.cfg.SamplingRate < 1.0
}

func (m *Monitor) decideSample() bool {
	if m.engine == nil {
		return true
	}
	snap := m.healthA.Snapshot()
	return m.engine.Decide(snap.AverageScore, m.healthA.HaveScores())
}

// handleResult feeds each returned score into the health window and
// signals the healing orchestrator off the response path.
func (m *Monitor) handleResult(it domain.Interaction, res client.FeedbackResult) {
	snap := m.healthA.Record(res.Score, res.Issue)
	m.logger.Debug("score recorded",
		"interaction_id", it.ID, "score", res.Score,
		"average", snap.AverageScore, "status", snap.Status)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		m.healer.Evaluate(ctx, snap)
	}()
}

func (m *Monitor) applyPrompt(prompt string) {
	m.promptMu.Lock()
	m.systemPrompt = prompt
	m.promptMu.Unlock()
	m.logger.Info("system prompt updated by self-healing")
}

func (m *Monitor) recordSuggestion(suggestion string) {
	m.promptMu.Lock()
	m.lastSuggestion = suggestion
	m.promptMu.Unlock()
	if m.cfg.OnSuggestion != nil {
		m.cfg.OnSuggestion(suggestion)
	}
}
