// Package report submits sampled interactions to the scoring backend,
// either synchronously on the caller's goroutine or asynchronously through
// a bounded queue drained by a single consumer. Reporting is best-effort
// relative to the served response: transport failures are logged and
// counted, never propagated to the wrapped caller.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/enableai/agentmon-go/internal/domain"
	"github.com/enableai/agentmon-go/internal/observability"
	"github.com/enableai/agentmon-go/pkg/client"
)

// Backend is the slice of the backend client the reporter needs.
type Backend interface {
	SubmitFeedback(ctx context.Context, req client.FeedbackRequest) (*client.FeedbackResult, error)
	SubmitFeedbackBatch(ctx context.Context, reqs []client.FeedbackRequest) ([]client.FeedbackResult, error)
}

// Config holds reporter configuration.
type Config struct {
	// AgentID, Tool, and UseCase are stamped on every feedback request
	AgentID string
	Tool    string
	UseCase string
	// Async enqueues submissions to a background worker instead of
	// blocking the caller
	Async bool
	// QueueSize bounds the async queue (default: 64). A full queue drops
	// the report rather than blocking the hot path.
	QueueSize int
	// SubmitTimeout bounds each backend exchange (default: 10s)
	SubmitTimeout time.Duration
	// OnResult is invoked for every score that comes back. Called from
	// the worker goroutine in async mode.
	OnResult func(domain.Interaction, client.FeedbackResult)
	// Backend performs the submissions. Required.
	Backend Backend
	// Logger receives submission failures; defaults to slog.Default()
	Logger *slog.Logger
	// Metrics records submissions, failures, and drops
	Metrics *observability.Metrics
}

// job is one unit of work for the async worker: either a single
// interaction or a whole batch.
type job struct {
	single *domain.Interaction
	batch  []domain.Interaction
}

// Reporter submits interactions for quality scoring. One Reporter serves
// one agent; its single consumer goroutine preserves per-agent submission
// order. Cross-agent ordering is not coordinated.
type Reporter struct {
	cfg   Config
	queue chan job

	mu     sync.RWMutex
	closed bool

	done chan struct{}
}

// New creates a reporter and, in async mode, starts its worker.
func New(cfg Config) (*Reporter, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("reporter backend is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "reporter", "agent_id", cfg.AgentID)

	r := &Reporter{
		cfg:  cfg,
		done: make(chan struct{}),
	}
	if cfg.Async {
		r.queue = make(chan job, cfg.QueueSize)
		go r.drain()
	} else {
		close(r.done)
	}
	return r, nil
}

// Submit reports a single interaction. In async mode it enqueues and
// returns immediately; a full queue drops the report. In sync mode it
// blocks for up to SubmitTimeout plus the client's retry policy. The
// returned error is informational; callers on the response path must not
// propagate it.
func (r *Reporter) Submit(ctx context.Context, it domain.Interaction) error {
	if r.cfg.Async {
		return r.enqueue(job{single: &it})
	}
	return r.submitOne(ctx, it)
}

// SendBatch reports a whole batch. Implements the batch buffer's Sender.
// In async mode the batch is enqueued as one unit to preserve ordering
// relative to single submissions.
func (r *Reporter) SendBatch(ctx context.Context, batch []domain.Interaction) error {
	if r.cfg.Async {
		return r.enqueue(job{batch: batch})
	}
	return r.submitBatch(ctx, batch)
}

// QueueLen returns the current async queue depth (0 in sync mode).
func (r *Reporter) QueueLen() int {
	if r.queue == nil {
		return 0
	}
	return len(r.queue)
}

// Close stops intake and drains the queue. It returns once the worker has
// finished or the context expires, whichever comes first.
func (r *Reporter) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.queue != nil {
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reporter drain interrupted: %w", ctx.Err())
	}
}

func (r *Reporter) enqueue(j job) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.cfg.Metrics.ReportDropped()
		return fmt.Errorf("reporter is closed")
	}
	select {
	case r.queue <- j:
		r.cfg.Metrics.SetQueueLength(len(r.queue))
		return nil
	default:
		r.cfg.Metrics.ReportDropped()
		r.cfg.Logger.Warn("report queue full, dropping report")
		return fmt.Errorf("report queue full")
	}
}

// drain is the single consumer. FIFO order per agent is guaranteed by
// having exactly one of these per reporter.
func (r *Reporter) drain() {
	defer close(r.done)
	for j := range r.queue {
		r.cfg.Metrics.SetQueueLength(len(r.queue))
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SubmitTimeout)
		if j.single != nil {
			_ = r.submitOne(ctx, *j.single)
		} else {
			_ = r.submitBatch(ctx, j.batch)
		}
		cancel()
	}
}

func (r *Reporter) submitOne(ctx context.Context, it domain.Interaction) error {
	start := time.Now()
	result, err := r.cfg.Backend.SubmitFeedback(ctx, r.request(it))
	r.cfg.Metrics.ObserveReportLatency(time.Since(start).Seconds())
	if err != nil {
		r.cfg.Metrics.ReportFailure()
		r.cfg.Logger.Warn("feedback submission failed", "interaction_id", it.ID, "error", err)
		return err
	}
	r.cfg.Metrics.Report()
	r.deliver(it, *result)
	return nil
}

func (r *Reporter) submitBatch(ctx context.Context, batch []domain.Interaction) error {
	reqs := make([]client.FeedbackRequest, len(batch))
	for i, it := range batch {
		reqs[i] = r.request(it)
	}

	start := time.Now()
	results, err := r.cfg.Backend.SubmitFeedbackBatch(ctx, reqs)
	r.cfg.Metrics.ObserveReportLatency(time.Since(start).Seconds())
	if err != nil {
		r.cfg.Metrics.ReportFailure()
		r.cfg.Logger.Warn("batch feedback submission failed", "size", len(batch), "error", err)
		return err
	}
	r.cfg.Metrics.Report()
	for i, res := range results {
		if i < len(batch) {
			r.deliver(batch[i], res)
		}
	}
	return nil
}

func (r *Reporter) deliver(it domain.Interaction, res client.FeedbackResult) {
	if r.cfg.OnResult == nil {
		return
	}
	r.cfg.OnResult(it, res)
}

func (r *Reporter) request(it domain.Interaction) client.FeedbackRequest {
	return client.FeedbackRequest{
		Prompt:         it.Prompt,
		Response:       it.Response,
		Tool:           r.cfg.Tool,
		UseCase:        r.cfg.UseCase,
		AgentID:        r.cfg.AgentID,
		ResponseTimeMS: it.Latency.Milliseconds(),
		Timestamp:      it.Timestamp.UTC().Format(time.RFC3339),
	}
}
