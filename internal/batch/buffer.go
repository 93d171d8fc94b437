// Package batch accumulates sampled interactions into bounded batches so
// reporting overhead stays low. A batch is flushed when it reaches its size
// limit, when its oldest entry goes stale, or on explicit force-flush at
// shutdown.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/enableai/agentmon-go/internal/clock"
	"github.com/enableai/agentmon-go/internal/domain"
	"github.com/enableai/agentmon-go/internal/observability"
)

// Sender receives flushed batches. Implemented by the quality reporter.
type Sender interface {
	SendBatch(ctx context.Context, batch []domain.Interaction) error
}

// Config holds buffer configuration.
type Config struct {
	// BatchSize is the flush threshold. Must be >= 1.
	BatchSize int
	// IdleTimeout bounds staleness: a non-empty buffer whose oldest entry
	// is older than this is flushed (default: 30s)
	IdleTimeout time.Duration
	// TickInterval is how often staleness is checked (default: IdleTimeout/4)
	TickInterval time.Duration
	// MaxRetries is how many times a failed batch send is retried as a
	// whole before the batch is dropped (default: 2)
	MaxRetries int
	// RetryBackoff is the wait between batch send retries (default: 1s)
	RetryBackoff time.Duration
	// Sender receives flushed batches. Required.
	Sender Sender
	// Clock supplies the current time (default: system clock)
	Clock clock.Clock
	// Logger receives flush failures; defaults to slog.Default()
	Logger *slog.Logger
	// Metrics records flush and drop counts; nil disables instrumentation
	Metrics *observability.Metrics
}

// Buffer is a bounded, concurrency-safe batch queue. The queue never holds
// more than BatchSize entries: the append that reaches the threshold flushes
// in the same call. Flush swaps the queue contents out under the lock and
// sends outside it, so concurrent size and staleness triggers cannot send
// the same batch twice.
type Buffer struct {
	mu     sync.Mutex
	cfg    Config
	items  []domain.Interaction
	oldest time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a batch buffer and starts its staleness watcher.
func New(cfg Config) (*Buffer, error) {
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("batch sender is required")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = cfg.IdleTimeout / 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "batch")

	b := &Buffer{
		cfg:   cfg,
		items: make([]domain.Interaction, 0, cfg.BatchSize),
		stop:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.watchStaleness()
	return b, nil
}

// Append enqueues a sampled interaction. When the queue reaches BatchSize
// the batch is flushed before Append returns.
func (b *Buffer) Append(ctx context.Context, it domain.Interaction) {
	b.mu.Lock()
	if len(b.items) == 0 {
		b.oldest = b.cfg.Clock.Now()
	}
	b.items = append(b.items, it)
	n := len(b.items)
	b.cfg.Metrics.SetBatchLength(n)

	var batch []domain.Interaction
	if n >= b.cfg.BatchSize {
		batch = b.swapLocked()
	}
	b.mu.Unlock()

	if batch != nil {
		b.send(ctx, batch, b.cfg.MaxRetries)
	}
}

// Len returns the current queue depth.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Flush force-flushes any buffered interactions as a single best-effort
// send with no retry. Used at shutdown.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.swapLocked()
	b.mu.Unlock()

	if batch != nil {
		b.send(ctx, batch, 0)
	}
}

// Close stops the staleness watcher. It does not flush; call Flush first.
func (b *Buffer) Close() {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	b.wg.Wait()
}

// swapLocked atomically takes the queue contents. Must be called with the
// mutex held.
func (b *Buffer) swapLocked() []domain.Interaction {
	if len(b.items) == 0 {
		return nil
	}
	batch := b.items
	b.items = make([]domain.Interaction, 0, b.cfg.BatchSize)
	b.cfg.Metrics.SetBatchLength(0)
	return batch
}

// send delivers one batch, retrying the whole batch up to retries times.
// A batch that still fails is dropped with an error log; it is never
// buffered indefinitely.
func (b *Buffer) send(ctx context.Context, batch []domain.Interaction, retries int) {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.cfg.RetryBackoff):
			case <-ctx.Done():
				b.drop(batch, ctx.Err())
				return
			}
		}
		if err = b.cfg.Sender.SendBatch(ctx, batch); err == nil {
			b.cfg.Metrics.BatchFlushed()
			return
		}
		b.cfg.Logger.Warn("batch send failed",
			"size", len(batch), "attempt", attempt+1, "max_attempts", retries+1, "error", err)
	}
	b.drop(batch, err)
}

func (b *Buffer) drop(batch []domain.Interaction, err error) {
	b.cfg.Metrics.BatchDropped()
	b.cfg.Logger.Error("dropping batch after failed sends", "size", len(batch), "error", err)
}

// watchStaleness flushes a non-empty buffer whose oldest entry exceeded
// IdleTimeout.
func (b *Buffer) watchStaleness() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			var batch []domain.Interaction
			if len(b.items) > 0 && b.cfg.Clock.Now().Sub(b.oldest) >= b.cfg.IdleTimeout {
				batch = b.swapLocked()
			}
			b.mu.Unlock()

			if batch != nil {
				b.send(context.Background(), batch, b.cfg.MaxRetries)
			}
		}
	}
}
