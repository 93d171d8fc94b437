package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enableai/agentmon-go/internal/domain"
)

// recordingSender captures every batch it receives and can be told to fail.
type recordingSender struct {
	mu      sync.Mutex
	batches [][]domain.Interaction
	fail    int // fail this many sends before succeeding
	calls   int
}

func (s *recordingSender) SendBatch(ctx context.Context, batch []domain.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail > 0 {
		s.fail--
		return errors.New("backend unavailable")
	}
	cp := append([]domain.Interaction(nil), batch...)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *recordingSender) sent() [][]domain.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]domain.Interaction(nil), s.batches...)
}

func (s *recordingSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func interaction(i int) domain.Interaction {
	return domain.Interaction{ID: fmt.Sprintf("it-%d", i), Sampled: true}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BatchSize: 0, Sender: &recordingSender{}})
	assert.Error(t, err)

	_, err = New(Config{BatchSize: 5})
	assert.Error(t, err, "missing sender must be rejected")
}

func TestBuffer_SizeTriggerFlushesOnThresholdAppend(t *testing.T) {
	sender := &recordingSender{}
	b, err := New(Config{BatchSize: 10, IdleTimeout: time.Hour, Sender: sender})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 9; i++ {
		b.Append(ctx, interaction(i))
		assert.Equal(t, i+1, b.Len())
		assert.Empty(t, sender.sent(), "no flush before the threshold")
	}

	// The 10th append flushes immediately and empties the queue
	b.Append(ctx, interaction(9))
	assert.Equal(t, 0, b.Len())

	sent := sender.sent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0], 10)
	assert.Equal(t, "it-0", sent[0][0].ID, "flush preserves enqueue order")
	assert.Equal(t, "it-9", sent[0][9].ID)
}

func TestBuffer_NeverExceedsBatchSize(t *testing.T) {
	sender := &recordingSender{}
	b, err := New(Config{BatchSize: 7, IdleTimeout: time.Hour, Sender: sender})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Append(ctx, interaction(g*100+i))
			}
		}(g)
	}
	wg.Wait()

	for _, batch := range sender.sent() {
		assert.LessOrEqual(t, len(batch), 7)
	}
	assert.LessOrEqual(t, b.Len(), 7)
}

func TestBuffer_IdleTimeoutFlushesStaleBatch(t *testing.T) {
	sender := &recordingSender{}
	b, err := New(Config{
		BatchSize:    100,
		IdleTimeout:  30 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		Sender:       sender,
	})
	require.NoError(t, err)
	defer b.Close()

	b.Append(context.Background(), interaction(1))
	b.Append(context.Background(), interaction(2))

	assert.Eventually(t, func() bool {
		return len(sender.sent()) == 1 && b.Len() == 0
	}, time.Second, 5*time.Millisecond, "stale partial batch should flush")
	assert.Len(t, sender.sent()[0], 2)
}

func TestBuffer_FailedSendRetriedThenDropped(t *testing.T) {
	sender := &recordingSender{fail: 10} // always failing within the test
	b, err := New(Config{
		BatchSize:    2,
		IdleTimeout:  time.Hour,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		Sender:       sender,
	})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	b.Append(ctx, interaction(1))
	b.Append(ctx, interaction(2))

	// Initial attempt plus two retries, then the batch is dropped
	assert.Equal(t, 3, sender.callCount())
	assert.Empty(t, sender.sent())
	assert.Equal(t, 0, b.Len(), "dropped batch is not re-buffered")
}

func TestBuffer_RetrySucceedsWholeBatch(t *testing.T) {
	sender := &recordingSender{fail: 1}
	b, err := New(Config{
		BatchSize:    3,
		IdleTimeout:  time.Hour,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		Sender:       sender,
	})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Append(ctx, interaction(i))
	}

	sent := sender.sent()
	require.Len(t, sent, 1, "batch retried as a whole after one failure")
	assert.Len(t, sent[0], 3)
}

func TestBuffer_FlushIsSingleBestEffortAttempt(t *testing.T) {
	sender := &recordingSender{fail: 1}
	b, err := New(Config{
		BatchSize:    100,
		IdleTimeout:  time.Hour,
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
		Sender:       sender,
	})
	require.NoError(t, err)
	defer b.Close()

	b.Append(context.Background(), interaction(1))
	b.Flush(context.Background())

	// Shutdown flush never retries
	assert.Equal(t, 1, sender.callCount())
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_FlushEmptyIsNoop(t *testing.T) {
	sender := &recordingSender{}
	b, err := New(Config{BatchSize: 5, IdleTimeout: time.Hour, Sender: sender})
	require.NoError(t, err)
	defer b.Close()

	b.Flush(context.Background())
	assert.Zero(t, sender.callCount())
}
