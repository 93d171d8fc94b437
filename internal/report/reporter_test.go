package report

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
	"github.com/enableai/agentmon-go/pkg/client"
)

// fakeBackend scores every interaction with a fixed result and records the
// requests it received. block, when set, holds submissions until released.
type fakeBackend struct {
	mu       sync.Mutex
	requests []client.FeedbackRequest
	err      error
	score    float64
	block    chan struct{}
}

func (f *fakeBackend) SubmitFeedback(ctx context.Context, req client.FeedbackRequest) (*client.FeedbackResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &client.FeedbackResult{Score: f.score, FeedbackID: fmt.Sprintf("fb-%d", len(f.requests))}, nil
}

func (f *fakeBackend) SubmitFeedbackBatch(ctx context.Context, reqs []client.FeedbackRequest) ([]client.FeedbackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	results := make([]client.FeedbackResult, len(reqs))
	for i := range reqs {
		f.requests = append(f.requests, reqs[i])
		results[i] = client.FeedbackResult{Score: f.score}
	}
	return results, nil
}

func (f *fakeBackend) received() []client.FeedbackRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.FeedbackRequest(nil), f.requests...)
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestReporter_SyncSubmitDeliversResult(t *testing.T) {
	backend := &fakeBackend{score: 82}
	var gotIt domain.Interaction
	var gotRes client.FeedbackResult

	r, err := New(Config{
		AgentID: "agent-1",
		Tool:    "chatbot",
		UseCase: "support",
		Backend: backend,
		OnResult: func(it domain.Interaction, res client.FeedbackResult) {
			gotIt, gotRes = it, res
		},
	})
	require.NoError(t, err)
	defer r.Close(context.Background())

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	it := domain.Interaction{
		ID:        "it-1",
		Prompt:    "hello",
		Response:  "hi there",
		Latency:   1500 * time.Millisecond,
		Timestamp: ts,
	}
	require.NoError(t, r.Submit(context.Background(), it))

	reqs := backend.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello", reqs[0].Prompt)
	assert.Equal(t, "agent-1", reqs[0].AgentID)
	assert.Equal(t, "chatbot", reqs[0].Tool)
	assert.Equal(t, "support", reqs[0].UseCase)
	assert.Equal(t, int64(1500), reqs[0].ResponseTimeMS)
	assert.Equal(t, "2025-06-01T12:00:00Z", reqs[0].Timestamp)

	assert.Equal(t, "it-1", gotIt.ID)
	assert.Equal(t, 82.0, gotRes.Score)
}

func TestReporter_SyncSubmitReturnsBackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	called := false
	r, err := New(Config{
		Backend:  backend,
		OnResult: func(domain.Interaction, client.FeedbackResult) { called = true },
	})
	require.NoError(t, err)
	defer r.Close(context.Background())

	err = r.Submit(context.Background(), domain.Interaction{ID: "it-1"})
	assert.Error(t, err)
	assert.False(t, called, "no result callback on failure")
}

func TestReporter_AsyncPreservesSubmissionOrder(t *testing.T) {
	backend := &fakeBackend{score: 75}
	r, err := New(Config{Async: true, QueueSize: 100, Backend: backend})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, r.Submit(context.Background(), domain.Interaction{
			ID:     fmt.Sprintf("it-%02d", i),
			Prompt: fmt.Sprintf("p-%02d", i),
		}))
	}
	require.NoError(t, r.Close(context.Background()))

	reqs := backend.received()
	require.Len(t, reqs, 20)
	for i, req := range reqs {
		assert.Equal(t, fmt.Sprintf("p-%02d", i), req.Prompt)
	}
}

func TestReporter_AsyncFullQueueDropsInsteadOfBlocking(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	r, err := New(Config{Async: true, QueueSize: 2, Backend: backend})
	require.NoError(t, err)

	// One job occupies the worker, two fill the queue. Later submissions
	// must return immediately with a drop error.
	var dropped int
	for i := 0; i < 6; i++ {
		if err := r.Submit(context.Background(), domain.Interaction{ID: fmt.Sprintf("it-%d", i)}); err != nil {
			dropped++
		}
	}
	assert.GreaterOrEqual(t, dropped, 3)

	close(backend.block)
	require.NoError(t, r.Close(context.Background()))
	assert.LessOrEqual(t, len(backend.received()), 3)
}

func TestReporter_CloseDrainsPendingJobs(t *testing.T) {
	backend := &fakeBackend{score: 70}
	r, err := New(Config{Async: true, QueueSize: 50, Backend: backend})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Submit(context.Background(), domain.Interaction{ID: fmt.Sprintf("it-%d", i)}))
	}
	require.NoError(t, r.Close(context.Background()))

	assert.Len(t, backend.received(), 10)
}

func TestReporter_SubmitAfterCloseIsRejected(t *testing.T) {
	backend := &fakeBackend{}
	r, err := New(Config{Async: true, Backend: backend})
	require.NoError(t, err)
	require.NoError(t, r.Close(context.Background()))

	err = r.Submit(context.Background(), domain.Interaction{ID: "late"})
	assert.Error(t, err)

	// Close is idempotent
	assert.NoError(t, r.Close(context.Background()))
}

func TestReporter_SendBatchDeliversEachResult(t *testing.T) {
	backend := &fakeBackend{score: 66}
	var mu sync.Mutex
	var seen []string
	r, err := New(Config{
		Backend: backend,
		OnResult: func(it domain.Interaction, _ client.FeedbackResult) {
			mu.Lock()
			seen = append(seen, it.ID)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer r.Close(context.Background())

	batch := []domain.Interaction{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	require.NoError(t, r.SendBatch(context.Background(), batch))

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Len(t, backend.received(), 3)
}
