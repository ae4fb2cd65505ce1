package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptops/insight-pipeline/internal/domain"
)

type recordingHandler struct {
	mu      sync.Mutex
	handled []string
	fail    map[string]error
	done    chan struct{}
}

func newRecordingHandler(expected int) *recordingHandler {
	return &recordingHandler{
		fail: map[string]error{},
		done: make(chan struct{}, expected),
	}
}

func (h *recordingHandler) Handle(_ context.Context, job *Job) error {
	h.mu.Lock()
	h.handled = append(h.handled, job.ID)
	h.mu.Unlock()
	h.done <- struct{}{}
	return h.fail[job.ID]
}

func (h *recordingHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.handled))
	copy(out, h.handled)
	return out
}

func waitFor(t *testing.T, ch chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d jobs, got %d", n, i)
		}
	}
}

func TestWorkerProcessesJobs(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	handler := newRecordingHandler(2)
	worker := NewWorker(q, handler, 2, q.log)

	id1, err := q.Enqueue(ctx, domain.JobScrape, domain.ScrapePayload{SourceID: "a"})
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, domain.JobScrape, domain.ScrapePayload{SourceID: "b"})
	require.NoError(t, err)

	worker.Start(ctx)
	waitFor(t, handler.done, 2)
	worker.Stop()

	assert.ElementsMatch(t, []string{id1, id2}, handler.ids())

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(0), listLen(t, q, q.processingKey()))
}

func TestWorkerStartReclaimsStalledJobs(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, domain.JobScrape, domain.ScrapePayload{SourceID: "a"})
	require.NoError(t, err)

	// A previous process popped the job and died before acking.
	stalled, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, stalled)

	handler := newRecordingHandler(1)
	worker := NewWorker(q, handler, 1, q.log)
	worker.Start(ctx)
	waitFor(t, handler.done, 1)
	worker.Stop()

	assert.Equal(t, []string{id}, handler.ids())
	assert.Equal(t, int64(0), listLen(t, q, q.processingKey()))
}

func TestWorkerFailureGoesToRetry(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	handler := newRecordingHandler(1)
	worker := NewWorker(q, handler, 1, q.log)

	id, err := q.Enqueue(ctx, domain.JobScrape, domain.ScrapePayload{SourceID: "a"})
	require.NoError(t, err)
	handler.fail[id] = errors.New("scrape blew up")

	worker.Start(ctx)
	waitFor(t, handler.done, 1)
	worker.Stop()

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
}

func TestWorkerFatalErrorGoesDead(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	handler := newRecordingHandler(1)
	worker := NewWorker(q, handler, 1, q.log)

	id, err := q.Enqueue(ctx, domain.JobScrape, domain.ScrapePayload{SourceID: "a"})
	require.NoError(t, err)
	handler.fail[id] = domain.ErrUnknownJobKind

	worker.Start(ctx)
	waitFor(t, handler.done, 1)
	worker.Stop()

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Delayed)
	assert.Equal(t, int64(1), stats.Dead)
}
