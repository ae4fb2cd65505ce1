package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
	"github.com/promptops/insight-pipeline/internal/queue"
)

type registration struct {
	id    string
	kind  domain.JobKind
	every time.Duration
}

type recordingQueue struct {
	registered []registration
	err        error
}

func (r *recordingQueue) Enqueue(context.Context, domain.JobKind, any) (string, error) {
	return "", nil
}

func (r *recordingQueue) EnqueueIn(context.Context, domain.JobKind, any, time.Duration) (string, error) {
	return "", nil
}

func (r *recordingQueue) EnqueueRecurring(_ context.Context, id string, kind domain.JobKind, every time.Duration) error {
	if r.err != nil {
		return r.err
	}
	r.registered = append(r.registered, registration{id: id, kind: kind, every: every})
	return nil
}

func (r *recordingQueue) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{}, nil
}

func TestStartRegistersRecurringJobs(t *testing.T) {
	q := &recordingQueue{}

	err := Start(context.Background(), q, 12*time.Hour, 6*time.Hour, logger.NewNopLogger())
	require.NoError(t, err)

	require.Len(t, q.registered, 2)
	assert.Equal(t, registration{id: ScrapeAllID, kind: domain.JobScrapeAll, every: 12 * time.Hour}, q.registered[0])
	assert.Equal(t, registration{id: AnalyzeNewID, kind: domain.JobAnalyzeNew, every: 6 * time.Hour}, q.registered[1])
}

func TestStartPropagatesRegistrationError(t *testing.T) {
	q := &recordingQueue{err: errors.New("redis unavailable")}

	err := Start(context.Background(), q, time.Hour, time.Hour, logger.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis unavailable")
}
