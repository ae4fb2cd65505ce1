package jobs

import (
	"context"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/queue"
)

// Enqueuer is the producer-side helper used by the API layer to kick off
// pipeline work. Scrape enqueues also create the PENDING tracking row the
// worker transitions.
type Enqueuer struct {
	store Store
	queue queue.Queue
}

func NewEnqueuer(store Store, q queue.Queue) *Enqueuer {
	return &Enqueuer{store: store, queue: q}
}

// EnqueueScrape creates a PENDING scrape job row and queues the scrape.
func (e *Enqueuer) EnqueueScrape(ctx context.Context, sourceID string) (string, error) {
	if _, err := e.store.CreateScrapeJob(ctx, sourceID); err != nil {
		return "", err
	}
	return e.queue.Enqueue(ctx, domain.JobScrape, domain.ScrapePayload{SourceID: sourceID})
}

// EnqueueAnalyze queues an analysis run for a project.
func (e *Enqueuer) EnqueueAnalyze(ctx context.Context, projectID string) (string, error) {
	return e.queue.Enqueue(ctx, domain.JobAnalyze, domain.AnalyzePayload{ProjectID: projectID})
}

// EnqueueGenerate queues spec generation. specID may be empty to create a new
// markdown spec.
func (e *Enqueuer) EnqueueGenerate(ctx context.Context, projectID, specID string) (string, error) {
	return e.queue.Enqueue(ctx, domain.JobGenerate, domain.GeneratePayload{ProjectID: projectID, SpecID: specID})
}
