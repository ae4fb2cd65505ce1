// Package queue implements a durable, at-least-once background job queue on
// Redis: a FIFO pending list, a processing list holding in-flight jobs until
// they are acked (so a crash mid-job re-delivers instead of losing work), a
// delayed set for retries, and a recurring set keyed by stable identifiers so
// re-registration across restarts never duplicates a schedule.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/promptops/insight-pipeline/internal/domain"
)

// Job is the queue's unit of work.
type Job struct {
	ID         string          `json:"id"`
	Kind       domain.JobKind  `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`

	// raw is the wire form as delivered by Pop, kept so Ack and Fail can
	// remove exactly this entry from the processing list.
	raw []byte
}

// DecodePayload unmarshals the job payload into v.
func (j *Job) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(j.Payload, v)
}

// Stats is a point-in-time view of queue depths for the status endpoint.
type Stats struct {
	Pending   int64 `json:"pending"`
	Delayed   int64 `json:"delayed"`
	Recurring int64 `json:"recurring"`
	Dead      int64 `json:"dead"`
}

// Queue is the enqueue-side interface. The worker and scheduler depend only
// on this so the backing store is swappable in tests.
type Queue interface {
	// Enqueue adds a job to the pending list and returns its id.
	Enqueue(ctx context.Context, kind domain.JobKind, payload any) (string, error)
	// EnqueueIn schedules a job to become pending after the given delay.
	EnqueueIn(ctx context.Context, kind domain.JobKind, payload any, delay time.Duration) (string, error)
	// EnqueueRecurring registers a fixed-interval recurring job under a
	// stable identifier. Registering the same id again keeps the existing
	// schedule.
	EnqueueRecurring(ctx context.Context, id string, kind domain.JobKind, every time.Duration) error
	// Stats reports queue depths.
	Stats(ctx context.Context) (Stats, error)
}
