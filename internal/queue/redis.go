package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const (
	promoteInterval = time.Second
	promoteBatch    = 100
	retryBackoff    = 5 * time.Second
)

// recurringDef is the stored definition of a recurring job.
type recurringDef struct {
	Kind  domain.JobKind `json:"kind"`
	Every time.Duration  `json:"every"`
}

// RedisQueue is the Redis-backed Queue implementation.
type RedisQueue struct {
	client      *redis.Client
	name        string
	maxAttempts int
	log         logger.Logger
}

// NewRedis creates a queue named name on the given client.
func NewRedis(client *redis.Client, name string, maxAttempts int, log logger.Logger) *RedisQueue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RedisQueue{
		client:      client,
		name:        name,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

func (q *RedisQueue) pendingKey() string    { return "q:" + q.name + ":pending" }
func (q *RedisQueue) processingKey() string { return "q:" + q.name + ":processing" }
func (q *RedisQueue) delayedKey() string    { return "q:" + q.name + ":delayed" }
func (q *RedisQueue) recurringKey() string  { return "q:" + q.name + ":recurring" }
func (q *RedisQueue) nextRunKey() string    { return "q:" + q.name + ":recurring:next" }
func (q *RedisQueue) deadKey() string       { return "q:" + q.name + ":dead" }

func newJob(kind domain.JobKind, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return &Job{
		ID:         uuid.New().String(),
		Kind:       kind,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Enqueue adds a job to the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, kind domain.JobKind, payload any) (string, error) {
	job, err := newJob(kind, payload)
	if err != nil {
		return "", err
	}
	if err := q.push(ctx, job); err != nil {
		return "", err
	}

	q.log.Debug("Job enqueued",
		logger.String("job_id", job.ID),
		logger.String("kind", string(job.Kind)),
	)
	return job.ID, nil
}

// EnqueueIn schedules a job to become pending after delay.
func (q *RedisQueue) EnqueueIn(ctx context.Context, kind domain.JobKind, payload any, delay time.Duration) (string, error) {
	job, err := newJob(kind, payload)
	if err != nil {
		return "", err
	}
	if err := q.delay(ctx, job, delay); err != nil {
		return "", err
	}
	return job.ID, nil
}

// EnqueueRecurring registers a recurring job under a stable id. If the id is
// already scheduled its next-run time is left untouched, so restarts do not
// double the schedule.
func (q *RedisQueue) EnqueueRecurring(ctx context.Context, id string, kind domain.JobKind, every time.Duration) error {
	def, err := json.Marshal(recurringDef{Kind: kind, Every: every})
	if err != nil {
		return fmt.Errorf("marshal recurring def: %w", err)
	}

	if err := q.client.HSet(ctx, q.recurringKey(), id, def).Err(); err != nil {
		return fmt.Errorf("store recurring job %s: %w", id, err)
	}

	// NX keeps an existing schedule; a fresh registration fires immediately.
	added := q.client.ZAddNX(ctx, q.nextRunKey(), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: id,
	})
	if err := added.Err(); err != nil {
		return fmt.Errorf("schedule recurring job %s: %w", id, err)
	}

	q.log.Info("Recurring job registered",
		logger.String("recurring_id", id),
		logger.String("kind", string(kind)),
		logger.Duration("every", every),
		logger.Bool("new_schedule", added.Val() > 0),
	)
	return nil
}

// Pop blocks up to timeout waiting for a pending job, moving it to the
// processing list so a crash mid-job re-delivers it via Reclaim. Returns nil
// when the wait times out. The caller must Ack or Fail every delivered job.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(res), &job); err != nil {
		// An undecodable entry must not stay in the processing list or
		// Reclaim would redeliver it forever.
		q.client.LRem(ctx, q.processingKey(), 1, res)
		return nil, fmt.Errorf("decode job: %w", err)
	}
	job.raw = []byte(res)
	return &job, nil
}

// Ack removes a handled job from the processing list. Failed jobs are
// cleaned up by Fail instead.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	if len(job.raw) == 0 {
		return nil
	}
	if err := q.client.LRem(ctx, q.processingKey(), 1, job.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	return nil
}

// Reclaim moves jobs stranded in the processing list back to pending.
// Called once at worker startup: anything still there was in flight when a
// previous process died and must be delivered again.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(), q.pendingKey(), "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("reclaim job: %w", err)
		}
		moved++
	}

	if moved > 0 {
		q.log.Info("Reclaimed in-flight jobs", logger.Int("count", moved))
	}
	return moved, nil
}

// Fail records a failed attempt: retryable failures go back to the delayed
// set with linear backoff, exhausted or non-retryable ones land in the dead
// set.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) error {
	job.Attempts++

	// Drop the delivered entry from the processing list first; leaving it
	// would make Reclaim duplicate the retry after a restart.
	if len(job.raw) > 0 {
		if err := q.client.LRem(ctx, q.processingKey(), 1, job.raw).Err(); err != nil {
			q.log.Warn("Failed to clear processing entry",
				logger.String("job_id", job.ID),
				logger.Error(err),
			)
		}
	}

	fatal := errors.Is(cause, domain.ErrUnknownJobKind)
	if !fatal && job.Attempts < q.maxAttempts {
		backoff := time.Duration(job.Attempts) * retryBackoff
		q.log.Warn("Job failed, retrying",
			logger.String("job_id", job.ID),
			logger.String("kind", string(job.Kind)),
			logger.Int("attempts", job.Attempts),
			logger.Duration("backoff", backoff),
			logger.Error(cause),
		)
		return q.delay(ctx, job, backoff)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal dead job: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.deadKey(), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("store dead job: %w", err)
	}

	q.log.Error("Job moved to dead set",
		logger.String("job_id", job.ID),
		logger.String("kind", string(job.Kind)),
		logger.Int("attempts", job.Attempts),
		logger.Error(cause),
	)
	return nil
}

// Promote moves due delayed jobs to the pending list and enqueues due
// recurring jobs, advancing their next-run times. Called periodically by the
// worker; safe to call concurrently since every step tolerates duplicates
// (at-least-once delivery).
func (q *RedisQueue) Promote(ctx context.Context) error {
	now := time.Now().UnixMilli()
	nowScore := fmt.Sprintf("%d", now)

	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: nowScore, Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan delayed jobs: %w", err)
	}
	for _, member := range due {
		removed, remErr := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if remErr != nil {
			return fmt.Errorf("remove delayed job: %w", remErr)
		}
		if removed == 0 {
			continue // another promoter won the race
		}
		if pushErr := q.client.LPush(ctx, q.pendingKey(), member).Err(); pushErr != nil {
			return fmt.Errorf("promote delayed job: %w", pushErr)
		}
	}

	dueRecurring, err := q.client.ZRangeByScore(ctx, q.nextRunKey(), &redis.ZRangeBy{
		Min: "-inf", Max: nowScore, Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan recurring jobs: %w", err)
	}
	for _, id := range dueRecurring {
		raw, getErr := q.client.HGet(ctx, q.recurringKey(), id).Result()
		if errors.Is(getErr, redis.Nil) {
			q.client.ZRem(ctx, q.nextRunKey(), id)
			continue
		}
		if getErr != nil {
			return fmt.Errorf("load recurring def %s: %w", id, getErr)
		}

		var def recurringDef
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return fmt.Errorf("decode recurring def %s: %w", id, err)
		}

		if _, err := q.Enqueue(ctx, def.Kind, struct{}{}); err != nil {
			return err
		}
		if err := q.client.ZAdd(ctx, q.nextRunKey(), redis.Z{
			Score:  float64(time.Now().Add(def.Every).UnixMilli()),
			Member: id,
		}).Err(); err != nil {
			return fmt.Errorf("reschedule recurring job %s: %w", id, err)
		}

		q.log.Debug("Recurring job fired", logger.String("recurring_id", id))
	}

	return nil
}

// Stats reports queue depths.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pending, err := q.client.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("pending depth: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("delayed depth: %w", err)
	}
	recurring, err := q.client.HLen(ctx, q.recurringKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("recurring count: %w", err)
	}
	dead, err := q.client.ZCard(ctx, q.deadKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("dead depth: %w", err)
	}

	return Stats{Pending: pending, Delayed: delayed, Recurring: recurring, Dead: dead}, nil
}

func (q *RedisQueue) push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), data).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) delay(ctx context.Context, job *Job, d time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(time.Now().Add(d).UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("delay job: %w", err)
	}
	return nil
}
