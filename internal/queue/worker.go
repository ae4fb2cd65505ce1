package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/promptops/insight-pipeline/internal/logger"
)

const popTimeout = 2 * time.Second

// Handler processes a single job. Returning an error triggers the queue's
// retry bookkeeping.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// Worker pulls jobs from the queue with bounded concurrency and dispatches
// them to the handler.
type Worker struct {
	queue       *RedisQueue
	handler     Handler
	concurrency int
	log         logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker pool. Concurrency defaults to 3.
func NewWorker(q *RedisQueue, handler Handler, concurrency int, log logger.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Worker{
		queue:       q,
		handler:     handler,
		concurrency: concurrency,
		log:         log,
	}
}

// Start requeues jobs a previous process left in flight, then launches the
// promoter and the worker goroutines. It returns immediately; call Stop to
// drain.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	if _, err := w.queue.Reclaim(ctx); err != nil {
		w.log.Error("Failed to reclaim in-flight jobs", logger.Error(err))
	}

	w.wg.Add(1)
	go w.promoteLoop(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workLoop(ctx, i)
	}

	w.log.Info("Worker started", logger.Int("concurrency", w.concurrency))
}

// Stop cancels the loops and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("Worker stopped")
}

func (w *Worker) promoteLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Promote(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error("Failed to promote jobs", logger.Error(err))
			}
		}
	}
}

func (w *Worker) workLoop(ctx context.Context, slot int) {
	defer w.wg.Done()

	log := w.log.With(logger.Int("slot", slot))

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.queue.Pop(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Failed to pop job", logger.Error(err))
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, log, job)
	}
}

func (w *Worker) process(ctx context.Context, log logger.Logger, job *Job) {
	start := time.Now()
	log.Info("Processing job",
		logger.String("job_id", job.ID),
		logger.String("kind", string(job.Kind)),
	)

	if err := w.handler.Handle(ctx, job); err != nil {
		log.Error("Job failed",
			logger.String("job_id", job.ID),
			logger.String("kind", string(job.Kind)),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		// Failure bookkeeping must survive shutdown cancellation.
		if failErr := w.queue.Fail(context.WithoutCancel(ctx), job, err); failErr != nil {
			log.Error("Failed to record job failure", logger.Error(failErr))
		}
		return
	}

	// Like failure bookkeeping, the ack must survive shutdown cancellation
	// or a graceful stop would redeliver a completed job.
	if err := w.queue.Ack(context.WithoutCancel(ctx), job); err != nil {
		log.Error("Failed to ack job", logger.Error(err))
	}

	log.Info("Job completed",
		logger.String("job_id", job.ID),
		logger.String("kind", string(job.Kind)),
		logger.Duration("duration", time.Since(start)),
	)
}
