package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/promptops/insight-pipeline/internal/domain"
)

const scrapeJobColumns = `id, source_id, status, started_at, completed_at, error, posts_found, created_at`

// CreateScrapeJob inserts a PENDING scrape job row for a source.
func (s *Store) CreateScrapeJob(ctx context.Context, sourceID string) (*domain.ScrapeJob, error) {
	job := &domain.ScrapeJob{
		ID:        uuid.New().String(),
		SourceID:  sourceID,
		Status:    domain.ScrapeJobPending,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO scrape_jobs (id, source_id, status, posts_found, created_at)
		VALUES ($1, $2, $3, 0, $4)
	`

	if _, err := s.db.ExecContext(ctx, query, job.ID, job.SourceID, job.Status, job.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert scrape job: %w", err)
	}
	return job, nil
}

// FindLatestPendingScrapeJob returns the most recent PENDING scrape job for a
// source, or ErrNotFound.
func (s *Store) FindLatestPendingScrapeJob(ctx context.Context, sourceID string) (*domain.ScrapeJob, error) {
	var job domain.ScrapeJob
	query := `SELECT ` + scrapeJobColumns + ` FROM scrape_jobs
		WHERE source_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`

	err := s.db.GetContext(ctx, &job, query, sourceID, domain.ScrapeJobPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query pending scrape job: %w", err)
	}
	return &job, nil
}

// MarkScrapeJobRunning transitions a scrape job to RUNNING.
func (s *Store) MarkScrapeJobRunning(ctx context.Context, id string) error {
	query := `UPDATE scrape_jobs SET status = $2, started_at = $3 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, domain.ScrapeJobRunning, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark scrape job running: %w", err)
	}
	return nil
}

// MarkScrapeJobCompleted transitions a scrape job to COMPLETED with the post
// count.
func (s *Store) MarkScrapeJobCompleted(ctx context.Context, id string, postsFound int) error {
	query := `UPDATE scrape_jobs SET status = $2, completed_at = $3, posts_found = $4 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, domain.ScrapeJobCompleted, time.Now().UTC(), postsFound); err != nil {
		return fmt.Errorf("mark scrape job completed: %w", err)
	}
	return nil
}

// MarkScrapeJobFailed transitions a scrape job to FAILED with the error
// message.
func (s *Store) MarkScrapeJobFailed(ctx context.Context, id, errMsg string) error {
	query := `UPDATE scrape_jobs SET status = $2, completed_at = $3, error = $4 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, domain.ScrapeJobFailed, time.Now().UTC(), errMsg); err != nil {
		return fmt.Errorf("mark scrape job failed: %w", err)
	}
	return nil
}
