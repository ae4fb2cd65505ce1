package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/promptops/insight-pipeline/internal/domain"
)

const postColumns = `id, source_id, external_id, platform, title, body, author, url, score, posted_at, metadata, created_at`

// UpsertPost inserts a raw post or, if (platform, external_id) already
// exists, refreshes the score and merges the incoming metadata over the
// stored map. Keys the incoming map lacks, such as cached topComments from a
// previous enrichment pass, survive the merge. Title, body, and author are
// immutable once stored.
func (s *Store) UpsertPost(ctx context.Context, post *domain.RawPost) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO raw_posts (id, source_id, external_id, platform, title, body, author, url, score, posted_at, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (platform, external_id)
		DO UPDATE SET score = EXCLUDED.score, metadata = raw_posts.metadata || EXCLUDED.metadata
	`

	_, err := s.db.ExecContext(ctx, query,
		post.ID, post.SourceID, post.ExternalID, post.Platform, post.Title,
		post.Body, post.Author, post.URL, post.Score, post.PostedAt,
		post.Metadata, post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert raw post %s/%s: %w", post.Platform, post.ExternalID, err)
	}
	return nil
}

// ListPostsBySource returns a source's posts ordered by score descending.
func (s *Store) ListPostsBySource(ctx context.Context, sourceID string, limit int) ([]domain.RawPost, error) {
	var posts []domain.RawPost
	query := `SELECT ` + postColumns + ` FROM raw_posts WHERE source_id = $1 ORDER BY score DESC LIMIT $2`

	if err := s.db.SelectContext(ctx, &posts, query, sourceID, limit); err != nil {
		return nil, fmt.Errorf("list posts for source %s: %w", sourceID, err)
	}
	return posts, nil
}

// ListPostsBySources returns posts across several sources ordered by score
// descending.
func (s *Store) ListPostsBySources(ctx context.Context, sourceIDs []string, limit int) ([]domain.RawPost, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+postColumns+` FROM raw_posts WHERE source_id IN (?) ORDER BY score DESC LIMIT ?`,
		sourceIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("build posts query: %w", err)
	}
	query = s.db.Rebind(query)

	var posts []domain.RawPost
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// UpdatePostMetadata overwrites a post's metadata. Used by comment
// enrichment, which merges new keys into a copy of the stored map first.
func (s *Store) UpdatePostMetadata(ctx context.Context, id string, metadata domain.JSONMap) error {
	query := `UPDATE raw_posts SET metadata = $2 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, metadata); err != nil {
		return fmt.Errorf("update post metadata %s: %w", id, err)
	}
	return nil
}

// LatestPostTime returns the created_at of the newest post across the given
// sources, or nil when there are none.
func (s *Store) LatestPostTime(ctx context.Context, sourceIDs []string) (*time.Time, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT MAX(created_at) FROM raw_posts WHERE source_id IN (?)`, sourceIDs)
	if err != nil {
		return nil, fmt.Errorf("build latest post query: %w", err)
	}
	query = s.db.Rebind(query)

	var latest *time.Time
	if err := s.db.GetContext(ctx, &latest, query, args...); err != nil {
		return nil, fmt.Errorf("latest post time: %w", err)
	}
	return latest, nil
}

// CountPostsSince counts posts across the given sources created after the
// given time.
func (s *Store) CountPostsSince(ctx context.Context, sourceIDs []string, since time.Time) (int, error) {
	if len(sourceIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`SELECT COUNT(*) FROM raw_posts WHERE source_id IN (?) AND created_at > ?`, sourceIDs, since)
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	query = s.db.Rebind(query)

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}
