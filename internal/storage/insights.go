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

// CreateInsight inserts a new insight, assigning an id if missing.
func (s *Store) CreateInsight(ctx context.Context, insight *domain.Insight) error {
	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	insight.CreatedAt = now
	insight.UpdatedAt = now

	query := `
		INSERT INTO insights (id, project_id, type, title, description, severity, confidence, tags, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		insight.ID, insight.ProjectID, insight.Type, insight.Title, insight.Description,
		insight.Severity, insight.Confidence, insight.Tags, insight.Metadata,
		insight.CreatedAt, insight.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

// UpdateInsightScores overwrites severity and confidence. Used by the merge
// path of extraction.
func (s *Store) UpdateInsightScores(ctx context.Context, id string, severity, confidence float64) error {
	query := `UPDATE insights SET severity = $2, confidence = $3, updated_at = $4 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, severity, confidence, time.Now().UTC()); err != nil {
		return fmt.Errorf("update insight scores %s: %w", id, err)
	}
	return nil
}

// UpdateInsightScoring overwrites severity, confidence, and metadata in one
// statement. Used by prioritization, which appends its reasoning to metadata.
func (s *Store) UpdateInsightScoring(ctx context.Context, id string, severity, confidence float64, metadata domain.JSONMap) error {
	query := `UPDATE insights SET severity = $2, confidence = $3, metadata = $4, updated_at = $5 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, severity, confidence, metadata, time.Now().UTC()); err != nil {
		return fmt.Errorf("update insight scoring %s: %w", id, err)
	}
	return nil
}

// ListInsightsByProject returns all of a project's insights with their linked
// post counts.
func (s *Store) ListInsightsByProject(ctx context.Context, projectID string) ([]domain.Insight, error) {
	var insights []domain.Insight
	query := `
		SELECT i.id, i.project_id, i.type, i.title, i.description, i.severity, i.confidence,
		       i.tags, i.metadata, i.created_at, i.updated_at,
		       COUNT(isrc.raw_post_id) AS source_count
		FROM insights i
		LEFT JOIN insight_sources isrc ON isrc.insight_id = i.id
		WHERE i.project_id = $1
		GROUP BY i.id
		ORDER BY i.created_at
	`

	if err := s.db.SelectContext(ctx, &insights, query, projectID); err != nil {
		return nil, fmt.Errorf("list insights for project %s: %w", projectID, err)
	}
	return insights, nil
}

// TopInsightsBySeverity returns a project's highest-severity insights.
func (s *Store) TopInsightsBySeverity(ctx context.Context, projectID string, limit int) ([]domain.Insight, error) {
	var insights []domain.Insight
	query := `
		SELECT id, project_id, type, title, description, severity, confidence, tags, metadata, created_at, updated_at,
		       0 AS source_count
		FROM insights
		WHERE project_id = $1
		ORDER BY severity DESC
		LIMIT $2
	`

	if err := s.db.SelectContext(ctx, &insights, query, projectID, limit); err != nil {
		return nil, fmt.Errorf("top insights for project %s: %w", projectID, err)
	}
	return insights, nil
}

// LatestInsightTime returns the created_at of a project's newest insight, or
// nil when the project has none.
func (s *Store) LatestInsightTime(ctx context.Context, projectID string) (*time.Time, error) {
	var latest *time.Time
	query := `SELECT MAX(created_at) FROM insights WHERE project_id = $1`

	err := s.db.GetContext(ctx, &latest, query, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest insight time: %w", err)
	}
	return latest, nil
}

// UpsertInsightSource links an insight to a supporting raw post. Re-linking
// the same pair is a no-op.
func (s *Store) UpsertInsightSource(ctx context.Context, insightID, rawPostID string, relevance float64) error {
	query := `
		INSERT INTO insight_sources (insight_id, raw_post_id, relevance_score)
		VALUES ($1, $2, $3)
		ON CONFLICT (insight_id, raw_post_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, insightID, rawPostID, relevance); err != nil {
		return fmt.Errorf("upsert insight source %s/%s: %w", insightID, rawPostID, err)
	}
	return nil
}

// GetSpec loads a single spec by id.
func (s *Store) GetSpec(ctx context.Context, id string) (*domain.Spec, error) {
	var spec domain.Spec
	query := `SELECT id, project_id, title, content, format, version, created_at, updated_at FROM specs WHERE id = $1`

	err := s.db.GetContext(ctx, &spec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("spec %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query spec: %w", err)
	}
	return &spec, nil
}

// CreateSpec inserts a new spec row.
func (s *Store) CreateSpec(ctx context.Context, spec *domain.Spec) error {
	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}
	if spec.Version == 0 {
		spec.Version = 1
	}
	now := time.Now().UTC()
	spec.CreatedAt = now
	spec.UpdatedAt = now

	query := `
		INSERT INTO specs (id, project_id, title, content, format, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		spec.ID, spec.ProjectID, spec.Title, spec.Content, spec.Format,
		spec.Version, spec.CreatedAt, spec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert spec: %w", err)
	}
	return nil
}

// UpdateSpecContent overwrites a spec's title and content, replacing the
// generation placeholder.
func (s *Store) UpdateSpecContent(ctx context.Context, id, title, content string) error {
	query := `UPDATE specs SET title = $2, content = $3, updated_at = $4 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, title, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("update spec %s: %w", id, err)
	}
	return nil
}
