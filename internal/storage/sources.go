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

const sourceColumns = `id, project_id, platform, url, config, created_at, updated_at`

// GetSource loads a single source by id.
func (s *Store) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	var src domain.Source
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`

	err := s.db.GetContext(ctx, &src, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}
	return &src, nil
}

// ListSourcesByProject returns all sources owned by a project.
func (s *Store) ListSourcesByProject(ctx context.Context, projectID string) ([]domain.Source, error) {
	var sources []domain.Source
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE project_id = $1 ORDER BY created_at`

	if err := s.db.SelectContext(ctx, &sources, query, projectID); err != nil {
		return nil, fmt.Errorf("list sources for project %s: %w", projectID, err)
	}
	return sources, nil
}

// CreateSource inserts a new source, assigning an id if missing.
func (s *Store) CreateSource(ctx context.Context, src *domain.Source) error {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	src.CreatedAt = now
	src.UpdatedAt = now

	query := `
		INSERT INTO sources (id, project_id, platform, url, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		src.ID, src.ProjectID, src.Platform, src.URL, src.Config, src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// GetProject loads a single project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	query := `SELECT id, name, description, niche, keywords, created_at, updated_at FROM projects WHERE id = $1`

	err := s.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects.
func (s *Store) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	query := `SELECT id, name, description, niche, keywords, created_at, updated_at FROM projects ORDER BY created_at`

	if err := s.db.SelectContext(ctx, &projects, query); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}
