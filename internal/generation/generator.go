// Package generation produces product spec documents from a project's
// highest-severity insights.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/llm"
	"github.com/promptops/insight-pipeline/internal/logger"
	"github.com/promptops/insight-pipeline/internal/storage"
)

const (
	generateInsightLimit = 50
	generateMaxTokens    = 8192
	generateTemperature  = 0.5
)

// GeneratorStore is the persistence surface generation needs.
type GeneratorStore interface {
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	ListSourcesByProject(ctx context.Context, projectID string) ([]domain.Source, error)
	TopInsightsBySeverity(ctx context.Context, projectID string, limit int) ([]domain.Insight, error)
	GetSpec(ctx context.Context, id string) (*domain.Spec, error)
	CreateSpec(ctx context.Context, spec *domain.Spec) error
	UpdateSpecContent(ctx context.Context, id, title, content string) error
}

// GenerateResult summarizes one generation run.
type GenerateResult struct {
	SpecID string
	Usage  llm.Usage
}

// Generator turns a project's top insights into a spec document. When a spec
// id is supplied it fills that row (replacing the placeholder the API wrote);
// otherwise it creates a new markdown spec.
type Generator struct {
	store GeneratorStore
	llm   llm.Client
	log   logger.Logger
}

func NewGenerator(store GeneratorStore, client llm.Client, log logger.Logger) *Generator {
	return &Generator{store: store, llm: client, log: log}
}

type specInsight struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    float64  `json:"severity"`
	Tags        []string `json:"tags"`
}

func (g *Generator) Generate(ctx context.Context, projectID, specID string) (*GenerateResult, error) {
	project, err := g.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sources, err := g.store.ListSourcesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	insights, err := g.store.TopInsightsBySeverity(ctx, projectID, generateInsightLimit)
	if err != nil {
		return nil, err
	}

	var spec *domain.Spec
	if specID != "" {
		spec, err = g.store.GetSpec(ctx, specID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	format := domain.SpecMarkdown
	if spec != nil {
		format = spec.Format
	}

	summaries := make([]specInsight, len(insights))
	for i, ins := range insights {
		summaries[i] = specInsight{
			Type:        string(ins.Type),
			Title:       ins.Title,
			Description: ins.Description,
			Severity:    ins.Severity,
			Tags:        ins.Tags,
		}
	}
	summaryJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal insight summaries: %w", err)
	}

	sourceLines := make([]string, len(sources))
	for i, s := range sources {
		sourceLines[i] = fmt.Sprintf("%s: %s", s.Platform, s.URL)
	}

	description := project.Description
	if description == "" {
		description = "N/A"
	}
	niche := project.Niche
	if niche == "" {
		niche = "General"
	}

	user := fmt.Sprintf(`Generate a product spec for the following project:

Project: %s
Description: %s
Niche: %s
Keywords: %s
Sources: %s

Based on %d analyzed insights:
%s`,
		project.Name, description, niche,
		strings.Join(project.Keywords, ", "),
		strings.Join(sourceLines, ", "),
		len(insights), summaryJSON,
	)

	g.log.Info("Generating spec",
		logger.String("project_id", projectID),
		logger.String("format", string(format)),
		logger.Int("insight_count", len(insights)),
	)

	content, usage, err := g.llm.Complete(ctx, systemPrompt(format), user, llm.Options{
		MaxTokens:   generateMaxTokens,
		Temperature: generateTemperature,
	})
	if err != nil {
		return nil, err
	}

	defaultTitle := project.Name + " — Product Spec"
	if spec != nil {
		title := spec.Title
		if title == domain.SpecPlaceholder {
			title = defaultTitle
		}
		if err := g.store.UpdateSpecContent(ctx, spec.ID, title, content); err != nil {
			return nil, err
		}
		g.log.Info("Spec generation completed",
			logger.String("project_id", projectID),
			logger.String("spec_id", spec.ID),
		)
		return &GenerateResult{SpecID: spec.ID, Usage: usage}, nil
	}

	created := &domain.Spec{
		ProjectID: projectID,
		Title:     defaultTitle,
		Content:   content,
		Format:    format,
	}
	if err := g.store.CreateSpec(ctx, created); err != nil {
		return nil, err
	}
	g.log.Info("Spec generation completed",
		logger.String("project_id", projectID),
		logger.String("spec_id", created.ID),
	)
	return &GenerateResult{SpecID: created.ID, Usage: usage}, nil
}
