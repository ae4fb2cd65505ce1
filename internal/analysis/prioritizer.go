package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/llm"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const (
	prioritizeMaxTokens   = 4096
	prioritizeTemperature = 0.2
)

const prioritizeSystemPrompt = `You are a product strategy prioritization expert. Re-score the following insights based on these weighted criteria:
- Impact (40%): How significantly does this affect users or the business?
- Frequency (30%): How often is this mentioned or encountered?
- Actionability (20%): How easy is it to address this insight?
- Urgency (10%): How time-sensitive is this?

For each insight, return:
- insightId: the original insight ID
- severity: new severity score 0-1 (1 = highest priority)
- confidence: new confidence score 0-1
- reasoning: brief explanation of the scoring (1-2 sentences)

Return ONLY a JSON array, no markdown fences.`

// PrioritizerStore is the persistence surface prioritization needs.
type PrioritizerStore interface {
	ListInsightsByProject(ctx context.Context, projectID string) ([]domain.Insight, error)
	UpdateInsightScoring(ctx context.Context, id string, severity, confidence float64, metadata domain.JSONMap) error
}

// PrioritizeResult summarizes one prioritization run.
type PrioritizeResult struct {
	Updated int
	Usage   llm.Usage
}

// Prioritizer re-scores a project's full insight set against the weighted
// rubric, persisting new scores and the model's reasoning.
type Prioritizer struct {
	store PrioritizerStore
	llm   llm.Client
	log   logger.Logger
}

func NewPrioritizer(store PrioritizerStore, client llm.Client, log logger.Logger) *Prioritizer {
	return &Prioritizer{store: store, llm: client, log: log}
}

type insightSummary struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	CurrentSeverity   float64  `json:"currentSeverity"`
	CurrentConfidence float64  `json:"currentConfidence"`
	Tags              []string `json:"tags"`
	SourceCount       int      `json:"sourceCount"`
}

type prioritizedInsight struct {
	InsightID  string  `json:"insightId"`
	Severity   float64 `json:"severity"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Prioritize re-scores every insight of the project in a single model call.
// Returned ids that don't match a stored insight are skipped.
func (p *Prioritizer) Prioritize(ctx context.Context, projectID string) (*PrioritizeResult, error) {
	insights, err := p.store.ListInsightsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(insights) == 0 {
		p.log.Warn("No insights to prioritize", logger.String("project_id", projectID))
		return &PrioritizeResult{}, nil
	}

	summaries := make([]insightSummary, len(insights))
	byID := make(map[string]*domain.Insight, len(insights))
	for i := range insights {
		ins := &insights[i]
		byID[ins.ID] = ins
		summaries[i] = insightSummary{
			ID:                ins.ID,
			Type:              string(ins.Type),
			Title:             ins.Title,
			Description:       ins.Description,
			CurrentSeverity:   ins.Severity,
			CurrentConfidence: ins.Confidence,
			Tags:              ins.Tags,
			SourceCount:       ins.SourceCount,
		}
	}
	summaryJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal insight summaries: %w", err)
	}

	p.log.Info("Prioritizing insights",
		logger.String("project_id", projectID),
		logger.Int("insight_count", len(insights)),
	)

	raw, usage, err := p.llm.Complete(ctx,
		prioritizeSystemPrompt,
		fmt.Sprintf("Prioritize these %d insights:\n\n%s", len(insights), summaryJSON),
		llm.Options{MaxTokens: prioritizeMaxTokens, Temperature: prioritizeTemperature},
	)
	if err != nil {
		return nil, err
	}

	var prioritized []prioritizedInsight
	if err := llm.DecodeJSON(raw, &prioritized); err != nil {
		p.log.Error("Failed to parse prioritization response", logger.Error(err))
		return nil, err
	}

	updated := 0
	for _, item := range prioritized {
		existing, ok := byID[item.InsightID]
		if !ok {
			continue
		}
		meta := existing.Metadata.Clone()
		meta[domain.MetaPrioritizationReasoning] = item.Reasoning
		if err := p.store.UpdateInsightScoring(ctx, item.InsightID, item.Severity, item.Confidence, meta); err != nil {
			return nil, err
		}
		updated++
	}

	p.log.Info("Insight prioritization completed",
		logger.String("project_id", projectID),
		logger.Int("updated", updated),
	)
	return &PrioritizeResult{Updated: updated, Usage: usage}, nil
}
