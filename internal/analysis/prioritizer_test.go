package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
)

func TestPrioritize(t *testing.T) {
	store := newFakeAnalysisStore()
	store.insights = []domain.Insight{
		{
			ID:         "ins-1",
			ProjectID:  "proj-1",
			Type:       domain.InsightPainPoint,
			Title:      "Exports fail on large datasets",
			Severity:   0.5,
			Confidence: 0.5,
			Metadata:   domain.JSONMap{"competitorName": "keepme"},
		},
		{
			ID:        "ins-2",
			ProjectID: "proj-1",
			Type:      domain.InsightTrend,
			Title:     "Interest in streaming exports",
		},
	}

	client := &fakeLLM{response: `[
		{"insightId": "ins-1", "severity": 0.9, "confidence": 0.85, "reasoning": "Affects most users weekly and is straightforward to fix."},
		{"insightId": "ins-unknown", "severity": 0.1, "confidence": 0.1, "reasoning": "Not a stored insight."}
	]`}

	p := NewPrioritizer(store, client, logger.NewNopLogger())
	result, err := p.Prioritize(context.Background(), "proj-1")
	require.NoError(t, err)

	// Unknown ids from the model are skipped.
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, int64(300), result.Usage.OutputTokens)

	update, ok := store.scoreUpdates["ins-1"]
	require.True(t, ok)
	assert.Equal(t, 0.9, update.severity)
	assert.Equal(t, 0.85, update.confidence)

	// Reasoning lands in metadata without clobbering existing keys.
	meta := store.scoringMeta["ins-1"]
	assert.Equal(t, "Affects most users weekly and is straightforward to fix.", meta.String(domain.MetaPrioritizationReasoning))
	assert.Equal(t, "keepme", meta.String("competitorName"))

	_, touched := store.scoreUpdates["ins-unknown"]
	assert.False(t, touched)
}

func TestPrioritizeNoInsights(t *testing.T) {
	store := newFakeAnalysisStore()
	client := &fakeLLM{}

	p := NewPrioritizer(store, client, logger.NewNopLogger())
	result, err := p.Prioritize(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
	assert.Zero(t, client.calls)
}

func TestPrioritizeBadResponse(t *testing.T) {
	store := newFakeAnalysisStore()
	store.insights = []domain.Insight{{ID: "ins-1", Title: "Something"}}
	client := &fakeLLM{response: "sorry, no JSON today"}

	p := NewPrioritizer(store, client, logger.NewNopLogger())
	_, err := p.Prioritize(context.Background(), "proj-1")
	require.Error(t, err)
	assert.Empty(t, store.scoreUpdates)
}
