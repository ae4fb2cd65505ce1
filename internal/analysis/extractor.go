// Package analysis turns batches of raw posts into merged, scored insights
// via two LLM stages: extraction (with dedup against existing insights) and
// prioritization (re-scoring against a weighted rubric).
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/llm"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const (
	candidatePoolSize  = 200
	analysisBatchSize  = 50
	postBodyMaxLen     = 1500
	keywordFilterFloor = 10
	titleKeyLen        = 30

	extractMaxTokens   = 8192
	extractTemperature = 0.3
)

const extractSystemPrompt = `You are a product research and competitive intelligence analyst. Analyze the following community posts for the project described below.

Project Context:
- Name: %s
- Niche: %s
- Keywords: %s

Return a JSON object with exactly two keys:

1. "insights": array of general product insights. Each item:
   - type: one of PAIN_POINT, FEATURE_REQUEST, TREND, SENTIMENT
   - title: concise title (max 100 chars)
   - description: detailed description (2-3 sentences)
   - severity: 0-1 scale (1 = most severe/important)
   - confidence: 0-1 scale (1 = most confident)
   - tags: array of relevant tags (lowercase, max 5)
   - sourcePostIds: array of post IDs that support this insight

2. "competitors": array of competitor mentions. Each item:
   - type: always "COMPETITOR"
   - title: competitor name
   - description: brief overview (2-3 sentences)
   - severity: threat level 0-1 (1 = highest threat)
   - confidence: 0-1 confidence score
   - tags: relevant tags (lowercase, max 5)
   - sourcePostIds: post IDs that mention this competitor
   - metadata: { competitorName: string, strengths: string[], weaknesses: string[], marketPosition: string, threatLevel: "LOW"|"MEDIUM"|"HIGH" }

Return ONLY the JSON object, no markdown fences or other text.`

// ExtractorStore is the persistence surface extraction needs.
type ExtractorStore interface {
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	ListSourcesByProject(ctx context.Context, projectID string) ([]domain.Source, error)
	ListPostsBySources(ctx context.Context, sourceIDs []string, limit int) ([]domain.RawPost, error)
	ListInsightsByProject(ctx context.Context, projectID string) ([]domain.Insight, error)
	CreateInsight(ctx context.Context, insight *domain.Insight) error
	UpdateInsightScores(ctx context.Context, id string, severity, confidence float64) error
	UpsertInsightSource(ctx context.Context, insightID, rawPostID string, relevance float64) error
}

// ExtractResult summarizes one extraction run.
type ExtractResult struct {
	Insights    int
	Competitors int
	CacheHit    bool
	Usage       llm.Usage
}

// Extractor runs the combined insight/competitor extraction stage.
type Extractor struct {
	store    ExtractorStore
	llm      llm.Client
	cache    *redis.Client
	cacheTTL time.Duration
	log      logger.Logger
}

func NewExtractor(store ExtractorStore, client llm.Client, cache *redis.Client, cacheTTL time.Duration, log logger.Logger) *Extractor {
	if cacheTTL <= 0 {
		cacheTTL = 6 * time.Hour
	}
	return &Extractor{
		store:    store,
		llm:      client,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

type llmInsight struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Severity      float64        `json:"severity"`
	Confidence    float64        `json:"confidence"`
	Tags          []string       `json:"tags"`
	SourcePostIDs []string       `json:"sourcePostIds"`
	Metadata      map[string]any `json:"metadata"`
}

type combinedResponse struct {
	Insights    []llmInsight `json:"insights"`
	Competitors []llmInsight `json:"competitors"`
}

type postSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Score    int    `json:"score"`
	Platform string `json:"platform"`
}

// Extract selects the project's analysis batch, calls the model once for both
// insights and competitor mentions, and saves or merges every returned item.
// A cache hit on the exact batch short-circuits before the model call.
func (e *Extractor) Extract(ctx context.Context, projectID string) (*ExtractResult, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	sources, err := e.store.ListSourcesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		e.log.Warn("No sources found for project", logger.String("project_id", projectID))
		return &ExtractResult{}, nil
	}
	sourceIDs := make([]string, len(sources))
	for i, s := range sources {
		sourceIDs[i] = s.ID
	}

	posts, err := e.store.ListPostsBySources(ctx, sourceIDs, candidatePoolSize)
	if err != nil {
		return nil, err
	}
	posts = selectBatch(posts, project.Keywords)
	if len(posts) == 0 {
		e.log.Warn("No posts found for analysis", logger.String("project_id", projectID))
		return &ExtractResult{}, nil
	}

	cacheKey := batchCacheKey(projectID, posts)
	if hit, err := e.cache.Exists(ctx, cacheKey).Result(); err == nil && hit > 0 {
		e.log.Info("Analysis cache hit, skipping model call", logger.String("project_id", projectID))
		return &ExtractResult{CacheHit: true}, nil
	}

	summaries := make([]postSummary, len(posts))
	for i, p := range posts {
		summaries[i] = postSummary{
			ID:       p.ID,
			Title:    p.Title,
			Body:     truncate(p.Body, postBodyMaxLen),
			Score:    p.Score,
			Platform: string(p.Platform),
		}
	}
	summaryJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal post summaries: %w", err)
	}

	niche := project.Niche
	if niche == "" {
		niche = "General"
	}
	system := fmt.Sprintf(extractSystemPrompt, project.Name, niche, strings.Join(project.Keywords, ", "))
	user := fmt.Sprintf("Analyze these %d community posts:\n\n%s", len(posts), summaryJSON)

	e.log.Info("Extracting insights and competitors",
		logger.String("project_id", projectID),
		logger.Int("post_count", len(posts)),
	)

	raw, usage, err := e.llm.Complete(ctx, system, user, llm.Options{
		MaxTokens:   extractMaxTokens,
		Temperature: extractTemperature,
	})
	if err != nil {
		return nil, err
	}

	var parsed combinedResponse
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		e.log.Error("Failed to parse extraction response", logger.Error(err))
		return nil, err
	}
	if err := validateItems(parsed); err != nil {
		return nil, err
	}

	existing, err := e.store.ListInsightsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	postIDs := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		postIDs[p.ID] = struct{}{}
	}

	for _, item := range parsed.Insights {
		if err := e.saveOrMerge(ctx, projectID, item, existing, postIDs); err != nil {
			return nil, err
		}
	}
	for _, comp := range parsed.Competitors {
		if err := e.saveOrMerge(ctx, projectID, comp, existing, postIDs); err != nil {
			return nil, err
		}
	}

	if err := e.cache.Set(ctx, cacheKey, "1", e.cacheTTL).Err(); err != nil {
		e.log.Warn("Failed to store analysis cache key", logger.Error(err))
	}

	e.log.Info("Insight extraction completed",
		logger.String("project_id", projectID),
		logger.Int("insights", len(parsed.Insights)),
		logger.Int("competitors", len(parsed.Competitors)),
	)
	return &ExtractResult{
		Insights:    len(parsed.Insights),
		Competitors: len(parsed.Competitors),
		Usage:       usage,
	}, nil
}

// selectBatch applies the project keyword filter to the score-ranked pool and
// caps the batch. The filter only applies when it leaves enough signal.
func selectBatch(posts []domain.RawPost, keywords []string) []domain.RawPost {
	if len(keywords) > 0 {
		lowered := make([]string, len(keywords))
		for i, k := range keywords {
			lowered[i] = strings.ToLower(k)
		}
		var filtered []domain.RawPost
		for _, p := range posts {
			text := strings.ToLower(p.Title + " " + p.Body)
			for _, kw := range lowered {
				if strings.Contains(text, kw) {
					filtered = append(filtered, p)
					break
				}
			}
		}
		if len(filtered) >= keywordFilterFloor {
			posts = filtered
		}
	}
	if len(posts) > analysisBatchSize {
		posts = posts[:analysisBatchSize]
	}
	return posts
}

// batchCacheKey hashes the exact post id sequence so the cache only matches
// an identical batch.
func batchCacheKey(projectID string, posts []domain.RawPost) string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return "analysis:" + projectID + ":" + hex.EncodeToString(sum[:])
}

func validateItems(parsed combinedResponse) error {
	for _, item := range parsed.Insights {
		t := domain.InsightType(item.Type)
		if !t.Valid() || t == domain.InsightCompetitor {
			return fmt.Errorf("invalid insight type %q for %q", item.Type, item.Title)
		}
	}
	for _, comp := range parsed.Competitors {
		if domain.InsightType(comp.Type) != domain.InsightCompetitor {
			return fmt.Errorf("invalid competitor type %q for %q", comp.Type, comp.Title)
		}
	}
	return nil
}

// saveOrMerge creates a new insight or merges into an existing one with the
// same type and a matching title prefix, averaging the scores. Source links
// referencing posts outside the analyzed batch are dropped.
func (e *Extractor) saveOrMerge(ctx context.Context, projectID string, item llmInsight, existing []domain.Insight, batch map[string]struct{}) error {
	titleKey := strings.ToLower(item.Title)
	if len(titleKey) > titleKeyLen {
		titleKey = titleKey[:titleKeyLen]
	}

	var validPostIDs []string
	for _, id := range item.SourcePostIDs {
		if _, ok := batch[id]; ok {
			validPostIDs = append(validPostIDs, id)
		}
	}

	for _, dup := range existing {
		if string(dup.Type) != item.Type || !strings.Contains(strings.ToLower(dup.Title), titleKey) {
			continue
		}
		severity := (dup.Severity + item.Severity) / 2
		confidence := (dup.Confidence + item.Confidence) / 2
		if err := e.store.UpdateInsightScores(ctx, dup.ID, severity, confidence); err != nil {
			return err
		}
		for _, postID := range validPostIDs {
			if err := e.store.UpsertInsightSource(ctx, dup.ID, postID, item.Confidence); err != nil {
				return err
			}
		}
		return nil
	}

	insight := &domain.Insight{
		ProjectID:   projectID,
		Type:        domain.InsightType(item.Type),
		Title:       item.Title,
		Description: item.Description,
		Severity:    item.Severity,
		Confidence:  item.Confidence,
		Tags:        domain.StringArray(item.Tags),
		Metadata:    domain.JSONMap(item.Metadata),
	}
	if insight.Metadata == nil {
		insight.Metadata = domain.JSONMap{}
	}
	if err := e.store.CreateInsight(ctx, insight); err != nil {
		return err
	}
	for _, postID := range validPostIDs {
		if err := e.store.UpsertInsightSource(ctx, insight.ID, postID, item.Confidence); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
