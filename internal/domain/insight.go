package domain

import "time"

// InsightType classifies a distilled finding.
type InsightType string

const (
	InsightPainPoint      InsightType = "PAIN_POINT"
	InsightFeatureRequest InsightType = "FEATURE_REQUEST"
	InsightCompetitor     InsightType = "COMPETITOR"
	InsightTrend          InsightType = "TREND"
	InsightSentiment      InsightType = "SENTIMENT"
)

// Valid reports whether t is a known insight type.
func (t InsightType) Valid() bool {
	switch t {
	case InsightPainPoint, InsightFeatureRequest, InsightCompetitor, InsightTrend, InsightSentiment:
		return true
	}
	return false
}

// ThreatLevel grades a competitor insight.
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MEDIUM"
	ThreatHigh   ThreatLevel = "HIGH"
)

// Metadata keys used on insights.
const (
	MetaPrioritizationReasoning = "prioritizationReasoning"
	MetaCompetitorName          = "competitorName"
	MetaThreatLevel             = "threatLevel"
)

// Insight is a typed, scored finding derived from a batch of raw posts.
// Severity and confidence are both on a 0-1 scale.
type Insight struct {
	ID          string      `db:"id"          json:"id"`
	ProjectID   string      `db:"project_id"  json:"project_id"`
	Type        InsightType `db:"type"        json:"type"`
	Title       string      `db:"title"       json:"title"`
	Description string      `db:"description" json:"description"`
	Severity    float64     `db:"severity"    json:"severity"`
	Confidence  float64     `db:"confidence"  json:"confidence"`
	Tags        StringArray `db:"tags"        json:"tags"`
	Metadata    JSONMap     `db:"metadata"    json:"metadata"`
	CreatedAt   time.Time   `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"  json:"updated_at"`

	// SourceCount is populated by list queries joining insight_sources.
	SourceCount int `db:"source_count" json:"source_count"`
}

// InsightSource is the evidentiary link between an insight and a raw post.
// Unique on (insight_id, raw_post_id); never drives merge decisions.
type InsightSource struct {
	InsightID      string  `db:"insight_id"      json:"insight_id"`
	RawPostID      string  `db:"raw_post_id"     json:"raw_post_id"`
	RelevanceScore float64 `db:"relevance_score" json:"relevance_score"`
}

// SpecFormat selects the generated document flavor.
type SpecFormat string

const (
	SpecMarkdown     SpecFormat = "MARKDOWN"
	SpecArchitecture SpecFormat = "CLAUDE_CODE"
	SpecIssueTracker SpecFormat = "LINEAR"
)

// SpecPlaceholder is the sentinel written by the API layer when a spec row is
// created ahead of async generation; clients poll until content changes.
const SpecPlaceholder = "Generating..."

// Spec is a generated product document.
type Spec struct {
	ID        string     `db:"id"         json:"id"`
	ProjectID string     `db:"project_id" json:"project_id"`
	Title     string     `db:"title"      json:"title"`
	Content   string     `db:"content"    json:"content"`
	Format    SpecFormat `db:"format"     json:"format"`
	Version   int        `db:"version"    json:"version"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
