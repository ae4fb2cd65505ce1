package domain

import "time"

// Metadata keys shared across platforms.
const (
	MetaTopComments = "topComments"
)

// RawPost is a single ingested platform item (post, issue, story).
// (platform, external_id) is globally unique; re-scraping the same item
// refreshes the score and merges metadata, never duplicating the row or
// discarding cached enrichment.
type RawPost struct {
	ID         string     `db:"id"          json:"id"`
	SourceID   string     `db:"source_id"   json:"source_id"`
	ExternalID string     `db:"external_id" json:"external_id"`
	Platform   Platform   `db:"platform"    json:"platform"`
	Title      string     `db:"title"       json:"title"`
	Body       string     `db:"body"        json:"body"`
	Author     string     `db:"author"      json:"author"`
	URL        string     `db:"url"         json:"url"`
	Score      int        `db:"score"       json:"score"`
	PostedAt   *time.Time `db:"posted_at"   json:"posted_at,omitempty"`
	Metadata   JSONMap    `db:"metadata"    json:"metadata"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
}

// Enriched reports whether the post already carries cached top comments.
func (p *RawPost) Enriched() bool {
	return p.Metadata != nil && len(p.Metadata.StringSlice(MetaTopComments)) > 0
}

// ScrapeJobStatus is the lifecycle state of a scrape invocation.
type ScrapeJobStatus string

const (
	ScrapeJobPending   ScrapeJobStatus = "PENDING"
	ScrapeJobRunning   ScrapeJobStatus = "RUNNING"
	ScrapeJobCompleted ScrapeJobStatus = "COMPLETED"
	ScrapeJobFailed    ScrapeJobStatus = "FAILED"
)

// ScrapeJob records one scrape invocation against a source. Created PENDING
// before enqueue, transitioned by the worker, never deleted by the pipeline.
type ScrapeJob struct {
	ID          string          `db:"id"           json:"id"`
	SourceID    string          `db:"source_id"    json:"source_id"`
	Status      ScrapeJobStatus `db:"status"       json:"status"`
	StartedAt   *time.Time      `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	Error       string          `db:"error"        json:"error,omitempty"`
	PostsFound  int             `db:"posts_found"  json:"posts_found"`
	CreatedAt   time.Time       `db:"created_at"   json:"created_at"`
}
