package domain

import (
	"errors"
	"fmt"
)

// JobKind is the closed set of background job types. Dispatch is exhaustive;
// an unknown kind is a deploy mismatch and is never retried.
type JobKind string

const (
	JobScrape     JobKind = "scrape"
	JobAnalyze    JobKind = "analyze"
	JobGenerate   JobKind = "generate"
	JobScrapeAll  JobKind = "scrape-all"
	JobAnalyzeNew JobKind = "analyze-new"
)

// ErrUnknownJobKind marks a job whose kind is not in the dispatch table.
var ErrUnknownJobKind = errors.New("unknown job kind")

// ParseJobKind validates a job kind string.
func ParseJobKind(s string) (JobKind, error) {
	switch k := JobKind(s); k {
	case JobScrape, JobAnalyze, JobGenerate, JobScrapeAll, JobAnalyzeNew:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownJobKind, s)
	}
}

// ScrapePayload is the payload of a scrape job.
type ScrapePayload struct {
	SourceID string `json:"sourceId"`
}

// AnalyzePayload is the payload of an analyze job.
type AnalyzePayload struct {
	ProjectID string `json:"projectId"`
}

// GeneratePayload is the payload of a generate job. SpecID may be empty, in
// which case a new MARKDOWN spec row is created.
type GeneratePayload struct {
	ProjectID string `json:"projectId"`
	SpecID    string `json:"specId,omitempty"`
}
