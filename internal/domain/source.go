// Package domain defines the data model shared across the pipeline.
package domain

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Platform identifies an external content platform.
type Platform string

const (
	PlatformReddit      Platform = "REDDIT"
	PlatformHackerNews  Platform = "HACKERNEWS"
	PlatformProductHunt Platform = "PRODUCTHUNT"
	PlatformGitHub      Platform = "GITHUB"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformReddit, PlatformHackerNews, PlatformProductHunt, PlatformGitHub:
		return true
	}
	return false
}

// Source is a configured platform location (subreddit, repo, search query)
// scraped on behalf of a project. The URL doubles as a feed locator or a
// free-text search query depending on platform heuristics.
type Source struct {
	ID        string    `db:"id"         json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Platform  Platform  `db:"platform"   json:"platform"`
	URL       string    `db:"url"        json:"url"`
	Config    JSONMap   `db:"config"     json:"config"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SourceConfig is the platform-specific scrape configuration stored in
// Source.Config. Fields irrelevant to a platform are simply ignored.
type SourceConfig struct {
	Limit     int    `mapstructure:"limit"`
	Sort      string `mapstructure:"sort"`
	Timeframe string `mapstructure:"timeframe"`
	Tags      string `mapstructure:"tags"`
	Topic     string `mapstructure:"topic"`
	Auto      bool   `mapstructure:"auto"`
}

// ParseConfig decodes the source's raw config into a typed SourceConfig.
func (s *Source) ParseConfig() (SourceConfig, error) {
	var cfg SourceConfig
	if s.Config == nil {
		return cfg, nil
	}
	if err := mapstructure.WeakDecode(map[string]any(s.Config), &cfg); err != nil {
		return cfg, fmt.Errorf("decode source config: %w", err)
	}
	return cfg, nil
}

// Project is the owning entity for sources and insights. Its lifecycle is
// managed by the API layer; the pipeline only reads it.
type Project struct {
	ID          string      `db:"id"          json:"id"`
	Name        string      `db:"name"        json:"name"`
	Description string      `db:"description" json:"description"`
	Niche       string      `db:"niche"       json:"niche"`
	Keywords    StringArray `db:"keywords"    json:"keywords"`
	CreatedAt   time.Time   `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"  json:"updated_at"`
}
