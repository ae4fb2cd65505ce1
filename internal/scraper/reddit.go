package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const (
	redditDefaultLimit  = 100
	redditMaxLimit      = 500
	redditMaxPages      = 5
	redditPageSize      = 25
	redditPageDelay     = 1500 * time.Millisecond
	redditEnrichTop     = 8
	redditMinComments   = 10
	redditCommentWeight = 2
	redditMaxComments   = 3
	redditCommentLen    = 400
)

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Author      string  `json:"author"`
				Permalink   string  `json:"permalink"`
				Score       int     `json:"score"`
				CreatedUTC  float64 `json:"created_utc"`
				NumComments int     `json:"num_comments"`
				Subreddit   string  `json:"subreddit"`
				Body        string  `json:"body"`
			} `json:"data"`
		} `json:"children"`
		After string `json:"after"`
	} `json:"data"`
}

// Reddit scrapes subreddit listings via the public JSON endpoints.
type Reddit struct {
	store     PostStore
	client    *http.Client
	userAgent string
	pageDelay time.Duration
	log       logger.Logger

	// BaseURL overrides the source URL host; used by tests.
	BaseURL string
}

func NewReddit(store PostStore, client *http.Client, userAgent string, log logger.Logger) *Reddit {
	return &Reddit{
		store:     store,
		client:    client,
		userAgent: userAgent,
		pageDelay: redditPageDelay,
		log:       log,
	}
}

func (r *Reddit) Platform() domain.Platform { return domain.PlatformReddit }

// Scrape pages through the subreddit listing, upserting every post, then
// enriches the most engaged stored posts with top comments.
func (r *Reddit) Scrape(ctx context.Context, src *domain.Source) (*Result, error) {
	cfg, err := src.ParseConfig()
	if err != nil {
		return nil, err
	}
	sort := cfg.Sort
	if sort == "" {
		sort = "hot"
	}
	timeframe := cfg.Timeframe
	if timeframe == "" {
		timeframe = "week"
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = redditDefaultLimit
	}
	limit = min(limit, redditMaxLimit)

	baseURL := strings.TrimSuffix(src.URL, "/")
	if r.BaseURL != "" {
		if u, parseErr := url.Parse(baseURL); parseErr == nil {
			baseURL = r.BaseURL + u.Path
		}
	}
	if !strings.Contains(baseURL, "/r/") {
		return nil, fmt.Errorf("invalid subreddit URL: %s", src.URL)
	}

	result := &Result{}
	after := ""
	for page := 0; page < redditMaxPages && result.PostsFound < limit; page++ {
		pageURL := fmt.Sprintf("%s/%s.json?limit=%d&t=%s&raw_json=1",
			baseURL, sort, redditPageSize, url.QueryEscape(timeframe))
		if after != "" {
			pageURL += "&after=" + url.QueryEscape(after)
		}

		r.log.Info("Fetching Reddit page",
			logger.String("url", pageURL),
			logger.Int("page", page),
		)

		var listing redditListing
		if _, err := getJSON(ctx, r.client, pageURL, map[string]string{"User-Agent": r.userAgent}, &listing); err != nil {
			return nil, fmt.Errorf("reddit listing: %w", err)
		}
		if len(listing.Data.Children) == 0 {
			break
		}

		for _, child := range listing.Data.Children {
			if result.PostsFound >= limit {
				break
			}
			d := child.Data
			postedAt := time.Unix(int64(d.CreatedUTC), 0).UTC()
			post := &domain.RawPost{
				SourceID:   src.ID,
				ExternalID: d.ID,
				Platform:   domain.PlatformReddit,
				Title:      d.Title,
				Body:       d.Selftext,
				Author:     d.Author,
				URL:        "https://www.reddit.com" + d.Permalink,
				Score:      d.Score,
				PostedAt:   &postedAt,
				Metadata: domain.JSONMap{
					"numComments": d.NumComments,
					"subreddit":   d.Subreddit,
					"permalink":   d.Permalink,
				},
			}
			if err := r.store.UpsertPost(ctx, post); err != nil {
				return nil, fmt.Errorf("upsert reddit post %s: %w", d.ID, err)
			}
			result.PostsFound++
		}

		after = listing.Data.After
		if after == "" {
			break
		}
		if page < redditMaxPages-1 {
			if err := sleep(ctx, r.pageDelay); err != nil {
				return nil, err
			}
		}
	}

	if err := r.enrich(ctx, src, result); err != nil {
		return nil, err
	}

	r.log.Info("Reddit scrape completed",
		logger.String("source_id", src.ID),
		logger.Int("posts", result.PostsFound),
		logger.Int("enrich_failures", len(result.EnrichFailures)),
	)
	return result, nil
}

// enrich fetches top comments for the source's most engaged stored posts.
// Already-enriched posts and posts with too few comments are skipped.
func (r *Reddit) enrich(ctx context.Context, src *domain.Source, result *Result) error {
	posts, err := r.store.ListPostsBySource(ctx, src.ID, redditMaxLimit)
	if err != nil {
		return fmt.Errorf("list posts for enrichment: %w", err)
	}

	candidates := rankByEngagement(posts, "numComments", redditCommentWeight)
	enriched := 0
	for _, post := range candidates {
		if enriched >= redditEnrichTop {
			break
		}
		if post.Enriched() || post.Metadata.Int("numComments") < redditMinComments {
			continue
		}
		enriched++

		comments, err := r.fetchComments(ctx, post.Metadata.String("permalink"))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Warn("Failed to enrich Reddit post",
				logger.String("post_id", post.ID),
				logger.Error(err),
			)
			result.EnrichFailures = append(result.EnrichFailures, EnrichFailure{PostID: post.ID, Err: err})
			continue
		}
		if len(comments) == 0 {
			continue
		}

		meta := post.Metadata.Clone()
		meta[domain.MetaTopComments] = comments
		if err := r.store.UpdatePostMetadata(ctx, post.ID, meta); err != nil {
			result.EnrichFailures = append(result.EnrichFailures, EnrichFailure{PostID: post.ID, Err: err})
			continue
		}

		if err := sleep(ctx, r.pageDelay); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reddit) fetchComments(ctx context.Context, permalink string) ([]string, error) {
	if permalink == "" {
		return nil, fmt.Errorf("post has no permalink")
	}
	base := "https://www.reddit.com"
	if r.BaseURL != "" {
		base = r.BaseURL
	}
	commentURL := base + strings.TrimSuffix(permalink, "/") + ".json?limit=20&raw_json=1"

	// The comments endpoint returns a two-element array: the post listing
	// followed by the comment listing.
	var listings []redditListing
	if _, err := getJSON(ctx, r.client, commentURL, map[string]string{"User-Agent": r.userAgent}, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}

	var comments []string
	for _, child := range listings[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		body := strings.TrimSpace(child.Data.Body)
		if body == "" || body == "[deleted]" || body == "[removed]" || len(body) < 20 {
			continue
		}
		comments = append(comments, truncate(body, redditCommentLen))
		if len(comments) >= redditMaxComments {
			break
		}
	}
	return comments, nil
}

// rankByEngagement sorts posts by score + metadata[commentKey] * weight,
// descending.
func rankByEngagement(posts []domain.RawPost, commentKey string, weight int) []domain.RawPost {
	ranked := make([]domain.RawPost, len(posts))
	copy(ranked, posts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return engagement(&ranked[i], commentKey, weight) > engagement(&ranked[j], commentKey, weight)
	})
	return ranked
}

func engagement(p *domain.RawPost, commentKey string, weight int) int {
	return p.Score + p.Metadata.Int(commentKey)*weight
}
