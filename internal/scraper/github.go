package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const (
	ghDefaultLimit   = 100
	ghMaxLimit       = 300
	ghPageSize       = 100
	ghSearchPageSize = 30
	ghPageDelay      = 500 * time.Millisecond
	ghEnrichDelay    = 300 * time.Millisecond
	ghEnrichTop      = 10
	ghMinComments    = 5
	ghReactionWeight = 2
	ghMaxComments    = 3
	ghCommentMinLen  = 30
	ghCommentMaxLen  = 400
	ghBodyMaxLen     = 2000
	ghAPIVersion     = "2022-11-28"
)

var ghRepoURLRe = regexp.MustCompile(`github\.com/([^/]+)/([^/?#]+)`)

type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	User   *struct {
		Login string `json:"login"`
	} `json:"user"`
	HTMLURL       string `json:"html_url"`
	RepositoryURL string `json:"repository_url"`
	Comments      int    `json:"comments"`
	Reactions     *struct {
		TotalCount int `json:"total_count"`
	} `json:"reactions"`
	CreatedAt   string         `json:"created_at"`
	PullRequest map[string]any `json:"pull_request"`
	Labels      []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

type ghComment struct {
	Body string `json:"body"`
}

type ghSearchResponse struct {
	TotalCount int       `json:"total_count"`
	Items      []ghIssue `json:"items"`
}

// GitHub scrapes open issues from a repo URL or the issue search API,
// tracking the REST quota from response headers. externalId is
// "owner/repo#number" so the same issue found via different sources never
// duplicates.
type GitHub struct {
	store   PostStore
	client  *http.Client
	limiter *QuotaLimiter
	token   string
	log     logger.Logger

	// BaseURL is the API root; overridable in tests.
	BaseURL string
}

func NewGitHub(store PostStore, client *http.Client, limiter *QuotaLimiter, token string, log logger.Logger) *GitHub {
	return &GitHub{
		store:   store,
		client:  client,
		limiter: limiter,
		token:   token,
		log:     log,
		BaseURL: "https://api.github.com",
	}
}

func (g *GitHub) Platform() domain.Platform { return domain.PlatformGitHub }

func (g *GitHub) headers() map[string]string {
	h := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": ghAPIVersion,
	}
	if g.token != "" {
		h["Authorization"] = "Bearer " + g.token
	}
	return h
}

func (g *GitHub) Scrape(ctx context.Context, src *domain.Source) (*Result, error) {
	cfg, err := src.ParseConfig()
	if err != nil {
		return nil, err
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = ghDefaultLimit
	}
	limit = min(limit, ghMaxLimit)

	var result *Result
	if ghRepoURLRe.MatchString(src.URL) {
		result, err = g.scrapeRepo(ctx, src, limit)
	} else {
		result, err = g.scrapeSearch(ctx, src, limit)
	}
	if err != nil {
		return nil, err
	}

	if err := g.enrich(ctx, src, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (g *GitHub) scrapeRepo(ctx context.Context, src *domain.Source, limit int) (*Result, error) {
	m := ghRepoURLRe.FindStringSubmatch(src.URL)
	if len(m) < 3 {
		return nil, fmt.Errorf("invalid GitHub repo URL: %s", src.URL)
	}
	owner, repo := m[1], m[2]

	result := &Result{}
	maxPages := (limit + ghPageSize - 1) / ghPageSize
	for page := 1; page <= maxPages && result.PostsFound < limit; page++ {
		if err := g.limiter.Check(ctx, 10); err != nil {
			if errors.Is(err, ErrRateLimited) {
				result.RateLimitSkips++
				break
			}
			return nil, err
		}

		apiURL := fmt.Sprintf("%s/repos/%s/%s/issues?state=open&sort=comments&direction=desc&per_page=%d&page=%d",
			g.BaseURL, owner, repo, ghPageSize, page)
		g.log.Info("Fetching GitHub repo issues",
			logger.String("url", apiURL),
			logger.Int("page", page),
		)

		var issues []ghIssue
		res, err := getJSON(ctx, g.client, apiURL, g.headers(), &issues)
		if res != nil {
			g.limiter.Update(res.Header)
		}
		if err != nil {
			return nil, fmt.Errorf("github issues: %w", err)
		}
		if len(issues) == 0 {
			break
		}

		for i := range issues {
			if result.PostsFound >= limit {
				break
			}
			// The issues endpoint also returns PRs.
			if issues[i].PullRequest != nil {
				continue
			}
			if err := g.upsertIssue(ctx, src.ID, &issues[i]); err != nil {
				return nil, err
			}
			result.PostsFound++
		}

		if page < maxPages && result.PostsFound < limit {
			if err := sleep(ctx, ghPageDelay); err != nil {
				return nil, err
			}
		}
	}

	g.log.Info("GitHub repo scrape completed",
		logger.String("source_id", src.ID),
		logger.String("owner", owner),
		logger.String("repo", repo),
		logger.Int("posts", result.PostsFound),
	)
	return result, nil
}

func (g *GitHub) scrapeSearch(ctx context.Context, src *domain.Source, limit int) (*Result, error) {
	result := &Result{}
	if err := g.limiter.Check(ctx, 5); err != nil {
		if errors.Is(err, ErrRateLimited) {
			result.RateLimitSkips++
			return result, nil
		}
		return nil, err
	}

	query := url.QueryEscape(src.URL + " type:issue state:open")
	apiURL := fmt.Sprintf("%s/search/issues?q=%s&sort=comments&order=desc&per_page=%d",
		g.BaseURL, query, min(limit, ghSearchPageSize))

	g.log.Info("Searching GitHub issues", logger.String("query", src.URL))

	var data ghSearchResponse
	res, err := getJSON(ctx, g.client, apiURL, g.headers(), &data)
	if res != nil {
		g.limiter.Update(res.Header)
	}
	if err != nil {
		return nil, fmt.Errorf("github search: %w", err)
	}

	for i := range data.Items {
		if result.PostsFound >= limit {
			break
		}
		if data.Items[i].PullRequest != nil {
			continue
		}
		if err := g.upsertIssue(ctx, src.ID, &data.Items[i]); err != nil {
			return nil, err
		}
		result.PostsFound++
	}

	g.log.Info("GitHub search scrape completed",
		logger.String("source_id", src.ID),
		logger.String("query", src.URL),
		logger.Int("posts", result.PostsFound),
	)
	return result, nil
}

func (g *GitHub) upsertIssue(ctx context.Context, sourceID string, issue *ghIssue) error {
	repoPath := strings.TrimPrefix(issue.RepositoryURL, g.BaseURL+"/repos/")
	externalID := fmt.Sprintf("%s#%d", repoPath, issue.Number)

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.Name)
	}
	reactions := 0
	if issue.Reactions != nil {
		reactions = issue.Reactions.TotalCount
	}
	author := ""
	if issue.User != nil {
		author = issue.User.Login
	}

	post := &domain.RawPost{
		SourceID:   sourceID,
		ExternalID: externalID,
		Platform:   domain.PlatformGitHub,
		Title:      issue.Title,
		Body:       truncate(issue.Body, ghBodyMaxLen),
		Author:     author,
		URL:        issue.HTMLURL,
		// Comment count is the engagement proxy for issues.
		Score: issue.Comments,
		Metadata: domain.JSONMap{
			"comments":    issue.Comments,
			"reactions":   reactions,
			"labels":      labels,
			"repo":        repoPath,
			"issueNumber": issue.Number,
		},
	}
	if t, err := time.Parse(time.RFC3339, issue.CreatedAt); err == nil {
		utc := t.UTC()
		post.PostedAt = &utc
	}

	if err := g.store.UpsertPost(ctx, post); err != nil {
		return fmt.Errorf("upsert github issue %s: %w", externalID, err)
	}
	return nil
}

// enrich caches the first comments of the most engaged issues. Ranked by
// comments + reactions boost; stops early when the quota runs out.
func (g *GitHub) enrich(ctx context.Context, src *domain.Source, result *Result) error {
	posts, err := g.store.ListPostsBySource(ctx, src.ID, 100)
	if err != nil {
		return fmt.Errorf("list posts for enrichment: %w", err)
	}

	var candidates []domain.RawPost
	for _, p := range posts {
		if p.Metadata.Int("comments") >= ghMinComments &&
			!p.Enriched() &&
			p.Metadata.String("repo") != "" &&
			p.Metadata.Int("issueNumber") > 0 {
			candidates = append(candidates, p)
		}
	}
	candidates = rankByEngagement(candidates, "reactions", ghReactionWeight)
	if len(candidates) > ghEnrichTop {
		candidates = candidates[:ghEnrichTop]
	}

	for _, post := range candidates {
		if err := g.limiter.Check(ctx, 5); err != nil {
			if errors.Is(err, ErrRateLimited) {
				g.log.Warn("Rate limit too low, stopping comment enrichment early",
					logger.String("source_id", src.ID),
				)
				result.RateLimitSkips++
				return nil
			}
			return err
		}

		comments, err := g.fetchComments(ctx, post.Metadata.String("repo"), post.Metadata.Int("issueNumber"))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.Warn("Failed to enrich GitHub issue",
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
		if err := g.store.UpdatePostMetadata(ctx, post.ID, meta); err != nil {
			result.EnrichFailures = append(result.EnrichFailures, EnrichFailure{PostID: post.ID, Err: err})
			continue
		}
		g.log.Debug("GitHub comments enriched",
			logger.String("post_id", post.ID),
			logger.Int("count", len(comments)),
		)

		if err := sleep(ctx, ghEnrichDelay); err != nil {
			return err
		}
	}
	return nil
}

func (g *GitHub) fetchComments(ctx context.Context, repo string, issueNumber int) ([]string, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/issues/%d/comments?per_page=5", g.BaseURL, repo, issueNumber)

	var raw []ghComment
	res, err := getJSON(ctx, g.client, apiURL, g.headers(), &raw)
	if res != nil {
		g.limiter.Update(res.Header)
	}
	if err != nil {
		return nil, err
	}

	var comments []string
	for _, c := range raw {
		if len(strings.TrimSpace(c.Body)) <= ghCommentMinLen {
			continue
		}
		comments = append(comments, truncate(c.Body, ghCommentMaxLen))
		if len(comments) >= ghMaxComments {
			break
		}
	}
	return comments, nil
}
