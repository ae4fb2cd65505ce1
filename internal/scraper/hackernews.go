package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const (
	hnDefaultLimit     = 50
	hnMaxLimit         = 200
	hnSearchMaxPage    = 50
	hnBatchSize        = 5
	hnBatchDelay       = 200 * time.Millisecond
	hnEnrichTop        = 8
	hnMinDescendants   = 10
	hnDescendantWeight = 3
	hnStoredKids       = 5
	hnCommentsPerPost  = 3
	hnCommentMinLen    = 30
	hnCommentMaxLen    = 400
)

var hnFeedTypes = []string{"topstories", "newstories", "beststories"}

type hnItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	By          string `json:"by"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Time        int64  `json:"time"`
	Type        string `json:"type"`
	Descendants int    `json:"descendants"`
	Kids        []int  `json:"kids"`
}

type algoliaResponse struct {
	Hits []struct {
		ObjectID    string   `json:"objectID"`
		Title       string   `json:"title"`
		StoryText   string   `json:"story_text"`
		Author      string   `json:"author"`
		URL         string   `json:"url"`
		Points      int      `json:"points"`
		CreatedAt   string   `json:"created_at"`
		NumComments int      `json:"num_comments"`
		Tags        []string `json:"_tags"`
	} `json:"hits"`
}

// HackerNews scrapes either the Firebase feed API (when the source URL names
// a feed like topstories) or the Algolia search API (free-text query).
type HackerNews struct {
	store  PostStore
	client *http.Client
	pacer  *rate.Limiter
	log    logger.Logger

	// API bases; overridable in tests.
	FirebaseURL string
	AlgoliaURL  string
}

func NewHackerNews(store PostStore, client *http.Client, log logger.Logger) *HackerNews {
	return &HackerNews{
		store:       store,
		client:      client,
		pacer:       rate.NewLimiter(rate.Every(hnBatchDelay), 1),
		log:         log,
		FirebaseURL: "https://hacker-news.firebaseio.com/v0",
		AlgoliaURL:  "https://hn.algolia.com/api/v1",
	}
}

func (h *HackerNews) Platform() domain.Platform { return domain.PlatformHackerNews }

func (h *HackerNews) Scrape(ctx context.Context, src *domain.Source) (*Result, error) {
	cfg, err := src.ParseConfig()
	if err != nil {
		return nil, err
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = hnDefaultLimit
	}
	limit = min(limit, hnMaxLimit)

	for _, feed := range hnFeedTypes {
		if strings.Contains(src.URL, feed) {
			return h.scrapeFeed(ctx, src, feed, limit)
		}
	}
	return h.scrapeSearch(ctx, src, limit, cfg.Tags)
}

// scrapeFeed fetches the feed's item ids and loads items in concurrent
// batches. Top-level comment ids (kids) are stored for the enrichment pass.
func (h *HackerNews) scrapeFeed(ctx context.Context, src *domain.Source, feed string, limit int) (*Result, error) {
	var ids []int
	if _, err := getJSON(ctx, h.client, h.FirebaseURL+"/"+feed+".json", nil, &ids); err != nil {
		return nil, fmt.Errorf("hn feed %s: %w", feed, err)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	result := &Result{}
	for i := 0; i < len(ids); i += hnBatchSize {
		batch := ids[i:min(i+hnBatchSize, len(ids))]
		items := h.fetchBatch(ctx, batch)

		for _, item := range items {
			if item == nil || item.Type == "comment" {
				continue
			}
			post := hnFeedPost(src.ID, item)
			if err := h.store.UpsertPost(ctx, post); err != nil {
				return nil, fmt.Errorf("upsert hn item %d: %w", item.ID, err)
			}
			result.PostsFound++
		}

		if i+hnBatchSize < len(ids) {
			if err := sleep(ctx, hnBatchDelay); err != nil {
				return nil, err
			}
		}
	}

	if err := h.enrich(ctx, src, result); err != nil {
		return nil, err
	}

	h.log.Info("HN feed scrape completed",
		logger.String("source_id", src.ID),
		logger.String("feed", feed),
		logger.Int("posts", result.PostsFound),
		logger.Int("enrich_failures", len(result.EnrichFailures)),
	)
	return result, nil
}

func (h *HackerNews) fetchBatch(ctx context.Context, ids []int) []*hnItem {
	items := make([]*hnItem, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			var item hnItem
			url := fmt.Sprintf("%s/item/%d.json", h.FirebaseURL, id)
			if _, err := getJSON(ctx, h.client, url, nil, &item); err != nil {
				h.log.Warn("Failed to fetch HN item",
					logger.Int("item_id", id),
					logger.Error(err),
				)
				return
			}
			items[i] = &item
		}(i, id)
	}
	wg.Wait()
	return items
}

func hnFeedPost(sourceID string, item *hnItem) *domain.RawPost {
	externalID := strconv.Itoa(item.ID)
	itemURL := item.URL
	if itemURL == "" {
		itemURL = "https://news.ycombinator.com/item?id=" + externalID
	}

	kids := item.Kids
	if len(kids) > hnStoredKids {
		kids = kids[:hnStoredKids]
	}

	post := &domain.RawPost{
		SourceID:   sourceID,
		ExternalID: externalID,
		Platform:   domain.PlatformHackerNews,
		Title:      item.Title,
		Body:       item.Text,
		Author:     item.By,
		URL:        itemURL,
		Score:      item.Score,
		Metadata: domain.JSONMap{
			"descendants": item.Descendants,
			"kids":        kids,
		},
	}
	if item.Time > 0 {
		t := time.Unix(item.Time, 0).UTC()
		post.PostedAt = &t
	}
	return post
}

// scrapeSearch queries Algolia. Search hits carry no comment ids, so they are
// never enriched.
func (h *HackerNews) scrapeSearch(ctx context.Context, src *domain.Source, limit int, tags string) (*Result, error) {
	searchURL := fmt.Sprintf("%s/search?query=%s&hitsPerPage=%d",
		h.AlgoliaURL, url.QueryEscape(src.URL), min(limit, hnSearchMaxPage))
	if tags != "" {
		searchURL += "&tags=" + url.QueryEscape(tags)
	}

	var data algoliaResponse
	if _, err := getJSON(ctx, h.client, searchURL, nil, &data); err != nil {
		return nil, fmt.Errorf("hn search: %w", err)
	}

	result := &Result{}
	for _, hit := range data.Hits {
		if result.PostsFound >= limit {
			break
		}
		itemURL := hit.URL
		if itemURL == "" {
			itemURL = "https://news.ycombinator.com/item?id=" + hit.ObjectID
		}
		post := &domain.RawPost{
			SourceID:   src.ID,
			ExternalID: hit.ObjectID,
			Platform:   domain.PlatformHackerNews,
			Title:      hit.Title,
			Body:       hit.StoryText,
			Author:     hit.Author,
			URL:        itemURL,
			Score:      hit.Points,
			Metadata: domain.JSONMap{
				"numComments": hit.NumComments,
				"tags":        hit.Tags,
			},
		}
		if t, err := time.Parse(time.RFC3339, hit.CreatedAt); err == nil {
			utc := t.UTC()
			post.PostedAt = &utc
		}
		if err := h.store.UpsertPost(ctx, post); err != nil {
			return nil, fmt.Errorf("upsert hn hit %s: %w", hit.ObjectID, err)
		}
		result.PostsFound++
	}

	h.log.Info("HN search scrape completed",
		logger.String("source_id", src.ID),
		logger.String("query", src.URL),
		logger.Int("posts", result.PostsFound),
	)
	return result, nil
}

// enrich fetches stored kid comments for the most engaged stories. Posts
// without kids (search hits) or below the descendant threshold are skipped.
func (h *HackerNews) enrich(ctx context.Context, src *domain.Source, result *Result) error {
	posts, err := h.store.ListPostsBySource(ctx, src.ID, 100)
	if err != nil {
		return fmt.Errorf("list posts for enrichment: %w", err)
	}

	var candidates []domain.RawPost
	for _, p := range posts {
		if p.Metadata.Int("descendants") >= hnMinDescendants &&
			!p.Enriched() &&
			len(p.Metadata.IntSlice("kids")) > 0 {
			candidates = append(candidates, p)
		}
	}
	candidates = rankByEngagement(candidates, "descendants", hnDescendantWeight)
	if len(candidates) > hnEnrichTop {
		candidates = candidates[:hnEnrichTop]
	}

	for _, post := range candidates {
		kids := post.Metadata.IntSlice("kids")
		if len(kids) > hnCommentsPerPost {
			kids = kids[:hnCommentsPerPost]
		}

		comments, err := h.fetchComments(ctx, kids)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.log.Warn("Failed to enrich HN post",
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
		if err := h.store.UpdatePostMetadata(ctx, post.ID, meta); err != nil {
			result.EnrichFailures = append(result.EnrichFailures, EnrichFailure{PostID: post.ID, Err: err})
			continue
		}
		h.log.Debug("HN comments enriched",
			logger.String("post_id", post.ID),
			logger.Int("count", len(comments)),
		)
	}
	return nil
}

func (h *HackerNews) fetchComments(ctx context.Context, kids []int) ([]string, error) {
	var comments []string
	for _, kid := range kids {
		if err := h.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		var comment hnItem
		url := fmt.Sprintf("%s/item/%d.json", h.FirebaseURL, kid)
		if _, err := getJSON(ctx, h.client, url, nil, &comment); err != nil {
			return nil, err
		}
		if comment.Type != "comment" || comment.Text == "" {
			continue
		}
		clean := stripHTML(comment.Text)
		if len(clean) > hnCommentMinLen {
			comments = append(comments, truncate(clean, hnCommentMaxLen))
		}
	}
	return comments, nil
}

// stripHTML flattens HN's HTML comment bodies to whitespace-normalized text.
func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
