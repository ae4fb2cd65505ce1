package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
)

func newTestHackerNews(t *testing.T, store PostStore, handler http.Handler) *HackerNews {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	h := NewHackerNews(store, server.Client(), logger.NewNopLogger())
	h.FirebaseURL = server.URL
	h.AlgoliaURL = server.URL
	h.pacer = rate.NewLimiter(rate.Inf, 1)
	return h
}

func TestHackerNewsFeedScrape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[1, 2, 3]`))
	})
	mux.HandleFunc("/item/1.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 1, "type": "story", "title": "Show HN: CSV exporter",
			"by": "alice", "score": 95, "time": 1700000000,
			"descendants": 40, "kids": [11, 12, 13]
		}`))
	})
	mux.HandleFunc("/item/2.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": 2, "type": "comment", "text": "not a story"}`))
	})
	mux.HandleFunc("/item/3.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 3, "type": "story", "title": "Quiet launch",
			"by": "bob", "score": 4, "time": 1700000100, "descendants": 3
		}`))
	})
	mux.HandleFunc("/item/11.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 11, "type": "comment",
			"text": "<p>We hit this too, the <i>export</i> path falls over on very large datasets</p>"
		}`))
	})
	mux.HandleFunc("/item/12.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": 12, "type": "comment", "text": "nice"}`))
	})
	mux.HandleFunc("/item/13.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": 13, "type": "comment", "text": ""}`))
	})

	store := newFakePostStore()
	h := newTestHackerNews(t, store, mux)

	src := &domain.Source{
		ID:       "src-1",
		Platform: domain.PlatformHackerNews,
		URL:      "https://hacker-news.firebaseio.com/v0/topstories",
	}

	result, err := h.Scrape(context.Background(), src)
	require.NoError(t, err)

	// The comment item is skipped; only the two stories land.
	assert.Equal(t, 2, result.PostsFound)
	assert.Empty(t, result.EnrichFailures)

	story := store.byExternalID("1")
	require.NotNil(t, story)
	assert.Equal(t, "https://news.ycombinator.com/item?id=1", story.URL)
	assert.Equal(t, 40, story.Metadata.Int("descendants"))
	assert.Equal(t, []int{11, 12, 13}, story.Metadata.IntSlice("kids"))

	// HTML is flattened and short comments are dropped.
	comments := story.Metadata.StringSlice(domain.MetaTopComments)
	require.Len(t, comments, 1)
	assert.Equal(t, "We hit this too, the export path falls over on very large datasets", comments[0])

	// Too few descendants to enrich.
	quiet := store.byExternalID("3")
	require.NotNil(t, quiet)
	assert.False(t, quiet.Enriched())
}

func TestHackerNewsFeedScrapeRespectsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/beststories.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[1, 2]`))
	})
	mux.HandleFunc("/item/1.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1, "type": "story", "title": "First", "score": 10}`))
	})

	store := newFakePostStore()
	h := newTestHackerNews(t, store, mux)

	src := &domain.Source{
		ID:       "src-1",
		Platform: domain.PlatformHackerNews,
		URL:      "https://hacker-news.firebaseio.com/v0/beststories",
		Config:   domain.JSONMap{"limit": 1},
	}

	result, err := h.Scrape(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PostsFound)
}

func TestHackerNewsSearchScrape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "terminal multiplexer", req.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{
			"hits": [
				{
					"objectID": "41000001", "title": "Ask HN: Best terminal multiplexer?",
					"author": "carol", "points": 60, "num_comments": 85,
					"created_at": "2025-08-01T12:00:00Z", "_tags": ["ask_hn", "story"]
				}
			]
		}`))
	})

	store := newFakePostStore()
	h := newTestHackerNews(t, store, mux)

	src := &domain.Source{
		ID:       "src-1",
		Platform: domain.PlatformHackerNews,
		URL:      "terminal multiplexer",
	}

	result, err := h.Scrape(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PostsFound)

	hit := store.byExternalID("41000001")
	require.NotNil(t, hit)
	assert.Equal(t, 85, hit.Metadata.Int("numComments"))
	assert.Equal(t, []string{"ask_hn", "story"}, hit.Metadata.StringSlice("tags"))
	require.NotNil(t, hit.PostedAt)

	// Search hits carry no kids, so they never go through enrichment.
	assert.False(t, hit.Enriched())
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "a b c", stripHTML("<p>a</p>\n<p>b\n c</p>"))
	assert.Equal(t, "plain text", stripHTML("plain text"))
}
