package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/promptops/insight-pipeline/internal/domain"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const (
	phDefaultLimit  = 50
	phMaxLimit      = 100
	phMaxComments   = 3
	phCommentMinLen = 20
	phCommentMaxLen = 400
	phBodyMaxLen    = 1000
	phDefaultTopic  = "developer-tools"
)

const phPostsQuery = `{
  posts(first: %d, topic: %q, order: VOTES) {
    edges {
      node {
        id
        name
        tagline
        description
        votesCount
        commentsCount
        createdAt
        url
        reviews(first: 5) {
          edges {
            node {
              body
              rating
            }
          }
        }
      }
    }
  }
}`

type phResponse struct {
	Data *struct {
		Posts *struct {
			Edges []struct {
				Node struct {
					ID            string `json:"id"`
					Name          string `json:"name"`
					Tagline       string `json:"tagline"`
					Description   string `json:"description"`
					VotesCount    int    `json:"votesCount"`
					CommentsCount int    `json:"commentsCount"`
					CreatedAt     string `json:"createdAt"`
					URL           string `json:"url"`
					Reviews       struct {
						Edges []struct {
							Node struct {
								Body   string `json:"body"`
								Rating int    `json:"rating"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"reviews"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"posts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ProductHunt scrapes launches for a topic via the v2 GraphQL API. Reviews
// come back embedded, so the adapter has no separate enrichment pass.
type ProductHunt struct {
	store  PostStore
	apiKey string
	client *http.Client
	log    logger.Logger

	// GraphQLURL is overridable in tests.
	GraphQLURL string
}

func NewProductHunt(store PostStore, client *http.Client, apiKey string, log logger.Logger) *ProductHunt {
	return &ProductHunt{
		store:      store,
		apiKey:     apiKey,
		client:     client,
		log:        log,
		GraphQLURL: "https://api.producthunt.com/v2/api/graphql",
	}
}

func (p *ProductHunt) Platform() domain.Platform { return domain.PlatformProductHunt }

func (p *ProductHunt) Scrape(ctx context.Context, src *domain.Source) (*Result, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("ProductHunt API key is not set")
	}

	cfg, err := src.ParseConfig()
	if err != nil {
		return nil, err
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = phDefaultLimit
	}
	limit = min(limit, phMaxLimit)

	topic := cfg.Topic
	if topic == "" {
		topic = topicFromURL(src.URL)
	}

	data, err := p.query(ctx, fmt.Sprintf(phPostsQuery, limit, topic))
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if data.Data == nil || data.Data.Posts == nil {
		return result, nil
	}
	for _, edge := range data.Data.Posts.Edges {
		node := edge.Node

		// Reviews are high-quality user feedback; store them as topComments.
		var topComments []string
		for _, r := range node.Reviews.Edges {
			body := strings.TrimSpace(r.Node.Body)
			if len(body) <= phCommentMinLen {
				continue
			}
			topComments = append(topComments, truncate(body, phCommentMaxLen))
			if len(topComments) >= phMaxComments {
				break
			}
		}

		body := node.Description
		if body == "" {
			body = node.Tagline
		}

		post := &domain.RawPost{
			SourceID:   src.ID,
			ExternalID: node.ID,
			Platform:   domain.PlatformProductHunt,
			Title:      node.Name,
			Body:       truncate(body, phBodyMaxLen),
			URL:        node.URL,
			Score:      node.VotesCount,
			Metadata: domain.JSONMap{
				"commentsCount":        node.CommentsCount,
				domain.MetaTopComments: topComments,
			},
		}
		if t, err := time.Parse(time.RFC3339, node.CreatedAt); err == nil {
			utc := t.UTC()
			post.PostedAt = &utc
		}
		if err := p.store.UpsertPost(ctx, post); err != nil {
			return nil, fmt.Errorf("upsert producthunt post %s: %w", node.ID, err)
		}
		result.PostsFound++
	}

	p.log.Info("ProductHunt scrape completed",
		logger.String("source_id", src.ID),
		logger.String("topic", topic),
		logger.Int("posts", result.PostsFound),
	)
	return result, nil
}

func (p *ProductHunt) query(ctx context.Context, query string) (*phResponse, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.GraphQLURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("producthunt request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("producthunt API error: %d", res.StatusCode)
	}

	var data phResponse
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode producthunt response: %w", err)
	}
	if len(data.Errors) > 0 {
		return nil, fmt.Errorf("producthunt graphql error: %s", data.Errors[0].Message)
	}
	return &data, nil
}

// topicFromURL extracts the last non-empty path segment as the topic slug.
func topicFromURL(rawURL string) string {
	parts := strings.Split(strings.Trim(rawURL, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return phDefaultTopic
}
