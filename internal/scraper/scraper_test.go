package scraper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/promptops/insight-pipeline/internal/domain"
)

// fakePostStore is an in-memory PostStore that mirrors the real store's
// upsert semantics: (platform, external_id) is unique, and a conflicting
// upsert refreshes the score and merges metadata over the stored map.
type fakePostStore struct {
	mu      sync.Mutex
	posts   []*domain.RawPost
	nextID  int
	upserts int
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{}
}

func (f *fakePostStore) UpsertPost(_ context.Context, post *domain.RawPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++

	for _, existing := range f.posts {
		if existing.Platform == post.Platform && existing.ExternalID == post.ExternalID {
			existing.Score = post.Score
			merged := existing.Metadata.Clone()
			for k, v := range post.Metadata {
				merged[k] = v
			}
			existing.Metadata = merged
			post.ID = existing.ID
			return nil
		}
	}

	f.nextID++
	stored := *post
	if stored.ID == "" {
		stored.ID = fmt.Sprintf("post-%d", f.nextID)
	}
	post.ID = stored.ID
	f.posts = append(f.posts, &stored)
	return nil
}

func (f *fakePostStore) ListPostsBySource(_ context.Context, sourceID string, limit int) ([]domain.RawPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.RawPost
	for _, p := range f.posts {
		if p.SourceID == sourceID {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePostStore) UpdatePostMetadata(_ context.Context, id string, metadata domain.JSONMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.posts {
		if p.ID == id {
			p.Metadata = metadata
			return nil
		}
	}
	return fmt.Errorf("post %s not found", id)
}

func (f *fakePostStore) byExternalID(externalID string) *domain.RawPost {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.posts {
		if p.ExternalID == externalID {
			copied := *p
			return &copied
		}
	}
	return nil
}

func (f *fakePostStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func TestRankByEngagement(t *testing.T) {
	posts := []domain.RawPost{
		{ID: "a", Score: 10, Metadata: domain.JSONMap{"numComments": 0}},
		{ID: "b", Score: 5, Metadata: domain.JSONMap{"numComments": 20}},
		{ID: "c", Score: 30, Metadata: domain.JSONMap{"numComments": 1}},
	}

	ranked := rankByEngagement(posts, "numComments", 2)

	// b: 5+40=45, c: 30+2=32, a: 10.
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, "c", ranked[1].ID)
	assert.Equal(t, "a", ranked[2].ID)

	// Input order is untouched.
	assert.Equal(t, "a", posts[0].ID)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hel", truncate("hello", 3))
	assert.Equal(t, "hello", truncate("hello", 10))
}
