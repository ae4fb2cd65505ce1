package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMapHelpers(t *testing.T) {
	// Shapes as they come back from json.Unmarshal on a jsonb column.
	m := JSONMap{
		"numComments": float64(42),
		"subreddit":   "golang",
		"kids":        []any{float64(1), float64(2), float64(3)},
		"topComments": []any{"first", "second"},
	}

	assert.Equal(t, 42, m.Int("numComments"))
	assert.Equal(t, 0, m.Int("missing"))
	assert.Equal(t, "golang", m.String("subreddit"))
	assert.Equal(t, "", m.String("numComments"))
	assert.Equal(t, []int{1, 2, 3}, m.IntSlice("kids"))
	assert.Equal(t, []string{"first", "second"}, m.StringSlice("topComments"))
	assert.Nil(t, m.StringSlice("kids"))
}

func TestJSONMapClone(t *testing.T) {
	m := JSONMap{"a": 1}
	clone := m.Clone()
	clone["b"] = 2

	assert.Len(t, m, 1)
	assert.Len(t, clone, 2)

	var nilMap JSONMap
	assert.NotNil(t, nilMap.Clone())
}

func TestJSONMapScanValue(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"score": 7}`)))
	assert.Equal(t, 7, m.Int("score"))

	v, err := m.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 7}`, string(v.([]byte)))

	var empty JSONMap
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(v.([]byte)))
}

func TestSourceParseConfig(t *testing.T) {
	src := &Source{
		Config: JSONMap{
			// Numbers from jsonb decode as float64; weak decoding tolerates it.
			"limit":     float64(100),
			"sort":      "top",
			"timeframe": "month",
			"auto":      true,
		},
	}

	cfg, err := src.ParseConfig()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Limit)
	assert.Equal(t, "top", cfg.Sort)
	assert.Equal(t, "month", cfg.Timeframe)
	assert.True(t, cfg.Auto)
}

func TestSourceParseConfigNil(t *testing.T) {
	src := &Source{}
	cfg, err := src.ParseConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.Limit)
}

func TestRawPostEnriched(t *testing.T) {
	post := &RawPost{Metadata: JSONMap{"descendants": float64(12)}}
	assert.False(t, post.Enriched())

	post.Metadata[MetaTopComments] = []any{"a comment"}
	assert.True(t, post.Enriched())

	empty := &RawPost{}
	assert.False(t, empty.Enriched())
}

func TestParseJobKind(t *testing.T) {
	for _, valid := range []string{"scrape", "analyze", "generate", "scrape-all", "analyze-new"} {
		kind, err := ParseJobKind(valid)
		require.NoError(t, err)
		assert.Equal(t, JobKind(valid), kind)
	}

	_, err := ParseJobKind("reindex")
	assert.ErrorIs(t, err, ErrUnknownJobKind)
}

func TestPlatformValid(t *testing.T) {
	assert.True(t, PlatformReddit.Valid())
	assert.True(t, PlatformGitHub.Valid())
	assert.False(t, Platform("TWITTER").Valid())
}
