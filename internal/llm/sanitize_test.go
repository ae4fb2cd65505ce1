package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"bare json", `{"title": "hello"}`},
		{"json fence", "```json\n{\"title\": \"hello\"}\n```"},
		{"plain fence", "```\n{\"title\": \"hello\"}\n```"},
		{"leading whitespace", "  \n{\"title\": \"hello\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			require.NoError(t, DecodeJSON(tt.raw, &p))
			assert.Equal(t, "hello", p.Title)
		})
	}
}

func TestDecodeJSONParseError(t *testing.T) {
	var out map[string]any
	err := DecodeJSON("I could not produce JSON for this request.", &out)
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Snippet, "I could not produce JSON")
}

func TestDecodeJSONSnippetTruncated(t *testing.T) {
	long := make([]byte, snippetLen*2)
	for i := range long {
		long[i] = 'x'
	}

	var out map[string]any
	err := DecodeJSON(string(long), &out)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Len(t, parseErr.Snippet, snippetLen)
}

func TestStripFencesPreservesBody(t *testing.T) {
	raw := "```json\n{\n  \"a\": \"value with ``` inside\"\n}\n```"
	got := StripFences(raw)
	assert.Equal(t, "{\n  \"a\": \"value with ``` inside\"\n}", got)
}
