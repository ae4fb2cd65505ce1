package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const snippetLen = 500

// ParseError reports an LLM response that could not be decoded into the
// expected shape. It carries a truncated snippet of the raw response for
// logging; partial results are never applied.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse llm response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DecodeJSON strips markdown code fences from a completion and unmarshals the
// remainder into v. Models occasionally wrap JSON in ```json fences despite
// instructions not to.
func DecodeJSON(raw string, v any) error {
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseError{Snippet: truncate(raw, snippetLen), Err: err}
	}
	return nil
}

// StripFences removes ``` and ```json fence lines, leaving the body.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "```") {
		return s
	}

	var b strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "```" || strings.HasPrefix(trimmed, "```json") || trimmed == "```JSON" {
			continue
		}
		b.WriteString(line)
	}
	return strings.TrimSpace(b.String())
}
