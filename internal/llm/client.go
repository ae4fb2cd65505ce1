// Package llm wraps the Anthropic API behind a small completion interface and
// provides the response sanitizer shared by every call site that expects JSON.
package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/promptops/insight-pipeline/internal/logger"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)

// Options tunes a single completion call. Zero values fall back to defaults.
type Options struct {
	MaxTokens   int64
	Temperature float64
}

// Usage reports token consumption for a completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Client is the completion interface consumed by analysis and generation.
type Client interface {
	Complete(ctx context.Context, system, user string, opts Options) (string, Usage, error)
}

// Anthropic implements Client against the Anthropic messages API.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
	log    logger.Logger
}

// NewAnthropic creates a client for the given API key and model.
func NewAnthropic(apiKey, model string, log logger.Logger) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		log:    log,
	}
}

// Complete sends one system+user prompt pair and returns the text completion.
func (a *Anthropic) Complete(ctx context.Context, system, user string, opts Options) (string, Usage, error) {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}

	a.log.Debug("Calling Anthropic API",
		logger.String("system", truncate(system, 100)),
		logger.String("user", truncate(user, 100)),
	)

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: anthropic.Float(opts.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("anthropic completion: %w", err)
	}

	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	a.log.Debug("Anthropic completion finished",
		logger.Int64("input_tokens", usage.InputTokens),
		logger.Int64("output_tokens", usage.OutputTokens),
	)

	return text, usage, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
