package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/pkg/perplexity"
)

// PerplexityAdapter queries Perplexity, whose answers are always web-grounded.
type PerplexityAdapter struct {
	client perplexity.Client
	cfg    config.PerplexityConfig
}

// NewPerplexity creates a Perplexity adapter.
func NewPerplexity(client perplexity.Client, cfg config.PerplexityConfig) *PerplexityAdapter {
	return &PerplexityAdapter{client: client, cfg: cfg}
}

func (a *PerplexityAdapter) Name() string {
	return NamePerplexity
}

func (a *PerplexityAdapter) Complete(ctx context.Context, req Request) (*Answer, error) {
	start := time.Now()

	resp, err := a.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []perplexity.Message{
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		var se *perplexity.StatusError
		if errors.As(err, &se) {
			return nil, wrapStatus(err, NamePerplexity, se.StatusCode)
		}
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, eris.New("provider: perplexity returned no choices")
	}

	return &Answer{
		Text:          resp.Choices[0].Message.Content,
		TokensUsed:    resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		CostUSD:       a.cfg.PerQuery,
		LatencyMs:     time.Since(start).Milliseconds(),
		SourceURLs:    NormalizeSourceURLs(resp.Citations),
		UsedWebSearch: true,
	}, nil
}
