package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/pkg/openai"
)

// OpenAIAdapter queries OpenAI chat completions.
type OpenAIAdapter struct {
	client openai.Client
	cfg    config.OpenAIConfig
}

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(client openai.Client, cfg config.OpenAIConfig) *OpenAIAdapter {
	return &OpenAIAdapter{client: client, cfg: cfg}
}

func (a *OpenAIAdapter) Name() string {
	return NameOpenAI
}

func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Answer, error) {
	start := time.Now()

	resp, err := a.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.Message{
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		var se *openai.StatusError
		if errors.As(err, &se) {
			return nil, wrapStatus(err, NameOpenAI, se.StatusCode)
		}
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, eris.New("provider: openai returned no choices")
	}

	return &Answer{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		CostUSD: costFromTokens(
			resp.Usage.PromptTokens,
			resp.Usage.CompletionTokens,
			a.cfg.InputPerMTok,
			a.cfg.OutputPerMTok,
		),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
