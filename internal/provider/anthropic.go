package provider

import (
	"context"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/pkg/anthropic"
)

// AnthropicAdapter queries the Anthropic Messages API.
type AnthropicAdapter struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
}

// NewAnthropic creates an Anthropic adapter.
func NewAnthropic(client anthropic.Client, cfg config.AnthropicConfig) *AnthropicAdapter {
	return &AnthropicAdapter{client: client, cfg: cfg}
}

func (a *AnthropicAdapter) Name() string {
	return NameAnthropic
}

func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Answer, error) {
	start := time.Now()

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		var apierr *sdk.Error
		if errors.As(err, &apierr) {
			return nil, wrapStatus(err, NameAnthropic, apierr.StatusCode)
		}
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, eris.New("provider: anthropic returned no text content")
	}

	return &Answer{
		Text:       text,
		TokensUsed: int(resp.Usage.Total()),
		CostUSD: costFromTokens(
			int(resp.Usage.InputTokens),
			int(resp.Usage.OutputTokens),
			a.cfg.InputPerMTok,
			a.cfg.OutputPerMTok,
		),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
