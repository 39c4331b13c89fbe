package provider

import (
	"context"
	"time"

	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/internal/resilience"
	"github.com/signalworks/visibility-cli/pkg/gemini"
)

// GeminiAdapter queries Gemini, optionally with Google Search grounding.
type GeminiAdapter struct {
	client gemini.Client
	cfg    config.GeminiConfig
}

// NewGemini creates a Gemini adapter.
func NewGemini(client gemini.Client, cfg config.GeminiConfig) *GeminiAdapter {
	return &GeminiAdapter{client: client, cfg: cfg}
}

func (a *GeminiAdapter) Name() string {
	return NameGemini
}

func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (*Answer, error) {
	start := time.Now()

	resp, err := a.client.Generate(ctx, gemini.GenerateRequest{
		Model:     a.cfg.Model,
		Prompt:    req.Prompt,
		WebSearch: a.cfg.WebSearch,
	})
	if err != nil {
		// The genai SDK surfaces rate limits and server errors as apiError
		// values without a stable exported type, so classify on the text.
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(err, 0)
		}
		return nil, err
	}

	urls := make([]string, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		urls = append(urls, s.URL)
	}

	return &Answer{
		Text:       resp.Text,
		TokensUsed: int(resp.TotalTokens),
		CostUSD: costFromTokens(
			int(resp.InputTokens),
			int(resp.OutputTokens),
			a.cfg.InputPerMTok,
			a.cfg.OutputPerMTok,
		),
		LatencyMs:     time.Since(start).Milliseconds(),
		SourceURLs:    NormalizeSourceURLs(urls),
		UsedWebSearch: a.cfg.WebSearch && len(resp.Sources) > 0,
	}, nil
}
