package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/pkg/anthropic"
	"github.com/signalworks/visibility-cli/pkg/gemini"
	"github.com/signalworks/visibility-cli/pkg/openai"
	"github.com/signalworks/visibility-cli/pkg/perplexity"
)

// FromConfig builds a registry containing an adapter for every provider that
// has an API key configured. Providers without keys are skipped with a log
// line rather than an error, so a project can run against a subset.
func FromConfig(ctx context.Context, cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()
	rps := cfg.Worker.ProviderRPS

	if cfg.OpenAI.Key != "" {
		opts := []openai.Option{openai.WithModel(cfg.OpenAI.Model)}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		client := openai.NewClient(cfg.OpenAI.Key, opts...)
		reg.Register(WithRateLimit(NewOpenAI(client, cfg.OpenAI), rps))
	} else {
		zap.L().Info("provider not configured, skipping", zap.String("provider", NameOpenAI))
	}

	if cfg.Anthropic.Key != "" {
		client := anthropic.NewClient(cfg.Anthropic.Key)
		reg.Register(WithRateLimit(NewAnthropic(client, cfg.Anthropic), rps))
	} else {
		zap.L().Info("provider not configured, skipping", zap.String("provider", NameAnthropic))
	}

	if cfg.Gemini.Key != "" {
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key, gemini.WithModel(cfg.Gemini.Model))
		if err != nil {
			return nil, eris.Wrap(err, "provider: init gemini client")
		}
		reg.Register(WithRateLimit(NewGemini(client, cfg.Gemini), rps))
	} else {
		zap.L().Info("provider not configured, skipping", zap.String("provider", NameGemini))
	}

	if cfg.Perplexity.Key != "" {
		opts := []perplexity.Option{perplexity.WithModel(cfg.Perplexity.Model)}
		if cfg.Perplexity.BaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(cfg.Perplexity.BaseURL))
		}
		client := perplexity.NewClient(cfg.Perplexity.Key, opts...)
		reg.Register(WithRateLimit(NewPerplexity(client, cfg.Perplexity), rps))
	} else {
		zap.L().Info("provider not configured, skipping", zap.String("provider", NamePerplexity))
	}

	return reg, nil
}
