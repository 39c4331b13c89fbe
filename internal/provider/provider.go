// Package provider defines the adapter interface and implementations for
// the AI providers queried during visibility analysis.
package provider

import (
	"context"
	"net/http"
	"sync"

	"github.com/signalworks/visibility-cli/internal/resilience"
)

// Known provider names. These are the values stored on projects and results.
const (
	NameOpenAI     = "openai"
	NameAnthropic  = "anthropic"
	NameGemini     = "gemini"
	NamePerplexity = "perplexity"
)

// Request carries the prompt to send to a provider.
type Request struct {
	Prompt string
}

// Answer is the normalized response from any provider.
type Answer struct {
	Text          string
	TokensUsed    int
	CostUSD       float64
	LatencyMs     int64
	SourceURLs    []string
	UsedWebSearch bool
}

// Adapter defines the interface every provider implementation satisfies.
// Complete makes exactly one upstream call; retry policy lives with the
// queue, not here.
type Adapter interface {
	// Name returns the provider identifier (matches provider names on projects).
	Name() string
	// Complete sends the prompt and returns a normalized answer.
	Complete(ctx context.Context, req Request) (*Answer, error)
}

// Registry manages available provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns all registered adapter names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// wrapStatus converts an API status code into the pipeline's error taxonomy.
// 429 becomes a rate limit error, retryable 5xx-class codes become transient.
// Anything else passes through as permanent.
func wrapStatus(err error, provider string, code int) error {
	if code == http.StatusTooManyRequests {
		return resilience.NewRateLimitError(err, provider)
	}
	if resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}

// costFromTokens computes USD cost from per-million-token rates.
func costFromTokens(inputTokens, outputTokens int, inPerMTok, outPerMTok float64) float64 {
	return (float64(inputTokens)/1e6)*inPerMTok + (float64(outputTokens)/1e6)*outPerMTok
}
