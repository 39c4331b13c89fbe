package gemini

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client defines the Gemini API operations used by the pipeline.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is our own request type for Generate.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature *float32
	WebSearch   bool
}

// GenerateResponse is our own response type from Generate.
type GenerateResponse struct {
	Text          string
	Sources       []Source
	SearchQueries []string
	InputTokens   int32
	OutputTokens  int32
	TotalTokens   int32
}

// Source is a web source the model grounded its answer on.
type Source struct {
	URL   string
	Title string
}

// genaiClient implements Client using the official genai SDK.
type genaiClient struct {
	client *genai.Client
	model  string
}

// Option configures the client.
type Option func(*genaiClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *genaiClient) {
		c.model = model
	}
}

// NewClient creates a new Gemini client backed by the genai SDK.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}

	c := &genaiClient{
		client: client,
		model:  "gemini-2.5-flash",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *genaiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(*req.Temperature)
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.System)},
		}
	}
	if req.WebSearch {
		config.Tools = []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		}
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	return fromSDKResponse(resp), nil
}

func fromSDKResponse(resp *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{}

	if resp.UsageMetadata != nil {
		out.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
		out.TotalTokens = resp.UsageMetadata.TotalTokenCount
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	cand := resp.Candidates[0]

	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			out.Text += part.Text
		}
	}

	if cand.GroundingMetadata != nil {
		gm := cand.GroundingMetadata
		out.SearchQueries = gm.WebSearchQueries
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil {
				out.Sources = append(out.Sources, Source{
					URL:   chunk.Web.URI,
					Title: chunk.Web.Title,
				})
			}
		}
	}

	return out
}
