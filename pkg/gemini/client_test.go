package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestFromSDKResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{
						{Text: "Acme leads the category. "},
						{Text: "Globex trails behind."},
					},
				},
				GroundingMetadata: &genai.GroundingMetadata{
					WebSearchQueries: []string{"best crm software 2026"},
					GroundingChunks: []*genai.GroundingChunk{
						{Web: &genai.GroundingChunkWeb{URI: "https://example.com/review", Title: "CRM Review"}},
						{Web: nil},
						{Web: &genai.GroundingChunkWeb{URI: "https://blog.example.org/post", Title: "Comparison"}},
					},
				},
			},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			TotalTokenCount: 512,
		},
	}

	out := fromSDKResponse(resp)

	assert.Equal(t, "Acme leads the category. Globex trails behind.", out.Text)
	assert.Equal(t, int32(512), out.TotalTokens)
	assert.Equal(t, []string{"best crm software 2026"}, out.SearchQueries)
	require.Len(t, out.Sources, 2)
	assert.Equal(t, "https://example.com/review", out.Sources[0].URL)
	assert.Equal(t, "Comparison", out.Sources[1].Title)
}

func TestFromSDKResponseEmptyCandidates(t *testing.T) {
	out := fromSDKResponse(&genai.GenerateContentResponse{})
	assert.Empty(t, out.Text)
	assert.Empty(t, out.Sources)
}
