package extraction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalworks/visibility-cli/internal/model"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "basic terminal punctuation",
			text: "First sentence. Second one! Third?",
			want: []string{"First sentence.", "Second one!", "Third?"},
		},
		{
			name: "urls survive",
			text: "See https://example.com/docs for details. Next sentence.",
			want: []string{"See https://example.com/docs for details.", "Next sentence."},
		},
		{
			name: "trailing fragment without punctuation",
			text: "Done. trailing words",
			want: []string{"Done.", "trailing words"},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.text))
		})
	}
}

func TestExtractCitations(t *testing.T) {
	engine := NewEngine(nil)
	entities := []model.Entity{
		{Name: "Acme", Type: model.EntityBrand},
		{Name: "Globex", Type: model.EntityCompetitor},
	}

	text := "Acme is the best tool for X. It has wide adoption. Globex offers a cheaper plan. Many teams use acme daily."

	citations := engine.ExtractCitations(text, entities, nil)
	require.Len(t, citations, 3)

	assert.Equal(t, "Acme", citations[0].EntityName)
	assert.Equal(t, model.EntityBrand, citations[0].EntityType)
	assert.Contains(t, citations[0].MatchedText, "Acme")
	assert.Equal(t, 0, citations[0].Position)
	assert.Equal(t, 0.9, citations[0].Confidence)
	assert.Equal(t, "Acme is the best tool for X. It has wide adoption.", citations[0].Context)

	assert.Equal(t, "Globex", citations[1].EntityName)
	assert.Equal(t, 2, citations[1].Position)

	// Case-insensitive match.
	assert.Equal(t, "Acme", citations[2].EntityName)
	assert.Equal(t, 3, citations[2].Position)
}

func TestExtractCitationsRoundRobinURLs(t *testing.T) {
	engine := NewEngine(nil)
	entities := []model.Entity{{Name: "Acme", Type: model.EntityBrand}}
	urls := []string{"https://a.com/1", "https://b.com/2"}

	text := "Acme wins. Acme places. Acme shows."
	citations := engine.ExtractCitations(text, entities, urls)
	require.Len(t, citations, 3)

	assert.Equal(t, "https://a.com/1", citations[0].SourceURL)
	assert.Equal(t, "https://b.com/2", citations[1].SourceURL)
	assert.Equal(t, "https://a.com/1", citations[2].SourceURL)
	assert.Equal(t, "a.com", citations[0].SourceDomain)

	// Assigned URLs are always drawn from the provider's list.
	for _, c := range citations {
		assert.Contains(t, urls, c.SourceURL)
	}
}

func TestExtractCitationsNoURLs(t *testing.T) {
	engine := NewEngine(nil)
	citations := engine.ExtractCitations("Acme rocks.", []model.Entity{{Name: "Acme", Type: model.EntityBrand}}, nil)
	require.Len(t, citations, 1)
	assert.Empty(t, citations[0].SourceURL)
	assert.Empty(t, citations[0].SourceDomain)
}

func TestScoreSentimentPositive(t *testing.T) {
	engine := NewEngine(nil)

	score := engine.ScoreSentiment("Acme is the best tool for X.", "Acme", nil)
	assert.Equal(t, model.SentimentPositive, score.Label)
	assert.True(t, score.Mentioned)
	assert.Contains(t, score.PositiveAttrs, "best")
	assert.Greater(t, score.Score, 0.0)
}

func TestScoreSentimentNegationFlips(t *testing.T) {
	engine := NewEngine(nil)

	score := engine.ScoreSentiment("Acme is not great for this.", "Acme", nil)
	assert.Equal(t, model.SentimentNegative, score.Label)
	assert.Contains(t, score.NegativeAttrs, "not great")
	assert.Less(t, score.Score, 0.0)
}

func TestScoreSentimentNeutralBelowThreshold(t *testing.T) {
	engine := NewEngine(nil)

	// "good" carries weight 1, below the label threshold.
	score := engine.ScoreSentiment("Acme is good.", "Acme", nil)
	assert.Equal(t, model.SentimentNeutral, score.Label)
	assert.True(t, score.Mentioned)
}

func TestScoreSentimentNotMentioned(t *testing.T) {
	engine := NewEngine(nil)

	score := engine.ScoreSentiment("Globex is terrible.", "Acme", nil)
	assert.Equal(t, model.SentimentNeutral, score.Label)
	assert.False(t, score.Mentioned)
	assert.Zero(t, score.Score)
}

func TestScoreSentimentOnlyMatchingSentencesCount(t *testing.T) {
	engine := NewEngine(nil)

	// The glowing sentence is about Globex, not Acme.
	score := engine.ScoreSentiment("Globex is excellent and amazing. Acme exists too.", "Acme", nil)
	assert.Equal(t, model.SentimentNeutral, score.Label)
	assert.Empty(t, score.PositiveAttrs)
}

func TestScoreSentimentComparison(t *testing.T) {
	engine := NewEngine(nil)
	text := "Acme is better than Globex for small teams."

	acme := engine.ScoreSentiment(text, "Acme", []string{"Globex"})
	assert.Equal(t, model.SentimentPositive, acme.Label)
	assert.Contains(t, acme.PositiveAttrs, "better than")

	// Globex appears second, so the comparison counts against it.
	globex := engine.ScoreSentiment(text, "Globex", []string{"Acme"})
	assert.Contains(t, globex.NegativeAttrs, "better than")
}

func TestLoadLexiconDefaults(t *testing.T) {
	lex, err := LoadLexicon("")
	require.NoError(t, err)
	assert.Equal(t, 2, lex.Positive["best"])
	assert.Equal(t, 3, lex.Negative["worst"])
}

func TestLoadLexiconOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	content := []byte("positive:\n  stellar: 3\nnegations:\n  - nope\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	lex, err := LoadLexicon(path)
	require.NoError(t, err)

	assert.Equal(t, 3, lex.Positive["stellar"])
	assert.NotContains(t, lex.Positive, "best")
	assert.Equal(t, []string{"nope"}, lex.Negations)
	// Untouched tables keep defaults.
	assert.Equal(t, 3, lex.Negative["worst"])
}

func TestLoadLexiconMissingFile(t *testing.T) {
	_, err := LoadLexicon("/nonexistent/lexicon.yaml")
	assert.Error(t, err)
}
