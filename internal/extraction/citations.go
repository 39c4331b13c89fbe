// Package extraction implements the citation and sentiment heuristics run
// over provider answer text. All of it is keyword and sentence machinery;
// nothing here calls out.
package extraction

import (
	"net/url"
	"strings"

	"github.com/signalworks/visibility-cli/internal/model"
)

// matchConfidence is the fixed confidence for substring entity matches. The
// extractor does not score match quality, it only records hits.
const matchConfidence = 0.9

// Engine runs citation and sentiment extraction with an injected lexicon.
type Engine struct {
	lex *Lexicon
}

// NewEngine creates an extraction engine.
func NewEngine(lex *Lexicon) *Engine {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Engine{lex: lex}
}

// ExtractCitations scans text for sentence-level mentions of the tracked
// entities. Source URLs, when the provider supplied any, are assigned to
// matches round-robin; the extractor never invents a URL. Position is the
// ordinal sentence index. ResultID, ProjectID, and ID are left for the
// caller to fill.
func (e *Engine) ExtractCitations(text string, entities []model.Entity, sourceURLs []string) []model.Citation {
	sentences := splitSentences(text)
	var citations []model.Citation

	for i, sentence := range sentences {
		lower := strings.ToLower(sentence)
		for _, entity := range entities {
			if entity.Name == "" || !strings.Contains(lower, strings.ToLower(entity.Name)) {
				continue
			}

			c := model.Citation{
				EntityName:  entity.Name,
				EntityType:  entity.Type,
				MatchedText: sentence,
				Context:     contextWindow(sentences, i),
				Position:    i,
				Confidence:  matchConfidence,
			}
			if len(sourceURLs) > 0 {
				c.SourceURL = sourceURLs[len(citations)%len(sourceURLs)]
				c.SourceDomain = domainOf(c.SourceURL)
			}
			citations = append(citations, c)
		}
	}

	return citations
}

// contextWindow joins the previous, matched, and next sentence.
func contextWindow(sentences []string, i int) string {
	parts := make([]string, 0, 3)
	if i > 0 {
		parts = append(parts, sentences[i-1])
	}
	parts = append(parts, sentences[i])
	if i+1 < len(sentences) {
		parts = append(parts, sentences[i+1])
	}
	return strings.Join(parts, " ")
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
