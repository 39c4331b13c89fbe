package extraction

import (
	"strings"

	"github.com/signalworks/visibility-cli/internal/model"
)

// labelThreshold is the minimum weighted sum a polarity needs to win the
// label. Below it, or on a tie, the entity scores neutral.
const labelThreshold = 2

// negationWindow is how many tokens before a keyword a negation can sit and
// still flip it ("not great", "not very great").
const negationWindow = 2

// comparisonWeight is the weight a comparison sentence contributes to the
// advantaged side.
const comparisonWeight = 2

// Score is the classification outcome for one entity in one text.
type Score struct {
	Label         model.SentimentLabel
	Score         float64
	PositiveAttrs []string
	NegativeAttrs []string
	Mentioned     bool
}

// ScoreSentiment classifies the tone toward one entity. Only sentences that
// mention the entity contribute. otherEntities feeds the comparative
// classifier: in a comparison sentence the first-mentioned entity gets the
// advantage.
func (e *Engine) ScoreSentiment(text, entityName string, otherEntities []string) Score {
	sentences := splitSentences(text)
	entityLower := strings.ToLower(entityName)

	var posSum, negSum int
	var posAttrs, negAttrs []string
	mentioned := false

	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		if !strings.Contains(lower, entityLower) {
			continue
		}
		mentioned = true

		tokens := tokenize(sentence)
		for i, tok := range tokens {
			if w, ok := e.lex.Positive[tok]; ok {
				if e.negated(tokens, i) {
					negSum += w
					negAttrs = append(negAttrs, "not "+tok)
				} else {
					posSum += w
					posAttrs = append(posAttrs, tok)
				}
				continue
			}
			if w, ok := e.lex.Negative[tok]; ok {
				if e.negated(tokens, i) {
					posSum += w
					posAttrs = append(posAttrs, "not "+tok)
				} else {
					negSum += w
					negAttrs = append(negAttrs, tok)
				}
			}
		}

		if term, ok := e.comparisonTerm(lower); ok {
			switch e.firstMentioned(lower, entityLower, otherEntities) {
			case advantageEntity:
				posSum += comparisonWeight
				posAttrs = append(posAttrs, term)
			case advantageOther:
				negSum += comparisonWeight
				negAttrs = append(negAttrs, term)
			}
		}
	}

	out := Score{
		Label:         model.SentimentNeutral,
		PositiveAttrs: posAttrs,
		NegativeAttrs: negAttrs,
		Mentioned:     mentioned,
	}
	if total := posSum + negSum; total > 0 {
		out.Score = float64(posSum-negSum) / float64(total)
	}
	switch {
	case posSum >= labelThreshold && posSum > negSum:
		out.Label = model.SentimentPositive
	case negSum >= labelThreshold && negSum > posSum:
		out.Label = model.SentimentNegative
	}
	return out
}

// negated reports whether a negation token sits just before position i.
func (e *Engine) negated(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-negationWindow; j-- {
		for _, n := range e.lex.Negations {
			if tokens[j] == n {
				return true
			}
		}
	}
	return false
}

// comparisonTerm returns the first comparison phrase found in the sentence.
func (e *Engine) comparisonTerm(lowerSentence string) (string, bool) {
	for _, term := range e.lex.Comparisons {
		if strings.Contains(lowerSentence, term) {
			return strings.TrimSpace(term), true
		}
	}
	return "", false
}

type advantage int

const (
	advantageNone advantage = iota
	advantageEntity
	advantageOther
)

// firstMentioned decides whether the target entity or some other tracked
// entity appears first in a comparison sentence.
func (e *Engine) firstMentioned(lowerSentence, entityLower string, otherEntities []string) advantage {
	entityPos := strings.Index(lowerSentence, entityLower)
	if entityPos < 0 {
		return advantageNone
	}

	for _, other := range otherEntities {
		otherLower := strings.ToLower(other)
		if otherLower == entityLower {
			continue
		}
		if pos := strings.Index(lowerSentence, otherLower); pos >= 0 && pos < entityPos {
			return advantageOther
		}
	}
	return advantageEntity
}
