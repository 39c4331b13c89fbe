package extraction

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Lexicon holds the keyword tables driving sentiment and comparison
// classification. Weights are graded 1 to 3. Instances are treated as
// immutable once built; the engine never writes to them.
type Lexicon struct {
	Positive    map[string]int `yaml:"positive"`
	Negative    map[string]int `yaml:"negative"`
	Negations   []string       `yaml:"negations"`
	Comparisons []string       `yaml:"comparisons"`
}

// DefaultLexicon returns the built-in keyword tables.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Positive: map[string]int{
			"excellent":   3,
			"outstanding": 3,
			"exceptional": 3,
			"amazing":     3,
			"best":        2,
			"great":       2,
			"powerful":    2,
			"reliable":    2,
			"leading":     2,
			"innovative":  2,
			"good":        1,
			"solid":       1,
			"useful":      1,
			"popular":     1,
			"helpful":     1,
			"easy":        1,
		},
		Negative: map[string]int{
			"terrible":   3,
			"awful":      3,
			"worst":      3,
			"horrible":   3,
			"bad":        2,
			"poor":       2,
			"weak":       2,
			"unreliable": 2,
			"buggy":      2,
			"expensive":  1,
			"limited":    1,
			"slow":       1,
			"confusing":  1,
			"lacking":    1,
		},
		Negations: []string{
			"not", "never", "no", "hardly", "barely",
			"isn't", "aren't", "wasn't", "don't", "doesn't", "can't", "won't",
		},
		Comparisons: []string{
			"better than", "worse than", "compared to", "versus", " vs ",
			"outperforms", "beats", "superior to", "inferior to", "alternative to",
		},
	}
}

// LoadLexicon reads a lexicon override from a YAML file. Tables present in
// the file replace the built-in ones wholesale; absent tables keep their
// defaults. An empty path returns the defaults.
func LoadLexicon(path string) (*Lexicon, error) {
	lex := DefaultLexicon()
	if path == "" {
		return lex, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "extraction: read lexicon file")
	}

	var override Lexicon
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrap(err, "extraction: parse lexicon file")
	}

	if len(override.Positive) > 0 {
		lex.Positive = override.Positive
	}
	if len(override.Negative) > 0 {
		lex.Negative = override.Negative
	}
	if len(override.Negations) > 0 {
		lex.Negations = override.Negations
	}
	if len(override.Comparisons) > 0 {
		lex.Comparisons = override.Comparisons
	}

	return lex, nil
}
