package extraction

import "strings"

// splitSentences breaks text into sentences on terminal punctuation. This is
// a heuristic splitter, not a linguistic one; abbreviations and decimals can
// produce extra fragments, which downstream matching tolerates.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Only split when followed by whitespace or end of text, so
			// URLs and version numbers stay intact.
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(b.String()); s != "" {
					sentences = append(sentences, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// tokenize lowercases and splits a sentence into words, stripping
// surrounding punctuation from each token.
func tokenize(sentence string) []string {
	fields := strings.Fields(strings.ToLower(sentence))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]\"'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
