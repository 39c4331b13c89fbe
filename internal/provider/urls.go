package provider

import (
	"net/url"
	"strings"
)

// domainDenylist holds hosts that show up in grounding metadata but carry no
// citation value (markup vocabularies, spec sites).
var domainDenylist = map[string]struct{}{
	"schema.org":        {},
	"www.schema.org":    {},
	"w3.org":            {},
	"www.w3.org":        {},
	"webcache.googleusercontent.com": {},
}

// NormalizeSourceURLs filters and deduplicates source URLs while preserving
// first-seen order. Invalid URLs and denylisted hosts are dropped.
func NormalizeSourceURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		if _, banned := domainDenylist[strings.ToLower(u.Host)]; banned {
			continue
		}

		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// SourceDomain extracts the lowercase host from a source URL, stripping any
// leading "www." prefix. Returns "" for unparseable input.
func SourceDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
