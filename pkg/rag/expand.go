package rag

import "strings"

// defaultSynonyms is the static expansion table keyed by salient topic and
// visual terms. Config-provided entries extend or override it.
var defaultSynonyms = map[string][]string{
	"image":    {"picture", "photo"},
	"picture":  {"image", "photo"},
	"video":    {"clip", "footage"},
	"audio":    {"sound", "recording"},
	"graph":    {"chart", "plot"},
	"chart":    {"graph", "diagram"},
	"report":   {"document", "paper"},
	"findings": {"results", "conclusions"},
	"climate":  {"weather", "environmental"},
	"ai":       {"artificial intelligence", "machine learning"},
	"ml":       {"machine learning"},
}

// normalizeQuery trims, lowercases, and collapses whitespace.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
}

// expandQuery appends synonyms for any table term appearing in the
// normalized query. The original query text always comes first.
func expandQuery(normalized string, synonyms map[string][]string) string {
	if normalized == "" {
		return normalized
	}

	seen := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		seen[tok] = true
	}

	var additions []string
	for _, tok := range strings.Fields(normalized) {
		for _, syn := range synonyms[tok] {
			if !seen[syn] {
				seen[syn] = true
				additions = append(additions, syn)
			}
		}
	}

	if len(additions) == 0 {
		return normalized
	}
	return normalized + " " + strings.Join(additions, " ")
}

// tokenSet returns the set of normalized tokens for keyword overlap.
func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

// jaccard computes the Jaccard index of two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
