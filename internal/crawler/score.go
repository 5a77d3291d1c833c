package crawler

import "strings"

const linkHitWeight = 10

// ScoreLink scores a candidate URL against a query by counting
// case-insensitive occurrences of each query token within the URL string,
// weighted 10 per hit. An empty query scores every link zero. This is a
// deterministic tie-break heuristic for frontier ordering, not a relevance
// claim.
func ScoreLink(rawURL, query string) int {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(rawURL)
	score := 0
	for _, tok := range tokens {
		score += linkHitWeight * strings.Count(lower, tok)
	}
	return score
}
