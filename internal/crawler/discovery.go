package crawler

import (
	"context"
	"sort"
	"strings"
)

// DefaultSeeds are the high-quality domains explored when no target site is
// supplied.
var DefaultSeeds = []string{
	"https://en.wikipedia.org/wiki/Main_Page",
	"https://www.bbc.com/news",
	"https://www.reuters.com",
	"https://www.medium.com",
	"https://www.theverge.com",
	"https://www.wired.com",
	"https://www.nature.com",
	"https://www.bloomberg.com",
}

// autonomousBudget keeps discovery sessions reasonably fast.
const autonomousBudget = 20

const (
	titleHitWeight   = 3
	contentHitWeight = 1
	snippetLength    = 200
	snippetBefore    = 60
	snippetAfter     = 140
)

// AutonomousSearch explores the default seeds for query matches and ranks the
// results in memory, bypassing the document store.
func (o *Orchestrator) AutonomousSearch(ctx context.Context, query string, progress ProgressReporter) ([]RankedResult, error) {
	docs, err := o.Crawl(ctx, Request{
		SeedURLs: DefaultSeeds,
		MaxPages: autonomousBudget,
		Query:    query,
	}, progress)
	if err != nil {
		return nil, err
	}
	return RankResults(docs, query), nil
}

// SearchSite crawls a single site into an aggregate document, domain
// restricted, and ranks the results in memory. Documents gathered before a
// failure are returned alongside the error so callers can still index them.
func (o *Orchestrator) SearchSite(ctx context.Context, siteURL, query string, maxPages int, progress ProgressReporter) ([]Document, []RankedResult, error) {
	docs, err := o.Crawl(ctx, Request{
		SeedURLs:       []string{siteURL},
		MaxPages:       maxPages,
		Query:          query,
		RestrictDomain: true,
		Aggregate:      true,
	}, progress)
	return docs, RankResults(docs, query), err
}

// RankResults scores and snippets a small result set without a persistent
// index. Title hits weigh 3, content hits 1; the snippet is a window centered
// on the first query-token match in content, falling back to the leading 200
// characters. Ordering is score descending, stable by input order.
func RankResults(docs []Document, query string) []RankedResult {
	if len(docs) == 0 {
		return []RankedResult{}
	}
	terms := strings.Fields(strings.ToLower(query))
	results := make([]RankedResult, 0, len(docs))
	for _, doc := range docs {
		title := strings.ToLower(doc.Title)
		content := strings.ToLower(doc.Content)
		score := 0
		for _, term := range terms {
			score += titleHitWeight * strings.Count(title, term)
			score += contentHitWeight * strings.Count(content, term)
		}
		results = append(results, RankedResult{
			URL:     doc.ID,
			Title:   doc.Title,
			Snippet: snippet(doc.Content, content, terms),
			Score:   score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// snippet finds the first query-term match and returns a window around it.
// lowered is the pre-lowercased content, kept alongside so the search is
// case-insensitive while the snippet preserves original casing.
func snippet(content, lowered string, terms []string) string {
	for _, term := range terms {
		idx := strings.Index(lowered, term)
		if idx < 0 {
			continue
		}
		start := idx - snippetBefore
		if start < 0 {
			start = 0
		}
		end := idx + snippetAfter
		if end > len(content) {
			end = len(content)
		}
		return "..." + content[start:end] + "..."
	}
	if len(content) > snippetLength {
		return content[:snippetLength]
	}
	return content
}
