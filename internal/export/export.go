// Package export renders search results into downloadable documents.
package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sitescout/sitescout/internal/crawler"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9]+`)

// JSON renders results as an indented JSON document.
func JSON(results []crawler.RankedResult, query string) ([]byte, error) {
	payload := struct {
		Query       string                 `json:"query"`
		GeneratedAt string                 `json:"generatedAt"`
		ResultCount int                    `json:"resultCount"`
		Results     []crawler.RankedResult `json:"results"`
	}{
		Query:       query,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		ResultCount: len(results),
		Results:     results,
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return out, nil
}

// Markdown renders results as a readable report.
func Markdown(results []crawler.RankedResult, query string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Search Results: %s\n\n", query)
	fmt.Fprintf(&b, "%d result(s)\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, r.Title)
		fmt.Fprintf(&b, "- URL: %s\n- Score: %d\n\n", r.URL, r.Score)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "%s\n\n", r.Snippet)
		}
	}
	return []byte(b.String())
}

// Filename builds a download name like "search-refund-policy.json" from the
// query and format extension.
func Filename(query, ext string) string {
	slug := unsafeFilenameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(query)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "results"
	}
	return fmt.Sprintf("search-%s.%s", slug, ext)
}
