package export

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitescout/sitescout/internal/crawler"
)

func sampleResults() []crawler.RankedResult {
	return []crawler.RankedResult{
		{Title: "Refund FAQ", URL: "https://example.com/faq", Score: 7, Snippet: "...30 day refunds..."},
		{Title: "Pricing", URL: "https://example.com/pricing", Score: 3, Snippet: ""},
	}
}

func TestJSONIncludesQueryAndResults(t *testing.T) {
	t.Parallel()

	out, err := JSON(sampleResults(), "refund policy")
	require.NoError(t, err)

	var decoded struct {
		Query       string                 `json:"query"`
		ResultCount int                    `json:"resultCount"`
		Results     []crawler.RankedResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "refund policy", decoded.Query)
	require.Equal(t, 2, decoded.ResultCount)
	require.Equal(t, "Refund FAQ", decoded.Results[0].Title)
}

func TestMarkdownReport(t *testing.T) {
	t.Parallel()

	out := string(Markdown(sampleResults(), "refund policy"))
	require.Contains(t, out, "# Search Results: refund policy")
	require.Contains(t, out, "## 1. Refund FAQ")
	require.Contains(t, out, "- URL: https://example.com/faq")
	require.Contains(t, out, "...30 day refunds...")
}

func TestFilename(t *testing.T) {
	t.Parallel()

	require.Equal(t, "search-refund-policy.json", Filename("Refund Policy!", "json"))
	require.Equal(t, "search-results.md", Filename("   ", "md"))
}
