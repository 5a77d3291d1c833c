package crawler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchSiteAggregatesAndRanks(t *testing.T) {
	driver := &fakeDriver{pages: map[string]string{
		"https://x.test/": `<html><head><title>Widgets</title></head><body>
			<p>widget catalog</p><a href="https://other.test/away">away</a>
		</body></html>`,
		"https://other.test/away": "<html><body><p>elsewhere</p></body></html>",
	}}
	o := newTestOrchestrator(driver)

	docs, results, err := o.SearchSite(context.Background(), "https://x.test", "widget", 5, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1, "a site search produces one aggregate document")
	require.Equal(t, "https://x.test/", docs[0].ParentURL)
	require.NotEmpty(t, results)
	require.Positive(t, results[0].Score)
	require.NotContains(t, driver.visited, "https://other.test/away", "site searches stay on the target domain")
}

func TestRankResultsEmptyInput(t *testing.T) {
	require.Empty(t, RankResults(nil, "anything"))
	require.Empty(t, RankResults([]Document{}, "anything"))
}

func TestRankResultsScoring(t *testing.T) {
	docs := []Document{{
		ID:      "https://a.test/",
		Title:   "widget widget review",
		Content: "the best widget around",
	}}
	results := RankResults(docs, "widget")
	require.Len(t, results, 1)
	// Two title hits at weight 3 plus one content hit at weight 1.
	require.Equal(t, 7, results[0].Score)
}

func TestRankResultsOrdering(t *testing.T) {
	docs := []Document{
		{ID: "https://a.test/low", Title: "nothing", Content: "nothing here"},
		{ID: "https://a.test/high", Title: "widget", Content: "widget widget"},
		{ID: "https://a.test/also-low", Title: "nothing", Content: "nothing here"},
	}
	results := RankResults(docs, "widget")
	require.Equal(t, "https://a.test/high", results[0].URL)
	// Ties keep input order.
	require.Equal(t, "https://a.test/low", results[1].URL)
	require.Equal(t, "https://a.test/also-low", results[2].URL)
}

func TestRankResultsSnippet(t *testing.T) {
	t.Run("window around first match", func(t *testing.T) {
		content := strings.Repeat("x", 300) + " widget appears here " + strings.Repeat("y", 300)
		results := RankResults([]Document{{ID: "u", Title: "t", Content: content}}, "widget")
		snippet := results[0].Snippet
		require.True(t, strings.HasPrefix(snippet, "..."))
		require.True(t, strings.HasSuffix(snippet, "..."))
		require.Contains(t, snippet, "widget")
	})

	t.Run("no match falls back to leading content", func(t *testing.T) {
		content := strings.Repeat("z", 500)
		results := RankResults([]Document{{ID: "u", Title: "t", Content: content}}, "widget")
		require.Equal(t, content[:200], results[0].Snippet)
	})

	t.Run("short content returned whole", func(t *testing.T) {
		results := RankResults([]Document{{ID: "u", Title: "t", Content: "short"}}, "widget")
		require.Equal(t, "short", results[0].Snippet)
	})
}

func TestScoreLink(t *testing.T) {
	require.Equal(t, 0, ScoreLink("https://a.com/widgets", ""))
	require.Equal(t, 10, ScoreLink("https://a.com/widgets", "widgets"))
	require.Equal(t, 20, ScoreLink("https://a.com/gadget/gadget", "gadget"))
	require.Equal(t, 20, ScoreLink("https://a.com/red-widget", "red widget"))
	require.Equal(t, 10, ScoreLink("https://a.com/WIDGETS", "widgets"))
}
