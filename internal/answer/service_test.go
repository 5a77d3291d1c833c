package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/require"

	"github.com/sitescout/sitescout/internal/crawler"
)

func TestTextFromBlocksSkipsNonTextBlocks(t *testing.T) {
	t.Parallel()

	blocks := []anthropic.ContentBlockUnion{
		{Type: "text", Text: "The site offers "},
		{Type: "tool_use"},
		{Type: "text", Text: "30 day refunds."},
	}
	require.Equal(t, "The site offers 30 day refunds.", textFromBlocks(blocks))
	require.Empty(t, textFromBlocks(nil))
}

func TestGenerateNoContextReturnsEmpty(t *testing.T) {
	t.Parallel()

	s := New(Config{APIKey: "test-key"}, nil)
	got, err := s.Generate(context.Background(), "anything", nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBuildAnswerPromptCapsContextItems(t *testing.T) {
	t.Parallel()

	items := make([]crawler.ContextItem, 8)
	for i := range items {
		items[i] = crawler.ContextItem{
			Title:   "Page",
			URL:     "https://example.com",
			Content: "body",
		}
	}

	prompt := buildAnswerPrompt("what is it", items)
	require.Contains(t, prompt, "Source 5:")
	require.NotContains(t, prompt, "Source 6:")
	require.True(t, strings.HasSuffix(prompt, "Question: what is it"))
}

func TestBuildAnswerPromptTruncatesLongContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", maxItemChars+500)
	prompt := buildAnswerPrompt("q", []crawler.ContextItem{
		{Title: "Long", URL: "https://example.com", Content: long},
	})
	require.Contains(t, prompt, strings.Repeat("x", maxItemChars))
	require.NotContains(t, prompt, strings.Repeat("x", maxItemChars+1))
}

func TestBuildAnswerPromptIncludesSources(t *testing.T) {
	t.Parallel()

	prompt := buildAnswerPrompt("refund policy", []crawler.ContextItem{
		{Title: "FAQ", URL: "https://example.com/faq", Content: "30 day refunds"},
	})
	require.Contains(t, prompt, "FAQ (https://example.com/faq)")
	require.Contains(t, prompt, "30 day refunds")
}

func TestHistoryMessagesTrimsToRecentTurns(t *testing.T) {
	t.Parallel()

	history := make([]crawler.ChatTurn, 14)
	for i := range history {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history[i] = crawler.ChatTurn{Role: role, Content: "turn"}
	}

	messages := historyMessages(history)
	require.Len(t, messages, maxHistoryTurns)
}

func TestHistoryMessagesSkipsEmptyTurns(t *testing.T) {
	t.Parallel()

	messages := historyMessages([]crawler.ChatTurn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: ""},
		{Role: "assistant", Content: "hi"},
	})
	require.Len(t, messages, 2)
}
