// Package answer generates grounded answers over crawled content using the
// Anthropic API.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/sitescout/sitescout/internal/crawler"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024

	// maxContextItems and maxItemChars bound the prompt size; lower-ranked
	// hits and page tails add little grounding value.
	maxContextItems = 5
	maxItemChars    = 1000
	maxHistoryTurns = 10
)

const chatSystemPrompt = `You are a helpful assistant that answers questions about a specific website.
You are given excerpts from the site's crawled pages as context.
Answer using only that context. If the context does not contain the answer, say so plainly.
Cite the source URL for any fact you use.`

// Config controls the Anthropic client.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Service implements crawler.AnswerService against the Anthropic Messages API.
type Service struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *zap.Logger
}

// New builds a Service. The API key may be empty; calls will then fail and
// callers fall back to answerless results.
func New(cfg Config, logger *zap.Logger) *Service {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
		logger:    logger,
	}
}

// Generate produces a single concise answer grounded in the given context
// items. No context means no answer, not an error.
func (s *Service) Generate(ctx context.Context, query string, items []crawler.ContextItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}

	prompt := buildAnswerPrompt(query, items)
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	return textFromBlocks(resp.Content), nil
}

// textFromBlocks concatenates the text content blocks of a response, skipping
// tool-use and other non-text blocks.
func textFromBlocks(blocks []anthropic.ContentBlockUnion) string {
	var out strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(out.String())
}

// GenerateStream streams an answer chunk by chunk, carrying prior turns of
// the conversation. fn returning an error aborts the stream.
func (s *Service) GenerateStream(
	ctx context.Context,
	query string,
	items []crawler.ContextItem,
	history []crawler.ChatTurn,
	fn func(chunk string) error,
) error {
	messages := historyMessages(history)
	messages = append(messages, anthropic.NewUserMessage(
		anthropic.NewTextBlock(buildAnswerPrompt(query, items)),
	))

	stream := s.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: chatSystemPrompt},
		},
		Messages: messages,
	})
	defer stream.Close() //nolint:errcheck

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				if err := fn(delta.Text); err != nil {
					return fmt.Errorf("deliver answer chunk: %w", err)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("stream answer: %w", err)
	}
	return nil
}

// buildAnswerPrompt assembles the grounded question prompt from the top
// context items, truncating long content.
func buildAnswerPrompt(query string, items []crawler.ContextItem) string {
	if len(items) > maxContextItems {
		items = items[:maxContextItems]
	}

	var b strings.Builder
	b.WriteString("Answer the question below using only the provided sources. Be concise and cite source URLs.\n\n")
	for i, item := range items {
		content := item.Content
		if len(content) > maxItemChars {
			content = content[:maxItemChars]
		}
		fmt.Fprintf(&b, "Source %d: %s (%s)\n%s\n\n", i+1, item.Title, item.URL, content)
	}
	if len(items) == 0 {
		b.WriteString("No sources are available.\n\n")
	}
	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}

// historyMessages maps the most recent conversation turns into API messages.
func historyMessages(history []crawler.ChatTurn) []anthropic.MessageParam {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		if turn.Content == "" {
			continue
		}
		if turn.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
	}
	return messages
}
