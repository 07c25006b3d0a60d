package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const maxTitleLength = 80

type Titler interface {
	GenerateTitle(ctx context.Context, message string) (string, error)
}

const titleSystemPrompt = `- you will generate a short title based on the first message a user begins a conversation with
- ensure it is not more than 80 characters long
- the title should be a summary of the user's message
- do not use quotes or colons`

// LLMTitler names conversations using a langchain model.
type LLMTitler struct {
	llm llms.Model
}

func NewLLMTitler(llm llms.Model) *LLMTitler {
	return &LLMTitler{llm: llm}
}

func NewOpenAITitler(apiKey, baseURL, model string) (*LLMTitler, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create title model client: %w", err)
	}
	return NewLLMTitler(llm), nil
}

func (t *LLMTitler) GenerateTitle(ctx context.Context, message string) (string, error) {
	resp, err := t.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, titleSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, message),
	}, llms.WithTemperature(0.2), llms.WithMaxTokens(40))
	if err != nil {
		return "", fmt.Errorf("error generating title: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("error generating title: model returned no choices")
	}

	title := CleanTitle(resp.Choices[0].Content)
	if title == "" {
		return "", fmt.Errorf("error generating title: model returned an empty title")
	}
	return title, nil
}

// CleanTitle strips quoting and punctuation models like to wrap titles in and
// caps the length.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, "\"'`\n\r\t .")
	title = strings.ReplaceAll(title, ":", "")
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleLength]))
	}
	return title
}

// FallbackTitle is used when the title model is unavailable.
func FallbackTitle(message string) string {
	title := CleanTitle(strings.Join(strings.Fields(message), " "))
	if title == "" {
		return "New chat"
	}
	return title
}

// TitleOrFallback never fails, conversations always get some title.
func TitleOrFallback(ctx context.Context, titler Titler, message string) string {
	if titler != nil {
		title, err := titler.GenerateTitle(ctx, message)
		if err == nil {
			return title
		}
		slog.Warn("title generation failed, falling back to message text", "error", err)
	}
	return FallbackTitle(message)
}
