package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// LLM parameters for title generation
const (
	titleTimeout      = 15 * time.Second
	titleMaxTokens    = 30
	titleTemperature  = 0.1
	titleTopP         = 0.5
	titleMaxLen       = 500
	titleMaxRuneCount = 50
)

const titleSystemPrompt = `You generate short titles for chat conversations.

Rules:
1. At most 8 words, no quotes, no trailing punctuation.
2. Reflect the core topic of the user's first message.
3. If the message is a question, the question itself may be the title.

Return JSON: {"title": "<generated title>"}`

// TitleGenerator generates meaningful titles for conversations from the first
// user message.
type TitleGenerator struct {
	client *openai.Client
	model  string
}

// TitleGeneratorConfig holds configuration for the title generator.
type TitleGeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewTitleGenerator creates a new title generator instance.
func NewTitleGenerator(cfg TitleGeneratorConfig) *TitleGenerator {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &TitleGenerator{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}
}

// Generate generates a title from the first user message of a conversation.
func (tg *TitleGenerator) Generate(ctx context.Context, firstUserMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	if len(firstUserMessage) > titleMaxLen {
		firstUserMessage = firstUserMessage[:titleMaxLen] + "..."
	}

	req := openai.ChatCompletionRequest{
		Model:       tg.model,
		MaxTokens:   titleMaxTokens,
		Temperature: titleTemperature,
		TopP:        titleTopP,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: titleSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("User message: %s\n\nGenerate a short title for this conversation.", firstUserMessage),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	resp, err := tg.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)

	if err != nil {
		slog.Error("title_generation_failed",
			"model", tg.model,
			"error", err,
			"latency_ms", latency.Milliseconds())
		return "", fmt.Errorf("LLM request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}

	var result struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		// Some models answer with the bare title despite the JSON instruction.
		fallback := strings.TrimSpace(strings.Trim(resp.Choices[0].Message.Content, "\"` \n"))
		if fallback == "" {
			return "", fmt.Errorf("parse response failed: %w", err)
		}
		result.Title = fallback
	}

	if result.Title == "" {
		return "", fmt.Errorf("empty title in response")
	}

	// Truncate to max length (rune-aware for UTF-8)
	runes := []rune(result.Title)
	if len(runes) > titleMaxRuneCount {
		result.Title = string(runes[:titleMaxRuneCount])
	}

	slog.Debug("title_generation_success",
		"model", tg.model,
		"title", result.Title,
		"latency_ms", latency.Milliseconds(),
		"tokens_total", resp.Usage.TotalTokens)

	return result.Title, nil
}
