package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model name is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI wraps an OpenAI-compatible API client.
type OpenAI struct {
	api   *openai.Client
	model string
}

// NewOpenAI creates a client for an OpenAI-compatible server.
func NewOpenAI(baseURL, apiKey, modelName string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return &OpenAI{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Generate sends the request as two user messages and returns the trimmed reply.
func (c *OpenAI) Generate(ctx context.Context, req Request) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			reply = Failed(fmt.Errorf("%v", r))
		}
	}()

	system, user := userParts(req)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: wireTemperature(req.Temperature),
	})
	if err != nil {
		slog.Warn("model call failed", "provider", ProviderOpenAI, "model", c.model, "error", err)
		return Failed(err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("model response", "provider", ProviderOpenAI, "chars", len(raw))
	return Reply{Text: strings.TrimSpace(raw)}
}

// wireTemperature maps 0 to the smallest positive float32. The request field is
// omitempty, and an omitted temperature means the provider default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// Ping lists the available models.
func (c *OpenAI) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no resources.
func (c *OpenAI) Close() error { return nil }
