package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini wraps the Google Generative AI client.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return &Gemini{client: client, model: modelName}, nil
}

// Generate sends the request as two text parts and joins the text parts of the first candidate.
func (g *Gemini) Generate(ctx context.Context, req Request) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			reply = Failed(fmt.Errorf("%v", r))
		}
	}()

	// A model value per call keeps the temperature local to this request.
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(req.Temperature)

	resp, err := m.GenerateContent(ctx, geminiParts(req)...)
	if err != nil {
		slog.Warn("model call failed", "provider", ProviderGemini, "model", g.model, "error", err)
		return Failed(err)
	}

	text := candidateText(resp)
	slog.Debug("model response", "provider", ProviderGemini, "chars", len(text))
	return Reply{Text: text}
}

// geminiParts lays out the request as the marked system part followed by the task.
func geminiParts(req Request) []genai.Part {
	system, user := userParts(req)
	return []genai.Part{genai.Text(system), genai.Text(user)}
}

// candidateText joins the text parts of the first candidate and trims the result.
// A response without candidates or content yields "".
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}

// Ping fetches the first entry of the model listing.
func (g *Gemini) Ping(ctx context.Context) error {
	it := g.client.ListModels(ctx)
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}
