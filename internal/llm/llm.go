// Package llm provides the single call shape used to reach a text generation model.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// FailurePrefix starts every failure text rendered by Reply.Display.
const FailurePrefix = "(Failed to call model: "

// systemMarker introduces the system part. Both parts travel with the user role.
const systemMarker = "SYSTEM:\n"

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Request is one generation call.
type Request struct {
	System      string
	User        string
	Temperature float32
}

// Reply is the outcome of a generation call. Exactly one of Text or Err is meaningful.
type Reply struct {
	Text string
	Err  error
}

// OK reports whether the call succeeded.
func (r Reply) OK() bool { return r.Err == nil }

// Display returns the text to show to the user: the model output, or a failure note.
func (r Reply) Display() string {
	if r.Err != nil {
		return FailurePrefix + r.Err.Error() + ")"
	}
	return r.Text
}

// Failed builds a failed Reply.
func Failed(err error) Reply { return Reply{Err: err} }

// Generator sends a prompt to a model. Implementations never panic and never
// return transport errors other than through Reply.Err.
type Generator interface {
	Generate(ctx context.Context, req Request) Reply
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) Reply

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req Request) Reply { return f(ctx, req) }

// Backend is a Generator bound to a remote provider.
type Backend interface {
	Generator
	// Ping checks that the provider is reachable with the configured credentials.
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	GeminiKey string
}

// New creates the backend named by cfg.Provider. An empty provider means OpenAI.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.GeminiKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func userParts(req Request) (string, string) {
	return systemMarker + req.System, req.User
}
