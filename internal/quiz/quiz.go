// Package quiz turns study material into multiple-choice questions and grades answers.
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/pavelanni/edumentor/internal/llm"
	"github.com/pavelanni/edumentor/internal/llm/prompts"
	"github.com/pavelanni/edumentor/internal/model"
)

const (
	// DefaultCount is the number of questions requested when none is given.
	DefaultCount = 5
	// Temperature keeps quiz output close to the requested format.
	Temperature float32 = 0.2
)

// Failure reasons. An Outcome carrying one of these has no items.
var (
	ErrGeneration    = errors.New("quiz generation failed")
	ErrNoJSONArray   = errors.New("no JSON array in model output")
	ErrMalformedJSON = errors.New("malformed JSON in model output")
	ErrNoValidItems  = errors.New("no valid quiz items in model output")
)

// ItemSchema returns the JSON Schema of a quiz item, as embedded in the quiz prompt.
var ItemSchema = sync.OnceValue(func() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&model.QuizItem{})
	b, err := json.Marshal(schema)
	if err != nil {
		slog.Error("marshal quiz item schema", "error", err)
		return ""
	}
	return string(b)
})

// Outcome is the result of one generation attempt.
type Outcome struct {
	Items []model.QuizItem
	Raw   string
	Err   error
}

// OK reports whether the attempt produced items.
func (o Outcome) OK() bool { return o.Err == nil && len(o.Items) > 0 }

// Generator asks a model for quiz items about a knowledge base.
type Generator struct {
	gen  llm.Generator
	lang prompts.Language
}

// NewGenerator creates a Generator that writes questions in lang.
func NewGenerator(gen llm.Generator, lang prompts.Language) *Generator {
	if lang == "" {
		lang = prompts.English
	}
	return &Generator{gen: gen, lang: lang}
}

// Generate requests n questions (DefaultCount when n <= 0) about blob.
// Failures are reported in Outcome.Err and never panic.
func (g *Generator) Generate(ctx context.Context, blob string, n int) Outcome {
	if n <= 0 {
		n = DefaultCount
	}

	system, user, err := prompts.BuildQuiz(g.lang, prompts.QuizData{
		Count:   n,
		Schema:  ItemSchema(),
		Context: blob,
	})
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: %v", ErrGeneration, err)}
	}

	reply := g.gen.Generate(ctx, llm.Request{System: system, User: user, Temperature: Temperature})
	if !reply.OK() {
		return Outcome{Err: fmt.Errorf("%w: %w", ErrGeneration, reply.Err)}
	}

	items, err := ParseItems(reply.Text)
	if err != nil {
		slog.Warn("quiz output rejected", "error", err, "chars", len(reply.Text))
		return Outcome{Raw: reply.Text, Err: err}
	}
	if len(items) > n {
		items = items[:n]
	}
	slog.Info("quiz generated", "requested", n, "items", len(items))
	return Outcome{Items: items, Raw: reply.Text}
}
