// Package kb assembles the bounded knowledge-base context handed to the model.
package kb

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 150
	DefaultBudget       = 25000

	separator = "\n\n"
)

// Separators are tried in order: paragraphs, lines, sentences, words, then characters.
var Separators = []string{"\n\n", "\n", ". ", " ", ""}

// Builder splits study material into overlapping chunks and keeps a prefix that fits the budget.
// All sizes are measured in characters (runes).
type Builder struct {
	ChunkSize    int
	ChunkOverlap int
	Budget       int
}

// Result is the outcome of a build.
type Result struct {
	Text           string
	TotalChunks    int
	IncludedChunks int
}

// Truncated reports whether some chunks did not fit the budget.
func (r Result) Truncated() bool {
	return r.IncludedChunks < r.TotalChunks
}

// NewBuilder returns a Builder with the default 1200/150 chunking and a 25,000 character budget.
func NewBuilder() *Builder {
	return &Builder{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Budget:       DefaultBudget,
	}
}

// Validate checks that the parameters describe a usable splitter.
func (b *Builder) Validate() error {
	if b.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	if b.ChunkOverlap < 0 || b.ChunkOverlap >= b.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d)", b.ChunkSize)
	}
	if b.Budget <= 0 {
		return errors.New("context budget must be positive")
	}
	return nil
}

// Split cuts text into chunks of at most ChunkSize characters, preferring natural boundaries.
// Consecutive chunks share up to ChunkOverlap characters.
func (b *Builder) Split(text string) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators(Separators),
		textsplitter.WithChunkSize(b.ChunkSize),
		textsplitter.WithChunkOverlap(b.ChunkOverlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	return lo.Filter(chunks, func(c string, _ int) bool {
		return strings.TrimSpace(c) != ""
	}), nil
}

// Build joins the ingested texts (in upload order) and the pasted text (last),
// splits the result and keeps the longest prefix of chunks that fits the budget.
// Blank input yields an empty Result.
func (b *Builder) Build(texts []string, pasted string) (Result, error) {
	parts := lo.Filter(texts, func(t string, _ int) bool { return t != "" })
	if p := strings.TrimSpace(pasted); p != "" {
		parts = append(parts, p)
	}

	full := strings.Join(parts, separator)
	if strings.TrimSpace(full) == "" {
		return Result{}, nil
	}

	chunks, err := b.Split(full)
	if err != nil {
		return Result{}, err
	}

	sepLen := utf8.RuneCountInString(separator)
	var included []string
	size := 0
	for _, c := range chunks {
		n := utf8.RuneCountInString(c)
		if len(included) > 0 {
			n += sepLen
		}
		if size+n > b.Budget {
			break
		}
		included = append(included, c)
		size += n
	}

	res := Result{
		Text:           strings.Join(included, separator),
		TotalChunks:    len(chunks),
		IncludedChunks: len(included),
	}
	if res.Truncated() {
		slog.Info("knowledge base truncated to budget",
			"budget", b.Budget, "chunks", res.TotalChunks, "included", res.IncludedChunks)
	}
	return res, nil
}
