// Package tutor implements the study-session operations. Every operation takes
// a Session value and returns the updated copy; callers persist it.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/edumentor/internal/ingest"
	"github.com/pavelanni/edumentor/internal/kb"
	"github.com/pavelanni/edumentor/internal/llm"
	"github.com/pavelanni/edumentor/internal/llm/prompts"
	"github.com/pavelanni/edumentor/internal/model"
	"github.com/pavelanni/edumentor/internal/quiz"
)

// DefaultTemperature is the default of the CLI's --temperature flag. New uses the
// configured value as given, so 0 stays 0.
const DefaultTemperature float32 = 0.3

var (
	ErrNoKnowledge   = errors.New("knowledge base is empty")
	ErrNoQuiz        = errors.New("no quiz has been generated")
	ErrOutOfRange    = errors.New("index out of range")
	ErrEmptyQuestion = errors.New("question is empty")
)

// Service runs session operations against a model.
type Service struct {
	gen     llm.Generator
	builder *kb.Builder
	quizzer *quiz.Generator
	cfg     model.TutorConfig
	now     func() time.Time
}

// New creates a Service. A nil builder means the default chunking and budget.
func New(gen llm.Generator, builder *kb.Builder, cfg model.TutorConfig) (*Service, error) {
	if builder == nil {
		builder = kb.NewBuilder()
	}
	if err := builder.Validate(); err != nil {
		return nil, fmt.Errorf("invalid context builder: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = string(prompts.English)
	}
	if !prompts.IsValidLanguage(cfg.Language) {
		return nil, fmt.Errorf("unsupported language: %q", cfg.Language)
	}
	if cfg.QuizCount <= 0 {
		cfg.QuizCount = quiz.DefaultCount
	}
	return &Service{
		gen:     gen,
		builder: builder,
		quizzer: quiz.NewGenerator(gen, prompts.Language(cfg.Language)),
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// Config returns the effective tutor configuration.
func (svc *Service) Config() model.TutorConfig { return svc.cfg }

// IndexResult describes a knowledge base build.
type IndexResult struct {
	kb.Result
	Skipped []string // names of sources that could not be read
}

// IndexKB ingests the sources, builds the knowledge base and replaces the session's
// knowledge text with it. Unreadable sources are skipped.
func (svc *Service) IndexKB(s model.Session, sources []model.RawSource, pasted string) (model.Session, IndexResult, error) {
	texts, skipped := ingest.IngestAll(sources)
	res, err := svc.builder.Build(texts, pasted)
	if err != nil {
		return s, IndexResult{}, fmt.Errorf("build knowledge base: %w", err)
	}

	out := s.Clone()
	out.KBText = res.Text
	slog.Info("knowledge base indexed",
		"session", s.ID, "sources", len(sources), "skipped", len(skipped), "chars", utf8.RuneCountInString(res.Text))
	return out, IndexResult{Result: res, Skipped: skipped}, nil
}

// Ask appends the question and the tutor's reply to the transcript.
// A failed model call still appends a visible failure note as the reply.
func (svc *Service) Ask(ctx context.Context, s model.Session, question string) (model.Session, llm.Reply, error) {
	if strings.TrimSpace(question) == "" {
		return s, llm.Reply{}, ErrEmptyQuestion
	}

	system, user, err := prompts.BuildTutor(prompts.Language(svc.cfg.Language), prompts.TutorData{
		Domain:   svc.cfg.Domain,
		Style:    svc.cfg.Style,
		KB:       s.KBText,
		Question: question,
	})
	if err != nil {
		return s, llm.Reply{}, fmt.Errorf("build tutor prompt: %w", err)
	}

	out := s.Clone()
	out.Messages = append(out.Messages, model.ChatTurn{Role: model.RoleUser, Text: question})

	reply := svc.gen.Generate(ctx, llm.Request{System: system, User: user, Temperature: svc.cfg.Temperature})
	if !reply.OK() {
		slog.Warn("tutor reply failed", "session", s.ID, "error", reply.Err)
	}
	out.Messages = append(out.Messages, model.ChatTurn{Role: model.RoleAssistant, Text: reply.Display()})
	return out, reply, nil
}

// GenerateQuiz replaces the session's quiz with n new questions (the configured
// count when n <= 0) and clears recorded answers. A failed attempt leaves an empty quiz.
func (svc *Service) GenerateQuiz(ctx context.Context, s model.Session, n int) (model.Session, quiz.Outcome, error) {
	if strings.TrimSpace(s.KBText) == "" {
		return s, quiz.Outcome{}, ErrNoKnowledge
	}
	if n <= 0 {
		n = svc.cfg.QuizCount
	}

	outcome := svc.quizzer.Generate(ctx, s.KBText, n)

	out := s.Clone()
	out.Quiz = outcome.Items
	out.Answers = map[int]int{}
	return out, outcome, nil
}

// Answer records the selected option for a question. Both indexes are zero-based.
func (svc *Service) Answer(s model.Session, question, option int) (model.Session, error) {
	if len(s.Quiz) == 0 {
		return s, ErrNoQuiz
	}
	if question < 0 || question >= len(s.Quiz) {
		return s, fmt.Errorf("question %d: %w", question+1, ErrOutOfRange)
	}
	if option < 0 || option >= len(s.Quiz[question].Options) {
		return s, fmt.Errorf("option %d: %w", option+1, ErrOutOfRange)
	}

	out := s.Clone()
	out.Answers[question] = option
	return out, nil
}

// Submit grades the current quiz and stores the result as the last quiz result.
func (svc *Service) Submit(s model.Session) (model.Session, model.QuizResult, error) {
	if len(s.Quiz) == 0 {
		return s, model.QuizResult{}, ErrNoQuiz
	}
	res, err := quiz.Grade(s.Quiz, s.Answers, svc.now())
	if err != nil {
		return s, model.QuizResult{}, fmt.Errorf("grade quiz: %w", err)
	}

	out := s.Clone()
	out.LastQuizResult = &res
	slog.Info("quiz submitted", "session", s.ID, "score", res.Score, "questions", len(res.Rows))
	return out, res, nil
}

// Reset clears the transcript, knowledge base, quiz, answers and last result.
// Identity fields are kept.
func (svc *Service) Reset(s model.Session) model.Session {
	return model.Session{
		ID:        s.ID,
		Name:      s.Name,
		Answers:   map[int]int{},
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Import replaces the transcript and knowledge text with the document's.
// The last quiz result is replaced only when the document carries one.
func (svc *Service) Import(s model.Session, doc model.SessionExport) model.Session {
	out := s.Clone()
	out.Messages = append([]model.ChatTurn(nil), doc.Messages...)
	out.KBText = doc.KBText
	if doc.LastQuizResult != nil {
		r := *doc.LastQuizResult
		r.Rows = append([]model.QuizAnswerRow(nil), doc.LastQuizResult.Rows...)
		out.LastQuizResult = &r
	}
	return out
}

// Export returns the transferable part of the session.
func (svc *Service) Export(s model.Session) model.SessionExport {
	return model.ExportOf(s)
}
