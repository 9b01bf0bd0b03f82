package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/model"
	"github.com/pavelanni/edumentor/internal/tutor"
)

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [files...]",
		Short: "Build the active session's knowledge base from files and pasted text",
		Long: `Reads .txt, .md and .pdf files (in the given order) plus optional pasted text,
and replaces the active session's knowledge base with the result.`,
		RunE: runIndex,
	}
	f := cmd.Flags()
	f.String("paste", "", "Text to append after the files")
	f.String("paste-file", "", "Read the pasted text from a file (- for stdin)")
	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sources := make([]model.RawSource, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, model.RawSource{Kind: model.SourceFile, Name: filepath.Base(path), Data: data})
	}

	pasted := a.v.GetString("paste")
	if p := a.v.GetString("paste-file"); p != "" {
		text, err := readInput(cmd, p)
		if err != nil {
			return err
		}
		pasted = text
	}

	sess, err := a.activeSession(cmd, true)
	if err != nil {
		return err
	}
	sess, res, err := a.tutor.IndexKB(sess, sources, pasted)
	if err != nil {
		return err
	}
	if err := a.store.SaveSession(&sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	chars := len([]rune(res.Text))
	if chars == 0 {
		fmt.Fprintln(out, appI18n.T(ctx, "KBEmpty"))
	} else {
		printer := message.NewPrinter(language.Make(a.tutor.Config().Language))
		fmt.Fprintln(out, appI18n.Td(ctx, "KBReady", map[string]any{"Chars": printer.Sprintf("%d", chars)}))
	}
	if res.Truncated() {
		fmt.Fprintln(out, renderNote(appI18n.Td(ctx, "KBTruncated", map[string]any{
			"Included": res.IncludedChunks, "Total": res.TotalChunks,
		})))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintln(out, renderNote(appI18n.Tp(ctx, "SourcesSkipped", len(res.Skipped))+" "+strings.Join(res.Skipped, ", ")))
	}
	return nil
}

// readInput reads a whole file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the tutor a question about the active session's material",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.activeSession(cmd, true)
	if err != nil {
		return err
	}
	sess, reply, err := a.tutor.Ask(cmd.Context(), sess, strings.Join(args, " "))
	if errors.Is(err, tutor.ErrEmptyQuestion) {
		return errors.New(appI18n.T(cmd.Context(), "EmptyQuestion"))
	}
	if err != nil {
		return err
	}
	if err := a.store.SaveSession(&sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTurn(model.ChatTurn{Role: model.RoleAssistant, Text: reply.Display()}))
	if !reply.OK() {
		fmt.Fprintln(cmd.ErrOrStderr(), renderNote(appI18n.T(cmd.Context(), "ModelFailed")))
	}
	return nil
}

func quizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate, answer and grade multiple-choice quizzes",
	}

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Create a new quiz from the active session's knowledge base",
		Args:  cobra.NoArgs,
		RunE:  runQuizGenerate,
	}
	generate.Flags().IntP("count", "n", 0, "Number of questions (0 = --quiz-count)")

	cmd.AddCommand(
		generate,
		&cobra.Command{
			Use:   "show",
			Short: "Show the current quiz and selected answers",
			Args:  cobra.NoArgs,
			RunE:  runQuizShow,
		},
		&cobra.Command{
			Use:   "answer <question> <option>",
			Short: "Select an option (1-4 or A-D) for a question",
			Args:  cobra.ExactArgs(2),
			RunE:  runQuizAnswer,
		},
		&cobra.Command{
			Use:   "submit",
			Short: "Grade the quiz",
			Args:  cobra.NoArgs,
			RunE:  runQuizSubmit,
		},
	)
	return cmd
}

func runQuizGenerate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	sess, err := a.activeSession(cmd, false)
	if err != nil {
		return err
	}
	sess, outcome, err := a.tutor.GenerateQuiz(ctx, sess, a.v.GetInt("count"))
	if errors.Is(err, tutor.ErrNoKnowledge) {
		return errors.New(appI18n.T(ctx, "NoKnowledge"))
	}
	if err != nil {
		return err
	}
	if err := a.store.SaveSession(&sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if !outcome.OK() {
		slog.Debug("raw quiz reply", "raw", outcome.Raw)
		return fmt.Errorf("%s: %w", appI18n.T(ctx, "QuizFailed"), outcome.Err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, appI18n.Tp(ctx, "QuizReady", len(outcome.Items)))
	fmt.Fprintln(out, renderQuiz(sess))
	return nil
}

func runQuizShow(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.activeSession(cmd, false)
	if err != nil {
		return err
	}
	if len(sess.Quiz) == 0 {
		return errors.New(appI18n.T(cmd.Context(), "NoQuiz"))
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderQuiz(sess))
	return nil
}

// parseOption accepts a 1-based option number or a letter A-D and returns a zero-based index.
func parseOption(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		if c := strings.ToUpper(s)[0]; c >= 'A' && c <= 'Z' {
			return int(c - 'A'), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid option %q", s)
	}
	return n - 1, nil
}

func runQuizAnswer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	no, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid question number %q", args[0])
	}
	option, err := parseOption(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.activeSession(cmd, false)
	if err != nil {
		return err
	}
	sess, err = a.tutor.Answer(sess, no-1, option)
	switch {
	case errors.Is(err, tutor.ErrNoQuiz):
		return errors.New(appI18n.T(ctx, "NoQuiz"))
	case errors.Is(err, tutor.ErrOutOfRange):
		return fmt.Errorf("%s (%w)", appI18n.T(ctx, "OutOfRange"), err)
	case err != nil:
		return err
	}
	if err := a.store.SaveSession(&sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(ctx, "AnswerSaved"))
	return nil
}

func runQuizSubmit(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.activeSession(cmd, false)
	if err != nil {
		return err
	}
	sess, res, err := a.tutor.Submit(sess)
	if errors.Is(err, tutor.ErrNoQuiz) {
		return errors.New(appI18n.T(cmd.Context(), "NoQuiz"))
	}
	if err != nil {
		return err
	}
	if err := a.store.SaveSession(&sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderResult(cmd.Context(), res))
	return nil
}
