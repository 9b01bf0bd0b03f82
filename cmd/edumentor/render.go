package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/llm"
	"github.com/pavelanni/edumentor/internal/model"
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	wrongStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

var optionLetters = []string{"A", "B", "C", "D"}

func renderTurn(t model.ChatTurn) string {
	if t.Role == model.RoleUser {
		return userStyle.Render("> ") + t.Text
	}
	if strings.HasPrefix(t.Text, llm.FailurePrefix) {
		return failStyle.Render(t.Text)
	}
	return assistantStyle.Render(t.Text)
}

func renderSessions(ctx context.Context, list []model.SessionSummary, activeID string) string {
	if len(list) == 0 {
		return dimStyle.Render(appI18n.T(ctx, "NoSessions"))
	}
	var b strings.Builder
	for _, s := range list {
		marker := "  "
		if s.ID == activeID {
			marker = okStyle.Render("* ")
		}
		name := s.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "%s%s %s\n    %s, KB %d, quiz %d, %s\n",
			marker,
			titleStyle.Render(name),
			idStyle.Render(s.ID),
			appI18n.Tp(ctx, "MessagesN", s.MessageCount),
			s.KBLength,
			s.QuizSize,
			dimStyle.Render(s.UpdatedAt.Local().Format(time.DateTime)),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSession(ctx context.Context, s model.Session) string {
	var b strings.Builder
	b.WriteString(appI18n.Td(ctx, "SessionActive", map[string]any{
		"Name": titleStyle.Render(s.Name),
		"ID":   idStyle.Render(s.ID),
	}))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s, KB %d\n", appI18n.Tp(ctx, "MessagesN", len(s.Messages)), len([]rune(s.KBText)))
	for _, t := range s.Messages {
		b.WriteString("\n" + renderTurn(t) + "\n")
	}
	if len(s.Quiz) > 0 {
		b.WriteString("\n" + renderQuiz(s) + "\n")
	}
	if s.LastQuizResult != nil {
		b.WriteString("\n" + renderResult(ctx, *s.LastQuizResult) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderQuiz prints the questions and the selected options. Keys are not shown.
func renderQuiz(s model.Session) string {
	var b strings.Builder
	for i, it := range s.Quiz {
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render(fmt.Sprintf("%d.", i+1)), it.Question)
		sel, answered := s.Answers[i]
		for j, opt := range it.Options {
			line := fmt.Sprintf("   %s) %s", optionLetters[j], opt)
			if answered && sel == j {
				line = okStyle.Render(line + "  <")
			}
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderResult(ctx context.Context, res model.QuizResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(appI18n.Td(ctx, "ScoreN", map[string]any{"Score": res.Score})) + "\n")
	for _, row := range res.Rows {
		mark := wrongStyle.Render("x")
		if row.IsCorrect {
			mark = okStyle.Render("v")
		}
		answer := row.Answer
		if answer == "" {
			answer = "-"
		}
		fmt.Fprintf(&b, "%s %d. %s\n   %s / %s\n", mark, row.No, row.Question, answer, row.Correct)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderNote(s string) string {
	return noteStyle.Render(s)
}
