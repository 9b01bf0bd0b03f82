package quiz

import (
	"errors"
	"time"

	"github.com/pavelanni/edumentor/internal/model"
)

// ErrEmptyQuiz is returned when grading a quiz without questions.
var ErrEmptyQuiz = errors.New("quiz has no questions")

// Grade scores the selected options against the keys.
// answers maps a question index to the selected option index; missing entries are unanswered.
// The score is the integer percentage of correct answers.
func Grade(items []model.QuizItem, answers map[int]int, now time.Time) (model.QuizResult, error) {
	if len(items) == 0 {
		return model.QuizResult{}, ErrEmptyQuiz
	}

	rows := make([]model.QuizAnswerRow, 0, len(items))
	correct := 0
	for i, item := range items {
		right := option(item, item.Key)
		answer, answered := "", false
		if sel, ok := answers[i]; ok {
			answer, answered = option(item, sel), true
		}
		ok := answered && answer == right
		if ok {
			correct++
		}
		rows = append(rows, model.QuizAnswerRow{
			No:        i + 1,
			Question:  item.Question,
			Answer:    answer,
			Correct:   right,
			IsCorrect: ok,
		})
	}

	return model.QuizResult{
		Score:     100 * correct / len(items),
		Rows:      rows,
		CreatedAt: now.Format(time.RFC3339),
	}, nil
}

func option(item model.QuizItem, idx int) string {
	if idx < 0 || idx >= len(item.Options) {
		return ""
	}
	return item.Options[idx]
}
