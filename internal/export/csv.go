package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/pavelanni/edumentor/internal/model"
)

// Field is a named cell of a row.
type Field struct {
	Name  string
	Value string
}

// Record is an ordered row of named fields.
type Record []Field

// Get returns the value of the named field, or "" if absent.
func (r Record) Get(name string) string {
	f, ok := lo.Find(r, func(f Field) bool { return f.Name == name })
	if !ok {
		return ""
	}
	return f.Value
}

// CSV renders records as comma-separated text. The header is taken from the
// field names of the first record; later records are matched by name.
// Fields containing a comma, quote or newline are quoted. No records yields no bytes.
func CSV(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}

	header := lo.Map(records[0], func(f Field, _ int) string { return f.Name })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range records {
		row := lo.Map(header, func(name string, _ int) string { return r.Get(name) })
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ChatRecords lays out a transcript as ts, role, text rows. Every row carries ts.
func ChatRecords(turns []model.ChatTurn, ts time.Time) []Record {
	stamp := ts.Format(time.RFC3339)
	return lo.Map(turns, func(t model.ChatTurn, _ int) Record {
		return Record{
			{Name: "ts", Value: stamp},
			{Name: "role", Value: string(t.Role)},
			{Name: "text", Value: t.Text},
		}
	})
}

// QuizRecords lays out graded rows as no, question, user_answer, correct, is_correct.
// A nil result yields no records.
func QuizRecords(res *model.QuizResult) []Record {
	if res == nil {
		return nil
	}
	return lo.Map(res.Rows, func(row model.QuizAnswerRow, _ int) Record {
		return Record{
			{Name: "no", Value: strconv.Itoa(row.No)},
			{Name: "question", Value: row.Question},
			{Name: "user_answer", Value: row.Answer},
			{Name: "correct", Value: row.Correct},
			{Name: "is_correct", Value: strconv.FormatBool(row.IsCorrect)},
		}
	})
}
