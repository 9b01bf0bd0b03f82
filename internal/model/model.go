package model

import "time"

// Role represents a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceKind tells where a piece of study material came from.
type SourceKind string

const (
	// SourceFile is an uploaded file with an extension tag.
	SourceFile SourceKind = "file"
	// SourcePasted is free text pasted by the user.
	SourcePasted SourceKind = "pasted"
)

// RawSource is one piece of study material as supplied by the user.
// It is consumed once by the ingestor and then discarded.
type RawSource struct {
	Kind SourceKind
	Name string
	Ext  string // declared extension including the dot, e.g. ".md"
	Data []byte
	Text string // pasted text, only for SourcePasted
}

// ChatTurn is a single message in the tutor conversation.
type ChatTurn struct {
	Role Role   `json:"role" yaml:"role"`
	Text string `json:"text" yaml:"text"`
}

// QuizItem is a multiple-choice question with exactly four options.
// The JSON keys match what the model is asked to produce.
type QuizItem struct {
	Question string   `json:"q" yaml:"q" jsonschema:"description=Question text"`
	Options  []string `json:"a" yaml:"a" jsonschema:"minItems=4,maxItems=4,description=Exactly four answer options"`
	Key      int      `json:"key" yaml:"key" jsonschema:"minimum=0,maximum=3,description=Zero-based index of the correct option"`
}

// QuizAnswerRow is the grading record for one question.
type QuizAnswerRow struct {
	No        int    `json:"no" yaml:"no"`
	Question  string `json:"question" yaml:"question"`
	Answer    string `json:"answer" yaml:"answer"`
	Correct   string `json:"correct" yaml:"correct"`
	IsCorrect bool   `json:"is_correct" yaml:"is_correct"`
}

// QuizResult holds the outcome of the last submitted quiz.
type QuizResult struct {
	Score     int             `json:"score" yaml:"score"`
	Rows      []QuizAnswerRow `json:"rows" yaml:"rows"`
	CreatedAt string          `json:"created_at" yaml:"created_at"`
}

// Session is the complete state of one study session.
// Operations take a Session and return the updated value; the hosting layer persists it.
type Session struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Messages       []ChatTurn  `json:"messages"`
	KBText         string      `json:"kb_text"`
	Quiz           []QuizItem  `json:"quiz"`
	Answers        map[int]int `json:"answers"` // question index -> option index
	LastQuizResult *QuizResult `json:"last_quiz_result,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Clone returns a copy of s that shares no slices or maps with it.
func (s Session) Clone() Session {
	out := s
	out.Messages = append([]ChatTurn(nil), s.Messages...)
	out.Quiz = make([]QuizItem, len(s.Quiz))
	for i, it := range s.Quiz {
		it.Options = append([]string(nil), it.Options...)
		out.Quiz[i] = it
	}
	out.Answers = make(map[int]int, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	if s.LastQuizResult != nil {
		r := *s.LastQuizResult
		r.Rows = append([]QuizAnswerRow(nil), s.LastQuizResult.Rows...)
		out.LastQuizResult = &r
	}
	return out
}

// SessionSummary is a lightweight listing entry.
type SessionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MessageCount int       `json:"message_count"`
	KBLength     int       `json:"kb_length"`
	QuizSize     int       `json:"quiz_size"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TutorConfig holds runtime tutor parameters set via CLI flags or config.
type TutorConfig struct {
	Language    string  // output language for prompts (en, id)
	Style       string  // answer register, e.g. "semi-formal"
	Domain      string  // subject area the tutor speaks for
	Temperature float32 // chat sampling temperature
	QuizCount   int     // default number of quiz items
}
