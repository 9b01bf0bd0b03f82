package model

// SessionExport is the top-level structure for session export and import.
type SessionExport struct {
	Messages       []ChatTurn  `json:"messages" yaml:"messages"`
	KBText         string      `json:"kb_text" yaml:"kb_text"`
	LastQuizResult *QuizResult `json:"last_quiz_result" yaml:"last_quiz_result"`
}

// ExportOf builds the transferable view of a session.
func ExportOf(s Session) SessionExport {
	msgs := s.Messages
	if msgs == nil {
		msgs = []ChatTurn{}
	}
	return SessionExport{
		Messages:       msgs,
		KBText:         s.KBText,
		LastQuizResult: s.LastQuizResult,
	}
}
