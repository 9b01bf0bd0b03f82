package store

import (
	"fmt"

	"github.com/pavelanni/edumentor/internal/model"
)

// ExportSession builds the transferable document of a stored session.
func (s *Store) ExportSession(id string) (model.SessionExport, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return model.SessionExport{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return model.ExportOf(sess), nil
}

// ExportAllSessions builds documents for every stored session, keyed by id.
func (s *Store) ExportAllSessions() (map[string]model.SessionExport, error) {
	list, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make(map[string]model.SessionExport, len(list))
	for _, ss := range list {
		doc, err := s.ExportSession(ss.ID)
		if err != nil {
			return nil, err
		}
		out[ss.ID] = doc
	}
	return out, nil
}
