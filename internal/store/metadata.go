package store

import (
	"database/sql"
	"errors"

	"github.com/pavelanni/edumentor/internal/model"
)

const activeSessionKey = "active_session"

// SetMetadata upserts a key-value pair in the app_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO app_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetActiveSession records the session the CLI acts on.
func (s *Store) SetActiveSession(id string) error {
	return s.SetMetadata(activeSessionKey, id)
}

// ActiveSessionID returns the recorded active session id, or "" when none is set.
func (s *Store) ActiveSessionID() (string, error) {
	return s.GetMetadata(activeSessionKey)
}

// ActiveSession returns the active session. It returns ErrNotFound when none is
// set or the recorded session no longer exists.
func (s *Store) ActiveSession() (model.Session, error) {
	id, err := s.ActiveSessionID()
	if err != nil {
		return model.Session{}, err
	}
	if id == "" {
		return model.Session{}, ErrNotFound
	}
	return s.GetSession(id)
}
