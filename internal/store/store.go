package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/edumentor/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store keeps study sessions between actions.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		kb_text TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS quiz_items (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		question TEXT NOT NULL,
		options TEXT NOT NULL,
		answer_key INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS quiz_answers (
		session_id TEXT NOT NULL,
		question_idx INTEGER NOT NULL,
		option_idx INTEGER NOT NULL,
		PRIMARY KEY (session_id, question_idx),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS quiz_results (
		session_id TEXT PRIMARY KEY,
		score INTEGER NOT NULL,
		rows TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession stores a new empty session.
func (s *Store) CreateSession(name string) (model.Session, error) {
	now := s.now()
	sess := model.Session{
		ID:        uuid.NewString(),
		Name:      name,
		Answers:   map[int]int{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, name, kb_text, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
		sess.ID, sess.Name, now, now,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session with its transcript, quiz, answers and last result.
func (s *Store) GetSession(id string) (model.Session, error) {
	sess := model.Session{ID: id, Answers: map[int]int{}}
	err := s.db.QueryRow(
		`SELECT name, kb_text, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.Name, &sess.KBText, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}

	if sess.Messages, err = s.getMessages(id); err != nil {
		return model.Session{}, err
	}
	if sess.Quiz, err = s.getQuizItems(id); err != nil {
		return model.Session{}, err
	}
	if sess.Answers, err = s.getAnswers(id); err != nil {
		return model.Session{}, err
	}
	if sess.LastQuizResult, err = s.getResult(id); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *Store) getMessages(id string) ([]model.ChatTurn, error) {
	rows, err := s.db.Query(`SELECT role, text FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	var turns []model.ChatTurn
	for rows.Next() {
		var t model.ChatTurn
		if err := rows.Scan(&t.Role, &t.Text); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) getQuizItems(id string) ([]model.QuizItem, error) {
	rows, err := s.db.Query(`SELECT question, options, answer_key FROM quiz_items WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query quiz items: %w", err)
	}
	defer rows.Close()
	var items []model.QuizItem
	for rows.Next() {
		var it model.QuizItem
		var options string
		if err := rows.Scan(&it.Question, &options, &it.Key); err != nil {
			return nil, fmt.Errorf("scan quiz item: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &it.Options); err != nil {
			return nil, fmt.Errorf("decode quiz options: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) getAnswers(id string) (map[int]int, error) {
	rows, err := s.db.Query(`SELECT question_idx, option_idx FROM quiz_answers WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()
	answers := map[int]int{}
	for rows.Next() {
		var q, o int
		if err := rows.Scan(&q, &o); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers[q] = o
	}
	return answers, rows.Err()
}

func (s *Store) getResult(id string) (*model.QuizResult, error) {
	var res model.QuizResult
	var rowsJSON string
	err := s.db.QueryRow(
		`SELECT score, rows, created_at FROM quiz_results WHERE session_id = ?`, id,
	).Scan(&res.Score, &rowsJSON, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz result: %w", err)
	}
	if err := json.Unmarshal([]byte(rowsJSON), &res.Rows); err != nil {
		return nil, fmt.Errorf("decode quiz rows: %w", err)
	}
	return &res, nil
}

// SaveSession replaces the stored state of sess in one transaction and
// sets sess.UpdatedAt. The session must exist.
func (s *Store) SaveSession(sess *model.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	res, err := tx.Exec(
		`UPDATE sessions SET name = ?, kb_text = ?, updated_at = ? WHERE id = ?`,
		sess.Name, sess.KBText, now, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	for _, table := range []string{"messages", "quiz_items", "quiz_answers", "quiz_results"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE session_id = ?`, sess.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, m := range sess.Messages {
		if _, err := tx.Exec(
			`INSERT INTO messages (session_id, seq, role, text) VALUES (?, ?, ?, ?)`,
			sess.ID, i, m.Role, m.Text,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	for i, it := range sess.Quiz {
		options, err := json.Marshal(it.Options)
		if err != nil {
			return fmt.Errorf("encode quiz options: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO quiz_items (session_id, seq, question, options, answer_key) VALUES (?, ?, ?, ?, ?)`,
			sess.ID, i, it.Question, string(options), it.Key,
		); err != nil {
			return fmt.Errorf("insert quiz item: %w", err)
		}
	}
	for q, o := range sess.Answers {
		if _, err := tx.Exec(
			`INSERT INTO quiz_answers (session_id, question_idx, option_idx) VALUES (?, ?, ?)`,
			sess.ID, q, o,
		); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}
	if r := sess.LastQuizResult; r != nil {
		rows, err := json.Marshal(r.Rows)
		if err != nil {
			return fmt.Errorf("encode quiz rows: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO quiz_results (session_id, score, rows, created_at) VALUES (?, ?, ?, ?)`,
			sess.ID, r.Score, string(rows), r.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert quiz result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	sess.UpdatedAt = now
	return nil
}

// DeleteSession removes a session and everything it owns.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "quiz_items", "quiz_answers", "quiz_results"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListSessions returns session summaries, most recently updated first.
func (s *Store) ListSessions() ([]model.SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.name, length(s.kb_text), s.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id),
			(SELECT COUNT(*) FROM quiz_items q WHERE q.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC, s.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var list []model.SessionSummary
	for rows.Next() {
		var ss model.SessionSummary
		if err := rows.Scan(&ss.ID, &ss.Name, &ss.KBLength, &ss.UpdatedAt, &ss.MessageCount, &ss.QuizSize); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		list = append(list, ss)
	}
	return list, rows.Err()
}

// ResolveSession finds a session by id, or else by name (most recently updated wins).
func (s *Store) ResolveSession(ref string) (model.Session, error) {
	sess, err := s.GetSession(ref)
	if !errors.Is(err, ErrNotFound) {
		return sess, err
	}
	var id string
	err = s.db.QueryRow(
		`SELECT id FROM sessions WHERE name = ? ORDER BY updated_at DESC LIMIT 1`, ref,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("find session by name: %w", err)
	}
	return s.GetSession(id)
}
