package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
)

type sqliteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository SQLite backed session repository
func NewSQLiteSessionRepository(dbPath string) (repository.SessionRepository, error) {
	if dbPath == "" {
		return nil, errors.New("db path must not be empty")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if err := createSessionSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteSessionRepository{db: db}, nil
}

func createSessionSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	age INTEGER NOT NULL DEFAULT 0,
	gender TEXT NOT NULL DEFAULT '',
	medical_history TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'idle',
	created_at TIMESTAMP NOT NULL,
	last_used TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	ts TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, seq);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Create stores a new session
func (s *sqliteSessionRepository) Create(ctx context.Context, session entity.Session) error {
	if session.State == "" {
		session.State = entity.StateIdle
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, age, gender, medical_history, state, created_at, last_used) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Profile.Age, string(session.Profile.Gender), session.Profile.MedicalHistory,
		string(session.State), session.CreatedAt, session.LastUsed)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get loads the session with its messages in insertion order
func (s *sqliteSessionRepository) Get(ctx context.Context, id string) (*entity.Session, error) {
	var (
		session entity.Session
		gender  string
		state   string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, age, gender, medical_history, state, created_at, last_used FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.Profile.Age, &gender, &session.Profile.MedicalHistory, &state, &session.CreatedAt, &session.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	session.Profile.Gender = entity.Gender(gender)
	session.State = entity.SessionState(state)

	msgs, err := s.messages(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Messages = msgs
	return &session, nil
}

func (s *sqliteSessionRepository) messages(ctx context.Context, sessionID string) ([]entity.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, role, content, ts FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []entity.Message
	for rows.Next() {
		var (
			msg  entity.Message
			role string
			ts   time.Time
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &ts); err != nil {
			return nil, err
		}
		if msg.Role, err = entity.ParseRole(role); err != nil {
			return nil, err
		}
		msg.Timestamp = ts
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// AppendMessage inserts the message and touches the session
func (s *sqliteSessionRepository) AppendMessage(ctx context.Context, message entity.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET last_used = ? WHERE id = ?`, time.Now(), message.SessionID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, message.SessionID)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO messages (id, session_id, role, content, ts) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, string(message.Role), message.Content, message.Timestamp)
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// UpdateProfile overwrites the profile columns
func (s *sqliteSessionRepository) UpdateProfile(ctx context.Context, id string, profile entity.Profile) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET age = ?, gender = ?, medical_history = ?, last_used = ? WHERE id = ?`,
		profile.Age, string(profile.Gender), profile.MedicalHistory, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// SetState compare-and-set of the state column
func (s *sqliteSessionRepository) SetState(ctx context.Context, id string, from, to entity.SessionState) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if from == "" {
		res, err = s.db.ExecContext(ctx, `UPDATE sessions SET state = ? WHERE id = ?`, string(to), id)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE sessions SET state = ? WHERE id = ? AND state = ?`, string(to), id, string(from))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// Clear deletes messages and resets the profile of an idle session
func (s *sqliteSessionRepository) Clear(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET age = 0, gender = '', medical_history = '', last_used = ? WHERE id = ? AND state != ?`,
		time.Now(), id, string(entity.StateThinking))
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := s.requireIdleRow(ctx, tx, res, id); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Delete removes an idle session and its messages
func (s *sqliteSessionRepository) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND state != ?`, id, string(entity.StateThinking))
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := s.requireIdleRow(ctx, tx, res, id); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// requireIdleRow tells a missing session from a busy one when nothing was updated
func (s *sqliteSessionRepository) requireIdleRow(ctx context.Context, tx *sql.Tx, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	return fmt.Errorf("%w: %s", repository.ErrSessionBusy, id)
}

// List sessions, most recently used first
func (s *sqliteSessionRepository) List(ctx context.Context, limit int) ([]entity.Session, error) {
	query := `SELECT id FROM sessions ORDER BY last_used DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]entity.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

// Close closes the database
func (s *sqliteSessionRepository) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	return nil
}
