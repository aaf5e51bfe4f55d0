// Package postgres implements anuris.Store using PostgreSQL for shared
// deployments.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	anuris "github.com/anuris-ai/anuris"
)

// Store implements anuris.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ anuris.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the sessions table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		messages JSONB NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, _ = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`)
	return nil
}

// SaveSession inserts or updates a session by id.
func (s *Store) SaveSession(ctx context.Context, sess anuris.Session) error {
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	if sess.CreatedAt == 0 {
		sess.CreatedAt = anuris.NowUnix()
	}
	sess.UpdatedAt = anuris.NowUnix()

	_, err = s.pool.Exec(ctx, `INSERT INTO sessions (id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title,
			messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.Title, messages, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the session with the given id.
func (s *Store) LoadSession(ctx context.Context, id string) (anuris.Session, error) {
	var sess anuris.Session
	var messages []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, messages, created_at, updated_at FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.Title, &messages, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return anuris.Session{}, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return anuris.Session{}, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal(messages, &sess.Messages); err != nil {
		return anuris.Session{}, fmt.Errorf("decode messages: %w", err)
	}
	return sess, nil
}

// ListSessions returns the most recently updated sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]anuris.Session, error) {
	query := `SELECT id, title, messages, created_at, updated_at FROM sessions ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []anuris.Session
	for rows.Next() {
		var sess anuris.Session
		var messages []byte
		if err := rows.Scan(&sess.ID, &sess.Title, &messages, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(messages, &sess.Messages); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session. Deleting a missing id is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
