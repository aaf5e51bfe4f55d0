// Package sqlite implements anuris.Store using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	anuris "github.com/anuris-ai/anuris"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store implements anuris.Store backed by a local SQLite file. Messages are
// stored as JSON text in the session row.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ anuris.Store = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the sessions table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		messages TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`)
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveSession inserts or updates a session by id.
func (s *Store) SaveSession(ctx context.Context, sess anuris.Session) error {
	start := time.Now()
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	if sess.CreatedAt == 0 {
		sess.CreatedAt = anuris.NowUnix()
	}
	sess.UpdatedAt = anuris.NowUnix()

	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (id, title, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title,
			messages = excluded.messages, updated_at = excluded.updated_at`,
		sess.ID, sess.Title, string(messages), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.logger.Debug("sqlite: session saved", "id", sess.ID,
		"messages", len(sess.Messages), "elapsed", time.Since(start))
	return nil
}

// LoadSession returns the session with the given id.
func (s *Store) LoadSession(ctx context.Context, id string) (anuris.Session, error) {
	var sess anuris.Session
	var messages string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, messages, created_at, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Title, &messages, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return anuris.Session{}, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return anuris.Session{}, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return anuris.Session{}, fmt.Errorf("decode messages: %w", err)
	}
	return sess, nil
}

// ListSessions returns the most recently updated sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]anuris.Session, error) {
	query := `SELECT id, title, messages, created_at, updated_at FROM sessions ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []anuris.Session
	for rows.Next() {
		var sess anuris.Session
		var messages string
		if err := rows.Scan(&sess.ID, &sess.Title, &messages, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session. Deleting a missing id is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
