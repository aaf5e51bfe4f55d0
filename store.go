package anuris

import "context"

// Store persists chat sessions across runs. store/sqlite is the default
// file-backed implementation; store/postgres serves shared deployments.
type Store interface {
	// SaveSession inserts or updates a session by id.
	SaveSession(ctx context.Context, s Session) error
	// LoadSession returns the session with the given id.
	LoadSession(ctx context.Context, id string) (Session, error)
	// ListSessions returns the most recently updated sessions, newest first.
	// limit <= 0 means no limit.
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	// DeleteSession removes a session. Deleting a missing id is not an error.
	DeleteSession(ctx context.Context, id string) error
}
