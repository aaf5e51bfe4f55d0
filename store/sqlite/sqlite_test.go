package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	anuris "github.com/anuris-ai/anuris"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "sessions.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadSession(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sess := anuris.Session{
		ID:    "s1",
		Title: "first session",
		Messages: []anuris.ChatMessage{
			anuris.UserMessage("hello"),
			anuris.AssistantMessage("hi there"),
		},
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Title != "first session" || len(loaded.Messages) != 2 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.Messages[1].Role != "assistant" || loaded.Messages[1].Content != "hi there" {
		t.Fatalf("messages = %+v", loaded.Messages)
	}
	if loaded.CreatedAt == 0 || loaded.UpdatedAt == 0 {
		t.Fatalf("timestamps not stamped: %+v", loaded)
	}
}

func TestSaveSessionUpsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sess := anuris.Session{ID: "s1", Title: "old"}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	sess.Title = "new"
	sess.Messages = []anuris.ChatMessage{anuris.UserMessage("added")}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Title != "new" || len(loaded.Messages) != 1 {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestLoadSessionMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.LoadSession(context.Background(), "ghost")
	if err == nil || err.Error() != "session ghost not found" {
		t.Fatalf("err = %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, anuris.Session{ID: "a", Title: "older", UpdatedAt: 0, CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	// Force distinct updated_at values without sleeping.
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = 100 WHERE id = 'a'`); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSession(ctx, anuris.Session{ID: "b", Title: "newer"}); err != nil {
		t.Fatal(err)
	}

	sessions, err := s.ListSessions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].ID != "b" || sessions[1].ID != "a" {
		t.Fatalf("sessions = %+v", sessions)
	}

	limited, err := s.ListSessions(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].ID != "b" {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, anuris.Session{ID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadSession(ctx, "s1"); err == nil {
		t.Fatal("session should be gone")
	}
	if err := s.DeleteSession(ctx, "never-existed"); err != nil {
		t.Fatalf("deleting a missing id should not fail: %v", err)
	}
}
