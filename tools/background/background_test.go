package background

import (
	"strings"
	"testing"
	"time"

	anuris "github.com/anuris-ai/anuris"
	"github.com/anuris-ai/anuris/internal/workspace"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	root, err := workspace.NewRoot(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(root)
}

// drainWithin polls Drain until a notification arrives or the deadline hits.
func drainWithin(t *testing.T, m *Manager, d time.Duration) []anuris.BackgroundNotification {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if notes := m.Drain(); len(notes) > 0 {
			return notes
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no notification before deadline")
	return nil
}

func TestRunCompletesAndNotifies(t *testing.T) {
	m := newManager(t)
	out := m.Run("echo done", 0)
	if !strings.HasPrefix(out, "Background task ") || !strings.Contains(out, "echo done") {
		t.Fatalf("run = %q", out)
	}

	notes := drainWithin(t, m, 5*time.Second)
	if len(notes) != 1 {
		t.Fatalf("notifications = %d", len(notes))
	}
	n := notes[0]
	if n.Status != "completed" || n.Result != "done" || n.Command != "echo done" {
		t.Fatalf("notification = %+v", n)
	}

	if again := m.Drain(); len(again) != 0 {
		t.Fatalf("drain should empty the queue, got %d", len(again))
	}
}

func TestRunRejectsDangerous(t *testing.T) {
	m := newManager(t)
	out := m.Run("sudo rm -rf /", 0)
	if out != "Error: Dangerous command blocked" {
		t.Fatalf("run = %q", out)
	}
	if m.Check("") != "No background tasks." {
		t.Fatalf("rejected command should not be tracked: %q", m.Check(""))
	}
}

func TestRunTimeoutStatus(t *testing.T) {
	m := newManager(t)
	m.Run("sleep 5", 100*time.Millisecond)
	notes := drainWithin(t, m, 5*time.Second)
	if notes[0].Status != "timeout" {
		t.Fatalf("status = %q", notes[0].Status)
	}
}

func TestRunFailureStatus(t *testing.T) {
	m := newManager(t)
	m.Run("exit 7", 0)
	notes := drainWithin(t, m, 5*time.Second)
	if notes[0].Status != "error" {
		t.Fatalf("status = %q", notes[0].Status)
	}
}

func TestCheckSingleAndAll(t *testing.T) {
	m := newManager(t)
	if got := m.Check(""); got != "No background tasks." {
		t.Fatalf("empty check = %q", got)
	}
	if got := m.Check("missing"); got != "Error: Unknown task missing" {
		t.Fatalf("unknown check = %q", got)
	}

	out := m.Run("echo first", 0)
	id := strings.Fields(out)[2]
	drainWithin(t, m, 5*time.Second)

	single := m.Check(id)
	if !strings.HasPrefix(single, "[completed] echo first") || !strings.Contains(single, "first") {
		t.Fatalf("single check = %q", single)
	}
	all := m.Check("")
	if !strings.Contains(all, id+": [completed] echo first") {
		t.Fatalf("all check = %q", all)
	}
}
