// Package testutil provides shared test helpers for setting up queues and databases.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/queue"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

// TestStore creates a temporary queue database that is automatically cleaned up.
func TestStore(t *testing.T) *queue.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "companion-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := queue.OpenStore(dbFile.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestQueue creates a memory-only queue that is closed on cleanup.
func TestQueue(t *testing.T, opts queue.Options) *queue.Queue {
	t.Helper()
	q := queue.New(opts, nil, nil)
	t.Cleanup(q.Close)
	return q
}

// Entry builds a code-change entry with the given path and content.
func Entry(path, before, after string) *telemetry.Entry {
	return &telemetry.Entry{
		ID:         telemetry.NewID(),
		Timestamp:  telemetry.NowMillis(),
		FilePath:   path,
		BeforeCode: before,
		AfterCode:  after,
		ChangeType: telemetry.ChangeModified,
		Language:   telemetry.LanguageForPath(path),
		Source:     "test",
	}
}

// EntryAt is Entry with an explicit timestamp and workspace.
func EntryAt(path, after, workspace string, ts int64) *telemetry.Entry {
	e := Entry(path, "", after)
	e.Timestamp = ts
	e.WorkspaceID = workspace
	return e
}

// PromptEvent builds a prompt_created event with the given id.
func PromptEvent(id, text string) *telemetry.Event {
	return &telemetry.Event{
		ID:        id,
		Timestamp: telemetry.NowMillis(),
		Type:      telemetry.EventPromptCreated,
		Details:   map[string]any{"text": text},
	}
}

// WaitFor polls cond until it is true or the deadline passes.
func WaitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
