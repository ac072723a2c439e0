package rung4

import (
	"testing"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/queue"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

// fakeReader serves a fixed history and counts reads.
type fakeReader struct {
	entries []telemetry.Entry
	events  []telemetry.Event
	cursor  uint64
	reads   int
}

func (f *fakeReader) ReadSince(since uint64) (queue.ReadResult, error) {
	f.reads++
	return queue.ReadResult{Entries: f.entries, Events: f.events, Cursor: f.cursor}, nil
}

func TestGraphMemoisedOnCursor(t *testing.T) {
	r := &fakeReader{
		entries: []telemetry.Entry{entryAt("a.js", "x = 1\n", "", time.Now().UnixMilli())},
		cursor:  1,
	}
	svc := NewService(r, nil)

	g1, err := svc.GetModuleGraph("", false)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := svc.GetModuleGraph("", false)
	if err != nil {
		t.Fatal(err)
	}
	if g1 != g2 {
		t.Error("unchanged cursor rebuilt the graph")
	}

	// The watermark moved: next read rebuilds.
	r.entries = append(r.entries, entryAt("b.js", "y = 2\n", "", time.Now().UnixMilli()))
	r.cursor = 2
	g3, err := svc.GetModuleGraph("", false)
	if err != nil {
		t.Fatal(err)
	}
	if g3 == g1 {
		t.Error("moved cursor did not rebuild")
	}
	if nodeByPath(g3, "b.js") == nil {
		t.Error("rebuilt graph missing new node")
	}
}

func TestForceRefreshRebuilds(t *testing.T) {
	r := &fakeReader{cursor: 1, entries: []telemetry.Entry{entryAt("a.js", "x", "", time.Now().UnixMilli())}}
	svc := NewService(r, nil)

	g1, _ := svc.GetModuleGraph("", false)
	g2, _ := svc.GetModuleGraph("", true)
	if g1 == g2 {
		t.Error("forceRefresh served the cached graph")
	}
}

func TestClearCache(t *testing.T) {
	r := &fakeReader{cursor: 1, entries: []telemetry.Entry{entryAt("a.js", "x", "", time.Now().UnixMilli())}}
	svc := NewService(r, nil)

	g1, _ := svc.GetModuleGraph("ws1", false)
	svc.ClearCache("ws1")
	g2, _ := svc.GetModuleGraph("ws1", false)
	if g1 == g2 {
		t.Error("ClearCache(ws) kept the cached graph")
	}

	g3, _ := svc.GetModuleGraph("ws1", false)
	if g2 != g3 {
		t.Error("graph not re-cached after clear")
	}
	svc.ClearCache("")
	g4, _ := svc.GetModuleGraph("ws1", false)
	if g3 == g4 {
		t.Error("ClearCache(\"\") kept the cached graph")
	}
}

func TestFilteredViews(t *testing.T) {
	now := time.Now().UnixMilli()
	r := &fakeReader{
		cursor: 3,
		entries: []telemetry.Entry{
			entryAt("src/a.js", "x = 1\n", "", now),
			entryAt("src/a.js", "x = 2\n", "", now+1000),
			entryAt("src/b.py", "y = 1\n", "", now+2000),
		},
	}
	svc := NewService(r, nil)

	files, err := svc.GetNodes("", NodeFilter{Type: NodeFile})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("file nodes = %d, want 2", len(files))
	}

	py, err := svc.GetNodes("", NodeFilter{Language: "python"})
	if err != nil {
		t.Fatal(err)
	}
	if len(py) != 1 || py[0].Path != "src/b.py" {
		t.Errorf("python nodes = %+v", py)
	}

	events, err := svc.GetEvents("", EventFilter{FilePath: "src/a.js"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}
	none, err := svc.GetEvents("", EventFilter{Since: now + 10_000})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("filtered events = %d, want 0", len(none))
	}

	tree, err := svc.GetHierarchy("")
	if err != nil {
		t.Fatal(err)
	}
	if tree == nil || tree.TotalEdits != 3 {
		t.Errorf("hierarchy = %+v", tree)
	}
}
