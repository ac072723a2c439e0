package source

import (
	"testing"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

func TestSkipFilters(t *testing.T) {
	w := NewFileWatcher("/ws", "ws1", []string{"**/node_modules/**", "dist/**"}, nil, nil)

	cases := []struct {
		rel  string
		want bool
	}{
		{"src/main.go", false},
		{".git/HEAD", true},
		{"pkg/node_modules/left-pad/index.js", true},
		{"dist/bundle.js", true},
		{"distribution/notes.md", false},
	}
	for _, tc := range cases {
		if got := w.skip(tc.rel); got != tc.want {
			t.Errorf("skip(%q) = %v, want %v", tc.rel, got, tc.want)
		}
	}
}

func TestDiffStats(t *testing.T) {
	e := &telemetry.Entry{
		BeforeCode: "line one\nline two\n",
		AfterCode:  "line one\nline two\nline three\n",
	}
	diffStats(e)
	if e.LinesAdded != 1 {
		t.Errorf("lines added = %d, want 1", e.LinesAdded)
	}
	if e.LinesDeleted != 0 {
		t.Errorf("lines deleted = %d, want 0", e.LinesDeleted)
	}
	if e.CharsAdded != len("line three\n") {
		t.Errorf("chars added = %d", e.CharsAdded)
	}
}

func TestDiffStatsDeletion(t *testing.T) {
	e := &telemetry.Entry{
		BeforeCode: "keep\ndrop me\n",
		AfterCode:  "keep\n",
	}
	diffStats(e)
	if e.LinesDeleted != 1 || e.CharsDeleted == 0 {
		t.Errorf("stats = %+v", e)
	}
	if e.CharsAdded != 0 {
		t.Errorf("chars added = %d, want 0", e.CharsAdded)
	}
}

func TestDiffStatsNoChange(t *testing.T) {
	e := &telemetry.Entry{BeforeCode: "same\n", AfterCode: "same\n"}
	diffStats(e)
	if e.LinesAdded+e.LinesDeleted+e.CharsAdded+e.CharsDeleted != 0 {
		t.Errorf("stats on identical content = %+v", e)
	}
}
