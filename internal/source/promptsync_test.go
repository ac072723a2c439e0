package source

import (
	"strings"
	"testing"
)

func TestBuildPromptFields(t *testing.T) {
	text := "please fix the bug in @src/queue.go and check @src/queue.go against @docs/design.md"
	pr := buildPrompt("gen-1", 1700000000000, "gpt-test", text)

	if pr.ID != "gen-1" || pr.Timestamp != 1700000000000 || pr.ModelName != "gpt-test" {
		t.Errorf("prompt = %+v", pr)
	}
	if pr.TotalTokens != len(strings.Fields(text)) {
		t.Errorf("tokens = %d", pr.TotalTokens)
	}
	// @file references are deduplicated, order preserved.
	if len(pr.ContextFiles) != 2 || pr.ContextFiles[0] != "src/queue.go" || pr.ContextFiles[1] != "docs/design.md" {
		t.Errorf("context files = %v", pr.ContextFiles)
	}
	if pr.ContextPrecision <= 0 {
		t.Errorf("precision = %v, want > 0", pr.ContextPrecision)
	}
}

func TestBuildPromptDefaultsTimestamp(t *testing.T) {
	pr := buildPrompt("id", 0, "", "hello")
	if pr.Timestamp == 0 {
		t.Error("zero timestamp not defaulted")
	}
}

func TestPreviewTruncation(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := previewOf(long)
	if len(got) != 123 || !strings.HasSuffix(got, "...") {
		t.Errorf("preview len = %d", len(got))
	}

	if got := previewOf("  short  "); got != "short" {
		t.Errorf("preview = %q", got)
	}
}

func TestContextPrecisionNoFiles(t *testing.T) {
	if got := contextPrecision("anything at all", nil); got != 0 {
		t.Errorf("precision = %v, want 0", got)
	}
}

func TestContextFilesIgnoresBareMentions(t *testing.T) {
	// @name without an extension is a handle, not a file reference.
	files := contextFilesOf("ask @alice about @notes.md")
	if len(files) != 1 || files[0] != "notes.md" {
		t.Errorf("files = %v", files)
	}
}
