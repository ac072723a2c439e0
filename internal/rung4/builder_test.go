package rung4

import (
	"testing"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

func entryAt(path, content, workspace string, ts int64) telemetry.Entry {
	return telemetry.Entry{
		ID:          telemetry.NewID(),
		WorkspaceID: workspace,
		Timestamp:   ts,
		FilePath:    path,
		AfterCode:   content,
		ChangeType:  telemetry.ChangeModified,
		Language:    telemetry.LanguageForPath(path),
	}
}

func nodeByPath(g *Graph, p string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Path == p {
			return &g.Nodes[i]
		}
	}
	return nil
}

func edgeBetween(g *Graph, source, target, typ string) *Edge {
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.Source == source && e.Target == target && e.Type == typ {
			return e
		}
	}
	return nil
}

func TestBuildFileNodes(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{
		entryAt("a.js", "const a = 1\n", "", base),
		entryAt("a.js", "const a = 2\n", "", base+1000),
		entryAt("b.py", "x = 1\n", "", base+2000),
	}

	g := build("", entries, nil, 3)

	a := nodeByPath(g, "a.js")
	if a == nil {
		t.Fatal("no node for a.js")
	}
	if a.EditCount != 2 {
		t.Errorf("a.js edit count = %d, want 2", a.EditCount)
	}
	if a.FirstSeen != base || a.LastSeen != base+1000 {
		t.Errorf("a.js seen = [%d, %d]", a.FirstSeen, a.LastSeen)
	}
	if a.Language != "javascript" {
		t.Errorf("a.js language = %q", a.Language)
	}

	b := nodeByPath(g, "b.py")
	if b == nil || b.Language != "python" {
		t.Fatalf("b.py node = %+v", b)
	}

	if g.Metadata.HighestSeq != 3 || g.Metadata.EntryCount != 3 {
		t.Errorf("metadata = %+v", g.Metadata)
	}
}

func TestImportEdgeMaterialisesUnseenTarget(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{
		entryAt("a.js", "import { helper } from './util.js'\nhelper()\n", "", base),
	}

	g := build("", entries, nil, 1)

	// util.js was never edited, but the import still surfaces it.
	if nodeByPath(g, "util.js") == nil {
		t.Fatal("util.js node not materialised from import")
	}
	if edgeBetween(g, "a.js", "util.js", EdgeImports) == nil {
		t.Fatalf("no imports edge, edges = %v", g.Edges)
	}
}

func TestBareImportSpecifierIsNotANode(t *testing.T) {
	entries := []telemetry.Entry{
		entryAt("a.js", "import fs from 'fs'\n", "", time.Now().UnixMilli()),
	}
	g := build("", entries, nil, 1)
	if nodeByPath(g, "fs") != nil {
		t.Fatal("bare package specifier materialised a node")
	}
}

func TestCallEdges(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{
		entryAt("lib.js", "function helper() {\n  return 1\n}\n", "", base),
		entryAt("app.js", "helper()\n", "", base+1000),
	}

	g := build("", entries, nil, 2)
	if edgeBetween(g, "app.js", "lib.js", EdgeCalls) == nil {
		t.Fatalf("no calls edge, edges = %v", g.Edges)
	}
}

func TestCoEditedWindow(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{
		entryAt("a.js", "1", "", base),
		entryAt("b.js", "2", "", base+60_000), // within 5 minutes
		entryAt("c.js", "3", "", base+60*60*1000), // an hour later
	}

	g := build("", entries, nil, 3)

	e := edgeBetween(g, "a.js", "b.js", EdgeCoEdited)
	if e == nil {
		t.Fatalf("no co_edited edge, edges = %v", g.Edges)
	}
	if e.Weight != 1 {
		t.Errorf("weight = %v, want 1", e.Weight)
	}
	if edgeBetween(g, "b.js", "c.js", EdgeCoEdited) != nil {
		t.Error("co_edited edge across the window boundary")
	}
	// Pairs are canonically ordered, never duplicated reversed.
	if edgeBetween(g, "b.js", "a.js", EdgeCoEdited) != nil {
		t.Error("reversed duplicate co_edited edge")
	}
}

func TestStructuralEventsFromConsecutiveEdits(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{
		entryAt("m.js", "function a() {\n  return 1\n}\n", "", base),
		entryAt("m.js", "function a() {\n  return 1\n}\nfunction b() {\n  return 2\n}\n", "", base+1000),
	}

	g := build("", entries, nil, 2)
	if len(g.StructuralEvents) != 1 {
		t.Fatalf("structural events = %d, want 1", len(g.StructuralEvents))
	}
	ev := g.StructuralEvents[0]
	if ev.FilePath != "m.js" || ev.Timestamp != base+1000 {
		t.Errorf("event = %+v", ev)
	}
	if ev.ChangeStyle != "add" {
		t.Errorf("change style = %q, want add", ev.ChangeStyle)
	}
	if findOp(ev.Ops, "ADD_FUNCTION") == nil {
		t.Errorf("ops = %v", ev.Ops)
	}
}

func TestModelContextFromPromptText(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{
		entryAt("src/main.js", "x = 1\n", "", base),
		entryAt("src/other.js", "y = 2\n", "", base),
	}
	events := []telemetry.Event{{
		ID:        "p1",
		Timestamp: base,
		Type:      telemetry.EventPromptCreated,
		Details:   map[string]any{"text": "please refactor @src/main.js for clarity"},
	}}

	g := build("", entries, events, 3)
	if n := nodeByPath(g, "src/main.js"); n == nil || !n.HasModelContext {
		t.Fatalf("main.js node = %+v, want HasModelContext", n)
	}
	if n := nodeByPath(g, "src/other.js"); n != nil && n.HasModelContext {
		t.Error("other.js marked without reference")
	}
}

func TestModelContextFromContextFiles(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{entryAt("lib/util.py", "x = 1\n", "", base)}
	// Details decoded from JSON carry []any, not []string.
	events := []telemetry.Event{{
		ID:        "p2",
		Timestamp: base,
		Type:      telemetry.EventPromptCreated,
		Details:   map[string]any{"context_files": []any{"lib/util.py"}},
	}}

	g := build("", entries, events, 2)
	if n := nodeByPath(g, "lib/util.py"); n == nil || !n.HasModelContext {
		t.Fatalf("node = %+v, want HasModelContext", n)
	}
}

func TestWorkspaceScoping(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{
		entryAt("mine.js", "1", "ws1", base),
		entryAt("theirs.js", "2", "ws2", base),
	}

	g := build("ws1", entries, nil, 2)
	if nodeByPath(g, "mine.js") == nil {
		t.Error("own workspace file missing")
	}
	if nodeByPath(g, "theirs.js") != nil {
		t.Error("foreign workspace file leaked in")
	}
}

func TestDirNodesAndHierarchy(t *testing.T) {
	base := time.Now().UnixMilli()
	entries := []telemetry.Entry{
		entryAt("src/a.js", "1", "", base),
		entryAt("src/a.js", "2", "", base+1000),
		entryAt("src/deep/b.js", "3", "", base+2000),
	}

	g := build("myws", entries, nil, 3)

	src := nodeByPath(g, "src")
	if src == nil || src.Type != NodeDir {
		t.Fatalf("src dir node = %+v", src)
	}
	if src.EditCount != 3 {
		t.Errorf("src edit count = %d, want 3", src.EditCount)
	}
	if edgeBetween(g, "src", "src/a.js", EdgeContains) == nil {
		t.Error("no contains edge src -> src/a.js")
	}
	if edgeBetween(g, "src", "src/deep", EdgeContains) == nil {
		t.Error("no contains edge src -> src/deep")
	}

	h := g.Hierarchy
	if h == nil || h.Name != "myws" {
		t.Fatalf("hierarchy root = %+v", h)
	}
	if h.TotalEdits != 3 {
		t.Errorf("root total edits = %d, want 3", h.TotalEdits)
	}
	if h.LastTouched != base+2000 {
		t.Errorf("root last touched = %d, want %d", h.LastTouched, base+2000)
	}
	if len(h.Children) != 1 || h.Children[0].Path != "src" {
		t.Fatalf("root children = %+v", h.Children)
	}
	srcChild := h.Children[0]
	if len(srcChild.Children) != 2 {
		t.Fatalf("src children = %+v", srcChild.Children)
	}
	// Children sorted by path: src/a.js before src/deep.
	if srcChild.Children[0].Path != "src/a.js" || srcChild.Children[1].Path != "src/deep" {
		t.Errorf("src child order = %q, %q", srcChild.Children[0].Path, srcChild.Children[1].Path)
	}
}

func TestRelatedEdgesForNearIdenticalContent(t *testing.T) {
	base := time.Now().UnixMilli()
	shared := "const parser = buildParser()\nconst lexer = buildLexer()\nparser.run(lexer)\n"
	entries := []telemetry.Entry{
		entryAt("one.js", shared, "", base),
		entryAt("two.js", shared+"// trailing comment\n", "", base+1000),
		entryAt("three.js", "completely different words here\n", "", base+2000),
	}

	g := build("", entries, nil, 3)

	e := edgeBetween(g, "one.js", "two.js", EdgeRelated)
	if e == nil {
		t.Fatalf("no related edge, edges = %v", g.Edges)
	}
	if e.Weight < relatedThreshold {
		t.Errorf("weight = %v, want >= %v", e.Weight, relatedThreshold)
	}
	if edgeBetween(g, "one.js", "three.js", EdgeRelated) != nil {
		t.Error("unrelated files linked")
	}
}
