package rung4

import (
	"testing"
)

func TestExtractImportsESModules(t *testing.T) {
	code := `import { helper } from './util.js'
import fs from 'fs'
export { thing } from '../shared/thing.js'
`
	got := ExtractImports("src/app.js", code)
	want := map[string]bool{"src/util.js": true, "fs": true, "shared/thing.js": true}
	if len(got) != len(want) {
		t.Fatalf("imports = %v", got)
	}
	for _, g := range got {
		if !want[g] {
			t.Errorf("unexpected import %q", g)
		}
	}
}

func TestExtractImportsRequire(t *testing.T) {
	got := ExtractImports("a.js", `const x = require('./lib/x.js')`)
	if len(got) != 1 || got[0] != "lib/x.js" {
		t.Fatalf("imports = %v", got)
	}
}

func TestExtractImportsPython(t *testing.T) {
	code := "import os\nfrom pkg.mod import thing\n"
	got := ExtractImports("main.py", code)
	found := map[string]bool{}
	for _, g := range got {
		found[g] = true
	}
	if !found["os"] {
		t.Errorf("missing os in %v", got)
	}
	if !found["pkg/mod"] {
		t.Errorf("dotted module not slash-resolved: %v", got)
	}
}

func TestExtractImportsGo(t *testing.T) {
	got := ExtractImports("main.go", "import \"fmt\"\n")
	if len(got) != 1 || got[0] != "fmt" {
		t.Fatalf("imports = %v", got)
	}
}

func TestExtractImportsDedup(t *testing.T) {
	code := "import a from './x.js'\nimport b from './x.js'\n"
	if got := ExtractImports("m.js", code); len(got) != 1 {
		t.Fatalf("imports = %v, want one", got)
	}
}

func TestExtractCallsExcludesKeywords(t *testing.T) {
	code := "if (ready) {\n  doWork(1)\n  obj.method()\n  for (let i = 0; i < n; i++) {}\n}\n"
	got := ExtractCalls(code)
	found := map[string]bool{}
	for _, g := range got {
		found[g] = true
	}
	if !found["doWork"] || !found["obj.method"] {
		t.Errorf("calls = %v", got)
	}
	if found["if"] || found["for"] {
		t.Errorf("keywords leaked into calls: %v", got)
	}
}

func TestMatchesFile(t *testing.T) {
	cases := []struct {
		target, file string
		want         bool
	}{
		{"src/util.js", "src/util.js", true},
		{"util", "src/util.js", true},
		{"src/util", "src/util.ts", true},
		{"other", "src/util.js", false},
	}
	for _, tc := range cases {
		if got := matchesFile(tc.target, tc.file); got != tc.want {
			t.Errorf("matchesFile(%q, %q) = %v, want %v", tc.target, tc.file, got, tc.want)
		}
	}
}
