package rung4

import (
	"path"
	"regexp"
	"strings"
)

// Static import extraction covers the line-level import forms of the
// languages the watcher labels. Targets are resolved against the importing
// file's directory when they are relative.

var importPatterns = []*regexp.Regexp{
	// ES modules: import ... from 'x'; export ... from 'x'
	regexp.MustCompile(`(?m)^\s*(?:import|export)\s+(?:[\w{}*,\s]+\s+from\s+)?['"]([^'"]+)['"]`),
	// CommonJS: require('x')
	regexp.MustCompile(`(?m)require\(\s*['"]([^'"]+)['"]\s*\)`),
	// Python: import x / from x import y
	regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`),
	// Go: import "x" (single-line form)
	regexp.MustCompile(`(?m)^\s*import\s+(?:\w+\s+)?"([^"]+)"`),
}

var callRe = regexp.MustCompile(`\b([A-Za-z_][\w.]*)\s*\(`)

var callKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "return": {},
	"func": {}, "function": {}, "def": {}, "catch": {}, "except": {},
}

// ExtractImports returns the import targets referenced by code, resolved
// relative to fromPath where possible.
func ExtractImports(fromPath, code string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(target string) {
		if target == "" {
			return
		}
		resolved := resolveImport(fromPath, target)
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}
	for _, re := range importPatterns {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			for _, g := range m[1:] {
				if g != "" {
					add(g)
					break
				}
			}
		}
	}
	return out
}

// resolveImport maps relative module specifiers onto workspace paths;
// bare specifiers (packages) are kept as-is.
func resolveImport(fromPath, target string) string {
	if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		resolved := path.Clean(path.Join(path.Dir(fromPath), target))
		return resolved
	}
	// Python dotted modules become slash paths so they can line up with
	// workspace files.
	if !strings.Contains(target, "/") && strings.Contains(target, ".") && !strings.ContainsAny(target, "'\"") {
		return strings.ReplaceAll(target, ".", "/")
	}
	return target
}

// ExtractCalls returns the function names invoked in code, keywords
// excluded.
func ExtractCalls(code string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range callRe.FindAllStringSubmatch(code, -1) {
		name := m[1]
		base := name
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			base = name[i+1:]
		}
		if _, kw := callKeywords[base]; kw {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// matchesFile reports whether an import target plausibly refers to the
// given workspace file path (extension-insensitive suffix match).
func matchesFile(target, filePath string) bool {
	stripExt := func(p string) string {
		if ext := path.Ext(p); ext != "" {
			return strings.TrimSuffix(p, ext)
		}
		return p
	}
	t := stripExt(path.Clean(target))
	f := stripExt(path.Clean(filePath))
	if t == f {
		return true
	}
	return strings.HasSuffix(f, "/"+t) || path.Base(f) == path.Base(t)
}
