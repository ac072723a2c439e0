package rung4

import (
	"regexp"
	"strings"
)

// The structural differ works on line structure, not a full parse: it
// counts recognisable constructs before and after a change and maps the
// deltas onto a fixed operation vocabulary.

type nodeKind string

const (
	kindIfCondition nodeKind = "IF_CONDITION"
	kindLoop        nodeKind = "LOOP"
	kindFunction    nodeKind = "FUNCTION"
	kindImport      nodeKind = "IMPORT"
	kindExport      nodeKind = "EXPORT"
	kindReturn      nodeKind = "RETURN"
	kindAssignment  nodeKind = "ASSIGNMENT"
	kindCall        nodeKind = "CALL"
	kindClass       nodeKind = "CLASS"
	kindTry         nodeKind = "TRY"
	kindCatch       nodeKind = "CATCH"
	kindStatement   nodeKind = "STATEMENT"
)

var nodePatterns = []struct {
	kind nodeKind
	re   *regexp.Regexp
}{
	{kindIfCondition, regexp.MustCompile(`(?m)^\s*(?:\}?\s*else\s+)?if[\s(]`)},
	{kindLoop, regexp.MustCompile(`(?m)^\s*(?:for|while)[\s({]`)},
	{kindFunction, regexp.MustCompile(`(?m)^\s*(?:async\s+)?(?:func|function|def)\s+\w+|=>\s*\{`)},
	{kindImport, regexp.MustCompile(`(?m)^\s*(?:import\s|from\s+\S+\s+import\s|const\s+\w+\s*=\s*require\()`)},
	{kindExport, regexp.MustCompile(`(?m)^\s*(?:export\s|module\.exports)`)},
	{kindReturn, regexp.MustCompile(`(?m)^\s*return\b`)},
	{kindAssignment, regexp.MustCompile(`(?m)^\s*(?:var|let|const)?\s*[\w.\[\]]+\s*(?::?=|\+=|-=)\s`)},
	{kindCall, regexp.MustCompile(`(?m)^\s*[\w.]+\([^)]*\)\s*;?\s*$`)},
	{kindClass, regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:class|type\s+\w+\s+struct)\b`)},
	{kindTry, regexp.MustCompile(`(?m)^\s*try\s*[:{]`)},
	{kindCatch, regexp.MustCompile(`(?m)^\s*\}?\s*(?:catch|except)[\s({:]`)},
}

// countNodes tallies recognisable constructs plus the total non-blank
// statement count.
func countNodes(code string) map[nodeKind]int {
	counts := make(map[nodeKind]int, len(nodePatterns)+1)
	for _, p := range nodePatterns {
		if n := len(p.re.FindAllStringIndex(code, -1)); n > 0 {
			counts[p.kind] = n
		}
	}
	statements := 0
	for _, line := range strings.Split(code, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") {
			continue
		}
		statements++
	}
	counts[kindStatement] = statements
	return counts
}

// DiffStructure compares two versions of a file and produces the
// structural operations between them.
//
// When no construct-level delta is detected: differing statement counts
// yield a generic ADD_STATEMENT/REMOVE_STATEMENT, and equal counts with
// different content yield MODIFY_STATEMENT.
func DiffStructure(before, after string) []StructuralOp {
	if before == after {
		return nil
	}
	beforeCounts := countNodes(before)
	afterCounts := countNodes(after)

	var ops []StructuralOp
	for _, p := range nodePatterns {
		b := beforeCounts[p.kind]
		a := afterCounts[p.kind]
		switch {
		case a > b:
			ops = append(ops, StructuralOp{
				Op:     "ADD_" + string(p.kind),
				Change: "add",
				Line:   firstLineOf(p.re, after),
				Count:  a - b,
			})
		case b > a:
			ops = append(ops, StructuralOp{
				Op:     "REMOVE_" + string(p.kind),
				Change: "remove",
				Line:   1, // sentinel: removed constructs have no position in the after-state
				Count:  b - a,
			})
		}
	}
	if len(ops) > 0 {
		return ops
	}

	// Fallbacks for changes the patterns cannot name.
	bs, as := beforeCounts[kindStatement], afterCounts[kindStatement]
	switch {
	case as > bs:
		return []StructuralOp{{Op: "ADD_STATEMENT", Change: "add", Line: 1, Count: as - bs}}
	case bs > as:
		return []StructuralOp{{Op: "REMOVE_STATEMENT", Change: "remove", Line: 1, Count: bs - as}}
	default:
		return []StructuralOp{{Op: "MODIFY_STATEMENT", Change: "modify", Line: 1, Count: 1}}
	}
}

// ChangeStyle derives the overall style from the operation mix: "add" iff
// every op adds, likewise "delete" and "modify"; anything else is "mixed".
func ChangeStyle(ops []StructuralOp) string {
	if len(ops) == 0 {
		return "modify"
	}
	style := ""
	for _, op := range ops {
		s := op.Change
		if s == "remove" {
			s = "delete"
		}
		if style == "" {
			style = s
			continue
		}
		if style != s {
			return "mixed"
		}
	}
	return style
}

func firstLineOf(re *regexp.Regexp, code string) int {
	loc := re.FindStringIndex(code)
	if loc == nil {
		return 1
	}
	return 1 + strings.Count(code[:loc[0]], "\n")
}
