package source

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Git bookkeeping must never reach the queue: object writes and ref churn
// during normal git usage would otherwise swamp the entry stream.

var (
	gitObjectIDRe  = regexp.MustCompile(`^[0-9a-f]{40}$`)
	gitObjectDirRe = regexp.MustCompile(`^[0-9a-f]{2}$`)
)

var gitInternalNames = map[string]struct{}{
	"HEAD":             {},
	"ORIG_HEAD":        {},
	"FETCH_HEAD":       {},
	"MERGE_HEAD":       {},
	"COMMIT_EDITMSG":   {},
	"index":            {},
	"index.lock":       {},
	"packed-refs":      {},
	"config":           {},
	"description":      {},
	"shallow":          {},
}

// IsGitInternalPath reports whether path points inside git bookkeeping:
// anything under a .git directory, bare 40-hex object ids, objects/XX
// fan-out directories, or well-known git filenames inside a repository
// metadata layout.
func IsGitInternalPath(path string) bool {
	norm := filepath.ToSlash(path)
	parts := strings.Split(norm, "/")
	inGitDir := false
	for i, p := range parts {
		if p == ".git" {
			inGitDir = true
			break
		}
		// objects/XX/<38-hex> layout outside an explicit .git segment
		// (worktrees, GIT_DIR relocations).
		if p == "objects" && i+1 < len(parts) && gitObjectDirRe.MatchString(parts[i+1]) {
			return true
		}
	}
	if inGitDir {
		return true
	}
	base := parts[len(parts)-1]
	if gitObjectIDRe.MatchString(base) {
		return true
	}
	if _, ok := gitInternalNames[base]; ok {
		// Only treat well-known names as internal when a repo metadata
		// sibling is visible in the path; a project file named "config"
		// at top level is legitimate.
		for _, p := range parts {
			if p == ".git" || p == "refs" || p == "objects" || p == "logs" {
				return true
			}
		}
	}
	return false
}
