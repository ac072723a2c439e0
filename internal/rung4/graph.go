// Package rung4 derives the file-level module graph from the event
// history: typed nodes and edges, structural change events, and a
// directory hierarchy, memoised per workspace and sequence watermark.
package rung4

// Node types.
const (
	NodeFile = "file"
	NodeDir  = "dir"
)

// Edge types.
const (
	EdgeImports  = "imports"
	EdgeCalls    = "calls"
	EdgeContains = "contains"
	EdgeCoEdited = "co_edited"
	EdgeRelated  = "related"
)

// Node is a file or directory observed in the entry stream.
type Node struct {
	Path            string `json:"path"`
	Type            string `json:"type"`
	Language        string `json:"language,omitempty"`
	EditCount       int    `json:"editCount"`
	FirstSeen       int64  `json:"firstSeen,omitempty"`
	LastSeen        int64  `json:"lastSeen,omitempty"`
	HasModelContext bool   `json:"hasModelContext"`
}

// Edge is a typed, weighted relation between two nodes.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// StructuralOp is one detected operation in a structural diff.
//
// Line is 1 on the generic add/remove fallbacks; that value is a sentinel,
// not a position, and consumers must not interpret it positionally.
type StructuralOp struct {
	Op     string `json:"op"`     // e.g. ADD_FUNCTION, REMOVE_IMPORT
	Change string `json:"change"` // add | remove | modify
	Line   int    `json:"line"`
	Count  int    `json:"count"`
}

// StructuralEvent summarises the structural delta between two consecutive
// entries for the same file.
type StructuralEvent struct {
	FilePath    string         `json:"file_path"`
	Timestamp   int64          `json:"timestamp"`
	Ops         []StructuralOp `json:"ops"`
	ChangeStyle string         `json:"changeStyle"` // add | delete | modify | mixed
}

// HierarchyNode is a node in the directory tree with per-subtree
// aggregates.
type HierarchyNode struct {
	Path        string           `json:"path"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	TotalEdits  int              `json:"totalEdits"`
	LastTouched int64            `json:"lastTouched,omitempty"`
	Children    []*HierarchyNode `json:"children,omitempty"`
}

// Metadata describes the graph build.
type Metadata struct {
	Workspace  string `json:"workspace,omitempty"`
	HighestSeq uint64 `json:"highest_seq"`
	EntryCount int    `json:"entry_count"`
	BuiltAt    int64  `json:"built_at"`
}

// Graph is the full derived module graph for one workspace.
type Graph struct {
	Nodes            []Node            `json:"nodes"`
	Edges            []Edge            `json:"edges"`
	StructuralEvents []StructuralEvent `json:"structural_events"`
	Hierarchy        *HierarchyNode    `json:"hierarchy"`
	Metadata         Metadata          `json:"metadata"`
}

// NodeFilter narrows getNodes results. Zero values match everything.
type NodeFilter struct {
	Type     string
	Language string
}

func (f NodeFilter) match(n Node) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Language != "" && n.Language != f.Language {
		return false
	}
	return true
}

// EdgeFilter narrows getEdges results.
type EdgeFilter struct {
	Type      string
	MinWeight float64
}

func (f EdgeFilter) match(e Edge) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.MinWeight > 0 && e.Weight < f.MinWeight {
		return false
	}
	return true
}

// EventFilter narrows getEvents results. Since/Until are unix millis; zero
// means unbounded.
type EventFilter struct {
	FilePath string
	Since    int64
	Until    int64
}

func (f EventFilter) match(ev StructuralEvent) bool {
	if f.FilePath != "" && ev.FilePath != f.FilePath {
		return false
	}
	if f.Since > 0 && ev.Timestamp < f.Since {
		return false
	}
	if f.Until > 0 && ev.Timestamp > f.Until {
		return false
	}
	return true
}
