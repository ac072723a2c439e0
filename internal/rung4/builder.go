package rung4

import (
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/similarity"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const (
	coEditWindow = 5 * time.Minute

	// related edges are only emitted for strongly similar content, and
	// the pairwise scan is skipped entirely on very large workspaces.
	relatedThreshold = 0.8
	relatedMaxFiles  = 200
)

var defRe = regexp.MustCompile(`(?m)^\s*(?:async\s+)?(?:func|function|def)\s+(\w+)`)

// build derives the full graph from the entry/event history of one
// workspace.
func build(workspace string, entries []telemetry.Entry, events []telemetry.Event, highestSeq uint64) *Graph {
	var scoped []telemetry.Entry
	for _, e := range entries {
		if workspace != "" && e.WorkspaceID != "" && e.WorkspaceID != workspace {
			continue
		}
		if e.FilePath == "" {
			continue
		}
		scoped = append(scoped, e)
	}
	sort.SliceStable(scoped, func(i, j int) bool { return scoped[i].Timestamp < scoped[j].Timestamp })

	g := &Graph{
		Nodes:            []Node{},
		Edges:            []Edge{},
		StructuralEvents: []StructuralEvent{},
		Metadata: Metadata{
			Workspace:  workspace,
			HighestSeq: highestSeq,
			EntryCount: len(scoped),
			BuiltAt:    telemetry.NowMillis(),
		},
	}

	fileNodes := make(map[string]*Node)
	latest := make(map[string]string) // file -> most recent after_code
	perFile := make(map[string][]telemetry.Entry)

	for _, e := range scoped {
		fp := path.Clean(filepath(e.FilePath))
		n, ok := fileNodes[fp]
		if !ok {
			n = &Node{
				Path:      fp,
				Type:      NodeFile,
				Language:  telemetry.LanguageForPath(fp),
				FirstSeen: e.Timestamp,
			}
			fileNodes[fp] = n
		}
		n.EditCount++
		n.LastSeen = e.Timestamp
		if e.ChangeType == telemetry.ChangeDeleted {
			delete(latest, fp)
		} else {
			latest[fp] = e.AfterCode
		}
		perFile[fp] = append(perFile[fp], e)
	}

	// Structural events: diff consecutive entries per file.
	for fp, es := range perFile {
		for i := 1; i < len(es); i++ {
			ops := DiffStructure(es[i-1].AfterCode, es[i].AfterCode)
			if len(ops) == 0 {
				continue
			}
			g.StructuralEvents = append(g.StructuralEvents, StructuralEvent{
				FilePath:    fp,
				Timestamp:   es[i].Timestamp,
				Ops:         ops,
				ChangeStyle: ChangeStyle(ops),
			})
		}
	}
	sort.SliceStable(g.StructuralEvents, func(i, j int) bool {
		return g.StructuralEvents[i].Timestamp < g.StructuralEvents[j].Timestamp
	})

	// Model context: prompts referencing a file via @file syntax or an
	// explicit context list mark the node.
	markContext(fileNodes, events)

	type edgeKey struct{ source, target, typ string }
	edges := make(map[edgeKey]float64)
	addEdge := func(source, target, typ string, w float64) {
		edges[edgeKey{source, target, typ}] += w
	}

	// Imports from the most recent content per file. Targets that resolve
	// to a known file link to it; targets that look like workspace files
	// materialise a node of their own.
	for fp, code := range latest {
		for _, target := range ExtractImports(fp, code) {
			resolved := ""
			for known := range fileNodes {
				if known != fp && matchesFile(target, known) {
					resolved = known
					break
				}
			}
			if resolved == "" {
				if path.Ext(target) == "" {
					continue // bare package specifier
				}
				resolved = path.Clean(target)
				if _, ok := fileNodes[resolved]; !ok {
					fileNodes[resolved] = &Node{
						Path:     resolved,
						Type:     NodeFile,
						Language: telemetry.LanguageForPath(resolved),
					}
				}
			}
			if resolved != fp {
				addEdge(fp, resolved, EdgeImports, 1)
			}
		}
	}

	// Calls: names invoked in one file and defined in another.
	defs := make(map[string][]string) // name -> defining files
	for fp, code := range latest {
		for _, m := range defRe.FindAllStringSubmatch(code, -1) {
			defs[m[1]] = append(defs[m[1]], fp)
		}
	}
	for fp, code := range latest {
		for _, call := range ExtractCalls(code) {
			base := call
			if i := strings.LastIndexByte(call, '.'); i >= 0 {
				base = call[i+1:]
			}
			for _, def := range defs[base] {
				if def != fp {
					addEdge(fp, def, EdgeCalls, 1)
				}
			}
		}
	}

	// Co-edited: unordered file pairs appearing in entries within the
	// sliding window; weight is the co-occurrence count.
	for i := range scoped {
		for j := i + 1; j < len(scoped); j++ {
			if scoped[j].Timestamp-scoped[i].Timestamp > coEditWindow.Milliseconds() {
				break
			}
			a := path.Clean(filepath(scoped[i].FilePath))
			b := path.Clean(filepath(scoped[j].FilePath))
			if a == b {
				continue
			}
			if a > b {
				a, b = b, a
			}
			addEdge(a, b, EdgeCoEdited, 1)
		}
	}

	// Related: strongly similar content by term-vector cosine.
	if len(latest) <= relatedMaxFiles {
		relatedEdges(latest, addEdge)
	}

	// Directory nodes and contains edges.
	dirNodes := make(map[string]*Node)
	for fp, n := range fileNodes {
		child := fp
		childNode := n
		for {
			dir := path.Dir(child)
			if dir == "." || dir == "/" || dir == child {
				break
			}
			dn, ok := dirNodes[dir]
			if !ok {
				dn = &Node{Path: dir, Type: NodeDir}
				dirNodes[dir] = dn
			}
			dn.EditCount += n.EditCount
			if childNode.LastSeen > dn.LastSeen {
				dn.LastSeen = childNode.LastSeen
			}
			addEdge(dir, child, EdgeContains, 1)
			child = dir
			childNode = dn
		}
	}

	for _, n := range fileNodes {
		g.Nodes = append(g.Nodes, *n)
	}
	for _, n := range dirNodes {
		g.Nodes = append(g.Nodes, *n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].Path < g.Nodes[j].Path })

	for k, w := range edges {
		g.Edges = append(g.Edges, Edge{Source: k.source, Target: k.target, Type: k.typ, Weight: w})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Type < b.Type
	})

	g.Hierarchy = buildHierarchy(workspace, g.Nodes)
	return g
}

// filepath normalises separators; entry paths may arrive in either form.
func filepath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func markContext(fileNodes map[string]*Node, events []telemetry.Event) {
	var referenced []string
	for _, ev := range events {
		if ev.Type != telemetry.EventPromptCreated || ev.Details == nil {
			continue
		}
		if files, ok := ev.Details["context_files"].([]string); ok {
			referenced = append(referenced, files...)
		} else if files, ok := ev.Details["context_files"].([]any); ok {
			for _, f := range files {
				if s, ok := f.(string); ok {
					referenced = append(referenced, s)
				}
			}
		}
		if text, ok := ev.Details["text"].(string); ok {
			for _, m := range atFileInPromptRe.FindAllStringSubmatch(text, -1) {
				referenced = append(referenced, m[1])
			}
		}
	}
	for _, ref := range referenced {
		for fp, n := range fileNodes {
			if matchesFile(ref, fp) {
				n.HasModelContext = true
			}
		}
	}
}

var atFileInPromptRe = regexp.MustCompile(`@([\w./-]+\.\w+)`)

// relatedEdges runs the pairwise cosine scan over shared vocabularies.
func relatedEdges(latest map[string]string, addEdge func(a, b, typ string, w float64)) {
	files := make([]string, 0, len(latest))
	for fp := range latest {
		files = append(files, fp)
	}
	sort.Strings(files)

	tokens := make(map[string]map[string]float64, len(files))
	for _, fp := range files {
		tokens[fp] = termCounts(latest[fp])
	}

	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			a, b := tokens[files[i]], tokens[files[j]]
			if len(a) == 0 || len(b) == 0 {
				continue
			}
			sim := similarity.Cosine(alignVectors(a, b))
			if sim >= relatedThreshold {
				addEdge(files[i], files[j], EdgeRelated, sim)
			}
		}
	}
}

var wordRe = regexp.MustCompile(`[A-Za-z_]\w{2,}`)

func termCounts(code string) map[string]float64 {
	counts := make(map[string]float64)
	for _, w := range wordRe.FindAllString(code, -1) {
		counts[strings.ToLower(w)]++
	}
	return counts
}

// alignVectors projects two term-count maps onto a shared vocabulary.
func alignVectors(a, b map[string]float64) ([]float64, []float64) {
	vocab := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for t := range a {
		vocab = append(vocab, t)
		seen[t] = struct{}{}
	}
	for t := range b {
		if _, ok := seen[t]; !ok {
			vocab = append(vocab, t)
		}
	}
	va := make([]float64, len(vocab))
	vb := make([]float64, len(vocab))
	for i, t := range vocab {
		va[i] = a[t]
		vb[i] = b[t]
	}
	return va, vb
}

func buildHierarchy(workspace string, nodes []Node) *HierarchyNode {
	root := &HierarchyNode{Path: ".", Name: workspace, Type: NodeDir}
	if root.Name == "" {
		root.Name = "workspace"
	}
	index := map[string]*HierarchyNode{".": root}

	ensure := func(p, typ string) *HierarchyNode {
		if n, ok := index[p]; ok {
			return n
		}
		n := &HierarchyNode{Path: p, Name: path.Base(p), Type: typ}
		index[p] = n
		return n
	}

	// Materialise every node and link it to its parent chain.
	for _, n := range nodes {
		hn := ensure(n.Path, n.Type)
		hn.TotalEdits = n.EditCount
		hn.LastTouched = n.LastSeen
	}
	linked := make(map[string]struct{})
	var link func(p string)
	link = func(p string) {
		if p == "." {
			return
		}
		if _, done := linked[p]; done {
			return
		}
		linked[p] = struct{}{}
		parent := ensure(path.Dir(p), NodeDir)
		parent.Children = append(parent.Children, index[p])
		link(parent.Path)
	}
	for p := range index {
		link(p)
	}

	// Aggregate edits from file leaves and recency bottom-up, ordering
	// children by path.
	var finish func(n *HierarchyNode) (int, int64)
	finish = func(n *HierarchyNode) (int, int64) {
		sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Path < n.Children[j].Path })
		if n.Type == NodeFile {
			return n.TotalEdits, n.LastTouched
		}
		edits := 0
		touched := n.LastTouched
		for _, c := range n.Children {
			ce, ct := finish(c)
			edits += ce
			if ct > touched {
				touched = ct
			}
		}
		n.TotalEdits = edits
		n.LastTouched = touched
		return edits, touched
	}
	finish(root)

	return root
}
