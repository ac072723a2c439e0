package rung4

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/queue"
)

// Reader is the slice of the queue the graph service needs.
type Reader interface {
	ReadSince(since uint64) (queue.ReadResult, error)
}

// Service derives and caches module graphs per workspace.
//
// Graphs are memoised on (workspace, highestSeq): as soon as a relevant
// entry is sequenced the cursor moves and the next read rebuilds. Rebuilds
// are copy-on-write; readers keep whatever snapshot they were handed.
type Service struct {
	reader Reader
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*Graph
}

// NewService creates the graph service over the queue reader.
func NewService(reader Reader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, logger: logger, cache: make(map[string]*Graph)}
}

// GetModuleGraph returns the graph for workspace, rebuilding when the
// sequence watermark moved or forceRefresh is set.
func (s *Service) GetModuleGraph(workspace string, forceRefresh bool) (*Graph, error) {
	res, err := s.reader.ReadSince(0)
	if err != nil {
		return nil, fmt.Errorf("rung4: read history: %w", err)
	}

	s.mu.Lock()
	cached, ok := s.cache[workspace]
	s.mu.Unlock()
	if ok && !forceRefresh && cached.Metadata.HighestSeq == res.Cursor {
		return cached, nil
	}

	g := build(workspace, res.Entries, res.Events, res.Cursor)
	s.mu.Lock()
	s.cache[workspace] = g
	s.mu.Unlock()

	s.logger.Debug("rung4: graph rebuilt",
		slog.String("workspace", workspace),
		slog.Uint64("highest_seq", res.Cursor),
		slog.Int("nodes", len(g.Nodes)),
		slog.Int("edges", len(g.Edges)))
	return g, nil
}

// GetNodes returns the workspace's nodes narrowed by filter.
func (s *Service) GetNodes(workspace string, filter NodeFilter) ([]Node, error) {
	g, err := s.GetModuleGraph(workspace, false)
	if err != nil {
		return nil, err
	}
	out := []Node{}
	for _, n := range g.Nodes {
		if filter.match(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// GetEdges returns the workspace's edges narrowed by filter.
func (s *Service) GetEdges(workspace string, filter EdgeFilter) ([]Edge, error) {
	g, err := s.GetModuleGraph(workspace, false)
	if err != nil {
		return nil, err
	}
	out := []Edge{}
	for _, e := range g.Edges {
		if filter.match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetEvents returns the workspace's structural events narrowed by filter.
func (s *Service) GetEvents(workspace string, filter EventFilter) ([]StructuralEvent, error) {
	g, err := s.GetModuleGraph(workspace, false)
	if err != nil {
		return nil, err
	}
	out := []StructuralEvent{}
	for _, ev := range g.StructuralEvents {
		if filter.match(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetHierarchy returns the workspace's directory tree.
func (s *Service) GetHierarchy(workspace string) (*HierarchyNode, error) {
	g, err := s.GetModuleGraph(workspace, false)
	if err != nil {
		return nil, err
	}
	return g.Hierarchy, nil
}

// ClearCache drops the graph for workspace, or every graph when workspace
// is empty.
func (s *Service) ClearCache(workspace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if workspace == "" {
		s.cache = make(map[string]*Graph)
		return
	}
	delete(s.cache, workspace)
}
