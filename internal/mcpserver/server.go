// Package mcpserver exposes the captured activity stream as MCP (Model
// Context Protocol) tools over stdio, so LLM clients can query recent
// developer activity and the derived module graph.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/queue"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/rung4"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/share"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

// Server wraps the MCP server with the telemetry tools.
type Server struct {
	mcp   *server.MCPServer
	queue *queue.Queue
	graph *rung4.Service
	share *share.Service
}

// New creates an MCP server with all tools registered. graph and shares
// may be nil; the matching tools then report unavailability.
func New(q *queue.Queue, graph *rung4.Service, shares *share.Service) *Server {
	s := &Server{queue: q, graph: graph, share: shares}

	s.mcp = server.NewMCPServer(
		"cursor-telemetry-companion",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("recent_activity",
		mcp.WithDescription("Return the most recent captured code changes and events, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of items to return (default 20)")),
	), s.recentActivity)

	s.mcp.AddTool(mcp.NewTool("search_events",
		mcp.WithDescription("Search captured entries and events by substring over file path, event type and details."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of matches (default 20)")),
	), s.searchEvents)

	s.mcp.AddTool(mcp.NewTool("module_graph",
		mcp.WithDescription("Return the derived module graph (nodes, edges, hierarchy) for a workspace."),
		mcp.WithString("workspace", mcp.Description("Workspace id (empty for all workspaces)")),
	), s.moduleGraph)

	s.mcp.AddTool(mcp.NewTool("queue_stats",
		mcp.WithDescription("Return queue statistics: length, sequence watermark, eviction and dedup counts."),
	), s.queueStats)

	s.mcp.AddTool(mcp.NewTool("list_share_links",
		mcp.WithDescription("List the active (unexpired) share links."),
	), s.listShareLinks)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) recentActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if n, err := req.RequireInt("limit"); err == nil && n > 0 {
		limit = n
	}

	res, err := s.queue.ReadSince(0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	items := summariseItems(res, limit)
	out, _ := json.MarshalIndent(map[string]any{
		"cursor": res.Cursor,
		"items":  items,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := 20
	if n, lerr := req.RequireInt("limit"); lerr == nil && n > 0 {
		limit = n
	}

	res, err := s.queue.ReadSince(0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	needle := strings.ToLower(query)
	var matches []map[string]any
	for i := len(res.Entries) - 1; i >= 0 && len(matches) < limit; i-- {
		e := res.Entries[i]
		if strings.Contains(strings.ToLower(e.FilePath), needle) ||
			strings.Contains(strings.ToLower(e.AfterCode), needle) {
			matches = append(matches, entrySummary(e))
		}
	}
	for i := len(res.Events) - 1; i >= 0 && len(matches) < limit; i-- {
		ev := res.Events[i]
		detail, _ := json.Marshal(ev.Details)
		if strings.Contains(strings.ToLower(ev.Type), needle) ||
			strings.Contains(strings.ToLower(string(detail)), needle) {
			matches = append(matches, eventSummary(ev))
		}
	}

	if len(matches) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	out, _ := json.MarshalIndent(matches, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) moduleGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.graph == nil {
		return mcp.NewToolResultError("module graph not configured"), nil
	}
	workspace := ""
	if ws, err := req.RequireString("workspace"); err == nil {
		workspace = ws
	}
	g, err := s.graph.GetModuleGraph(workspace, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(g, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) queueStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.queue.Stats(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listShareLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.share == nil {
		return mcp.NewToolResultError("share links not configured"), nil
	}
	links := s.share.ListShareLinks()
	if len(links) == 0 {
		return mcp.NewToolResultText("no active share links"), nil
	}
	out, _ := json.MarshalIndent(links, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// summariseItems flattens the read result into the newest limit items.
func summariseItems(res queue.ReadResult, limit int) []map[string]any {
	type stamped struct {
		ts int64
		m  map[string]any
	}
	all := make([]stamped, 0, len(res.Entries)+len(res.Events))
	for _, e := range res.Entries {
		all = append(all, stamped{e.Timestamp, entrySummary(e)})
	}
	for _, ev := range res.Events {
		all = append(all, stamped{ev.Timestamp, eventSummary(ev)})
	}
	// Newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]map[string]any, 0, len(all))
	for _, s := range all {
		out = append(out, s.m)
	}
	return out
}

func entrySummary(e telemetry.Entry) map[string]any {
	return map[string]any{
		"kind":          "entry",
		"file_path":     e.FilePath,
		"change_type":   e.ChangeType,
		"language":      e.Language,
		"timestamp":     e.Timestamp,
		"lines_added":   e.LinesAdded,
		"lines_deleted": e.LinesDeleted,
	}
}

func eventSummary(ev telemetry.Event) map[string]any {
	return map[string]any{
		"kind":      "event",
		"type":      ev.Type,
		"timestamp": ev.Timestamp,
		"details":   fmt.Sprintf("%v", ev.Details),
	}
}
