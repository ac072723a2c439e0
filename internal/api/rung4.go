package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/apperr"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/rung4"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

func (h *Handler) graphService(w http.ResponseWriter) *rung4.Service {
	if h.deps.Graph == nil {
		writeError(w, fmt.Errorf("module graph not configured: %w", apperr.ErrUnavailable))
		return nil
	}
	return h.deps.Graph
}

// Rung4Graph handles GET /api/rung4/graph?workspace=W[&refresh=true].
func (h *Handler) Rung4Graph(w http.ResponseWriter, r *http.Request) {
	svc := h.graphService(w)
	if svc == nil {
		return
	}
	q := r.URL.Query()
	g, err := svc.GetModuleGraph(q.Get("workspace"), q.Get("refresh") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": g, "timestamp": telemetry.NowMillis()})
}

// Rung4Nodes handles GET /api/rung4/nodes?workspace=&type=&language=.
func (h *Handler) Rung4Nodes(w http.ResponseWriter, r *http.Request) {
	svc := h.graphService(w)
	if svc == nil {
		return
	}
	q := r.URL.Query()
	nodes, err := svc.GetNodes(q.Get("workspace"), rung4.NodeFilter{
		Type:     q.Get("type"),
		Language: q.Get("language"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": nodes, "count": len(nodes), "timestamp": telemetry.NowMillis()})
}

// Rung4Edges handles GET /api/rung4/edges?workspace=&type=&minWeight=.
func (h *Handler) Rung4Edges(w http.ResponseWriter, r *http.Request) {
	svc := h.graphService(w)
	if svc == nil {
		return
	}
	q := r.URL.Query()
	filter := rung4.EdgeFilter{Type: q.Get("type")}
	if raw := q.Get("minWeight"); raw != "" {
		min, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, fmt.Errorf("invalid minWeight %q: %w", raw, apperr.ErrValidation))
			return
		}
		filter.MinWeight = min
	}
	edges, err := svc.GetEdges(q.Get("workspace"), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": edges, "count": len(edges), "timestamp": telemetry.NowMillis()})
}

// Rung4Events handles GET /api/rung4/events?workspace=&file=&since=&until=.
func (h *Handler) Rung4Events(w http.ResponseWriter, r *http.Request) {
	svc := h.graphService(w)
	if svc == nil {
		return
	}
	q := r.URL.Query()
	since, err := parseTimestamp(q.Get("since"))
	if err != nil {
		writeError(w, err)
		return
	}
	until, err := parseTimestamp(q.Get("until"))
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := svc.GetEvents(q.Get("workspace"), rung4.EventFilter{
		FilePath: q.Get("file"),
		Since:    since,
		Until:    until,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": events, "count": len(events), "timestamp": telemetry.NowMillis()})
}

// Rung4Hierarchy handles GET /api/rung4/hierarchy?workspace=.
func (h *Handler) Rung4Hierarchy(w http.ResponseWriter, r *http.Request) {
	svc := h.graphService(w)
	if svc == nil {
		return
	}
	tree, err := svc.GetHierarchy(r.URL.Query().Get("workspace"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": tree, "timestamp": telemetry.NowMillis()})
}

// Rung4Refresh handles POST /api/rung4/refresh?workspace=. An empty
// workspace drops every cached graph; a named one rebuilds just that
// graph and returns it.
func (h *Handler) Rung4Refresh(w http.ResponseWriter, r *http.Request) {
	svc := h.graphService(w)
	if svc == nil {
		return
	}
	workspace := r.URL.Query().Get("workspace")
	svc.ClearCache(workspace)
	if workspace == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "timestamp": telemetry.NowMillis()})
		return
	}
	g, err := svc.GetModuleGraph(workspace, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": g.Metadata, "timestamp": telemetry.NowMillis()})
}
