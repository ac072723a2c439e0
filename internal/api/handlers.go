package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/apperr"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const longPollTimeout = 25 * time.Second

// Queue handles GET /queue?since=S[&wait=true]: all items with seq>S plus
// the current cursor. With wait=true and nothing new, the request suspends
// until an item is sequenced or the long-poll timeout elapses.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since := uint64(0)
	if raw := q.Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("invalid since %q: %w", raw, apperr.ErrValidation))
			return
		}
		since = parsed
	}

	var (
		res any
		err error
	)
	if q.Get("wait") == "true" {
		res, err = h.deps.Queue.WaitSince(r.Context(), since, longPollTimeout)
	} else {
		res, err = h.deps.Queue.ReadSince(since)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Ack handles POST /ack {cursor}. Advisory: records consumer progress for
// reporting, never drives eviction.
func (h *Handler) Ack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cursor uint64 `json:"cursor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid JSON body: %w", apperr.ErrValidation))
		return
	}
	h.deps.Queue.Ack(req.Cursor)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Health handles GET /health. Explicitly non-cacheable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	qs := h.deps.Queue.Stats()
	sourceStats := map[string]any{}
	var clipboardStats any
	if h.deps.Sources != nil {
		for name, st := range h.deps.Sources.Stats() {
			sourceStats[name] = st
			if name == "clipboard" {
				clipboardStats = st
			}
		}
	}

	rawData := map[string]any{}
	if h.deps.Screenshots != nil {
		rawData["screenshots"] = h.deps.Screenshots.Count()
	}
	if h.deps.Prompts != nil {
		rawData["prompts_latest_poll"] = len(h.deps.Prompts.Prompts())
	}

	prompts := 0
	if h.deps.Prompts != nil {
		prompts = len(h.deps.Prompts.Prompts())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"timestamp":       telemetry.NowMillis(),
		"entries":         qs.Entries,
		"prompts":         prompts,
		"queue_length":    qs.Length,
		"sequence":        qs.LastSeq,
		"queue_stats":     qs,
		"source_stats":    sourceStats,
		"clipboard_stats": clipboardStats,
		"raw_data_stats":  rawData,
		"cache_stats": map[string]any{
			"results": h.results.Stats(),
			"images":  h.images.Stats(),
		},
	})
}

// IDEState handles GET /ide-state: the latest sampled snapshot.
func (h *Handler) IDEState(w http.ResponseWriter, r *http.Request) {
	if h.deps.IDE == nil {
		writeError(w, fmt.Errorf("ide sampler not initialised: %w", apperr.ErrUnavailable))
		return
	}
	latest := h.deps.IDE.Latest()
	if latest == nil {
		writeError(w, fmt.Errorf("no ide state sampled yet: %w", apperr.ErrUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"data":      latest,
		"timestamp": telemetry.NowMillis(),
	})
}

// IDEStateSection handles GET /ide-state/{history|editor|workspace|debug|cursor}.
func (h *Handler) IDEStateSection(w http.ResponseWriter, r *http.Request) {
	if h.deps.IDE == nil {
		writeError(w, fmt.Errorf("ide sampler not initialised: %w", apperr.ErrUnavailable))
		return
	}
	section := chi.URLParam(r, "section")
	if section == "history" {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"data":      h.deps.IDE.History(),
			"timestamp": telemetry.NowMillis(),
		})
		return
	}

	latest := h.deps.IDE.Latest()
	if latest == nil {
		writeError(w, fmt.Errorf("no ide state sampled yet: %w", apperr.ErrUnavailable))
		return
	}
	var data any
	switch section {
	case "editor":
		data = latest.EditorState
	case "workspace":
		data = latest.WorkspaceState
	case "debug":
		data = latest.DebugState
	case "cursor":
		data = latest.CursorState
	default:
		writeError(w, fmt.Errorf("unknown section %q: %w", section, apperr.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": telemetry.NowMillis(),
	})
}

// Debug handles GET /api/debug: config echo plus runtime facts.
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_ms":  time.Since(h.deps.StartedAt).Milliseconds(),
		"goroutines": runtime.NumGoroutine(),
		"config":     h.deps.DebugInfo,
		"queue":      h.deps.Queue.Stats(),
	})
}

// CaptureStatus handles GET /api/diagnostic/capture-status.
func (h *Handler) CaptureStatus(w http.ResponseWriter, r *http.Request) {
	sources := map[string]any{}
	if h.deps.Sources != nil {
		for name, st := range h.deps.Sources.Stats() {
			sources[name] = st
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"data":      sources,
		"timestamp": telemetry.NowMillis(),
	})
}

// AccessControlStatus handles GET /api/access-control/status.
func (h *Handler) AccessControlStatus(w http.ResponseWriter, r *http.Request) {
	exts := make([]string, 0, len(allowedImageExts))
	for ext := range allowedImageExts {
		exts = append(exts, ext)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"boundary":           h.deps.HomeDir,
			"allowed_extensions": exts,
		},
		"timestamp": telemetry.NowMillis(),
	})
}
