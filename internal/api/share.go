package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/apperr"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/share"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

func (h *Handler) shareService(w http.ResponseWriter) *share.Service {
	if h.deps.Share == nil {
		writeError(w, fmt.Errorf("share links not configured: %w", apperr.ErrUnavailable))
		return nil
	}
	return h.deps.Share
}

// ShareCreate handles POST /api/share.
func (h *Handler) ShareCreate(w http.ResponseWriter, r *http.Request) {
	svc := h.shareService(w)
	if svc == nil {
		return
	}
	var opts share.CreateOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeError(w, fmt.Errorf("invalid JSON body: %w", apperr.ErrValidation))
		return
	}
	link, err := svc.CreateShareLink(opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": link, "timestamp": telemetry.NowMillis()})
}

// ShareList handles GET /api/share. Listing never counts as access.
func (h *Handler) ShareList(w http.ResponseWriter, r *http.Request) {
	svc := h.shareService(w)
	if svc == nil {
		return
	}
	links := svc.ListShareLinks()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": links, "count": len(links), "timestamp": telemetry.NowMillis()})
}

// ShareGet handles GET /api/share/{id}. Expired links are reported as
// absent; a successful read counts the access.
func (h *Handler) ShareGet(w http.ResponseWriter, r *http.Request) {
	svc := h.shareService(w)
	if svc == nil {
		return
	}
	id := chi.URLParam(r, "id")
	link := svc.GetShareLink(id)
	if link == nil {
		writeError(w, fmt.Errorf("share link %s: %w", id, apperr.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": link, "timestamp": telemetry.NowMillis()})
}

// ShareDelete handles DELETE /api/share/{id}.
func (h *Handler) ShareDelete(w http.ResponseWriter, r *http.Request) {
	svc := h.shareService(w)
	if svc == nil {
		return
	}
	if err := svc.DeleteShareLink(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "timestamp": telemetry.NowMillis()})
}
