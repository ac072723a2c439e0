package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/apperr"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const defaultScreenshotLimit = 50

var allowedImageExts = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
}

// Screenshots handles GET /api/screenshots. Modes: ?recent=N (newest
// first), ?since=T&until=T (range, oldest first), or a plain listing
// capped by ?limit=N.
func (h *Handler) Screenshots(w http.ResponseWriter, r *http.Request) {
	if h.deps.Screenshots == nil {
		writeError(w, fmt.Errorf("screenshot monitor not configured: %w", apperr.ErrUnavailable))
		return
	}
	q := r.URL.Query()

	var records []telemetry.ScreenshotRecord
	switch {
	case q.Get("recent") != "":
		n, err := strconv.Atoi(q.Get("recent"))
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("invalid recent %q: %w", q.Get("recent"), apperr.ErrValidation))
			return
		}
		records = h.deps.Screenshots.Recent(n)
	case q.Get("since") != "" || q.Get("until") != "":
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
		if until == 0 {
			until = telemetry.NowMillis()
		}
		records = h.deps.Screenshots.InRange(since, until)
	default:
		limit := defaultScreenshotLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, fmt.Errorf("invalid limit %q: %w", raw, apperr.ErrValidation))
				return
			}
			limit = n
		}
		records = h.deps.Screenshots.Recent(limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"screenshots": records,
		"stats": map[string]any{
			"total":    h.deps.Screenshots.Count(),
			"returned": len(records),
		},
		"timestamp": telemetry.NowMillis(),
	})
}

// ScreenshotsNear handles GET /api/screenshots/near/{timestamp}?window=ms,
// returning screenshots within the window ordered by distance from the
// target time.
func (h *Handler) ScreenshotsNear(w http.ResponseWriter, r *http.Request) {
	if h.deps.Screenshots == nil {
		writeError(w, fmt.Errorf("screenshot monitor not configured: %w", apperr.ErrUnavailable))
		return
	}
	target, err := parseTimestamp(chi.URLParam(r, "timestamp"))
	if err != nil {
		writeError(w, err)
		return
	}
	window := int64(5 * 60 * 1000)
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || parsed < 0 {
			writeError(w, fmt.Errorf("invalid window %q: %w", raw, apperr.ErrValidation))
			return
		}
		window = parsed
	}

	records := h.deps.Screenshots.NearTime(target, window)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"screenshots": records,
		"stats": map[string]any{
			"target":   target,
			"window":   window,
			"returned": len(records),
		},
		"timestamp": telemetry.NowMillis(),
	})
}

// Image handles GET /api/image?path=. The path must resolve inside the
// user home directory and carry an allowed image extension; anything
// else is forbidden regardless of whether it exists.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		writeError(w, fmt.Errorf("missing path parameter: %w", apperr.ErrValidation))
		return
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}

	abs, err := filepath.Abs(decoded)
	if err != nil {
		writeError(w, fmt.Errorf("unresolvable path: %w", apperr.ErrValidation))
		return
	}
	abs = filepath.Clean(abs)

	home := filepath.Clean(h.deps.HomeDir)
	if abs != home && !strings.HasPrefix(abs, home+string(filepath.Separator)) {
		writeError(w, fmt.Errorf("path outside allowed boundary: %w", apperr.ErrForbidden))
		return
	}
	ext := strings.ToLower(filepath.Ext(abs))
	mime, ok := allowedImageExts[ext]
	if !ok {
		writeError(w, fmt.Errorf("extension %q not allowed: %w", ext, apperr.ErrForbidden))
		return
	}

	data, ok := h.images.Get(abs)
	if !ok {
		data, err = os.ReadFile(abs)
		if err != nil {
			if os.IsNotExist(err) {
				writeError(w, fmt.Errorf("image %s: %w", abs, apperr.ErrNotFound))
				return
			}
			writeError(w, fmt.Errorf("read image: %w", err))
			return
		}
		h.images.Set(abs, data)
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseTimestamp accepts unix milliseconds or RFC 3339. Empty input is 0.
func parseTimestamp(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid timestamp %q: %w", raw, apperr.ErrValidation)
}
