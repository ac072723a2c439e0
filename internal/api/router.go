package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/cache"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/queue"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/rung4"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/share"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/source"
)

// Deps are the typed dependencies the delivery layer composes. Each
// component is constructed elsewhere and handed in; the router owns no
// state of its own.
type Deps struct {
	Queue       *queue.Queue
	Sources     *source.Manager
	Screenshots *source.ScreenshotMonitor
	IDE         *source.IDESampler
	Prompts     *source.PromptSync
	Graph       *rung4.Service
	Share       *share.Service
	Push        http.Handler // WebSocket hub, nil to disable

	HomeDir   string
	StartedAt time.Time
	DebugInfo map[string]any // config echo for /api/debug
}

// Handler holds the route handlers plus the delivery-side caches.
type Handler struct {
	deps    Deps
	results *cache.Cache[[]byte] // derived API reads
	images  *cache.Cache[[]byte] // raw image bytes
}

// NewHandler creates the handler set.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:    deps,
		results: cache.New[[]byte](512, cache.DefaultResultTTL),
		images:  cache.New[[]byte](64, cache.DefaultStaticTTL),
	}
}

// NewRouter mounts all routes.
func NewRouter(deps Deps) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Get("/queue", h.Queue)
	r.Post("/ack", h.Ack)

	r.Get("/ide-state", h.IDEState)
	r.Get("/ide-state/{section}", h.IDEStateSection)

	r.Route("/api", func(r chi.Router) {
		r.Get("/screenshots", h.Screenshots)
		r.Get("/screenshots/near/{timestamp}", h.ScreenshotsNear)
		r.Get("/image", h.Image)

		r.Route("/rung4", func(r chi.Router) {
			r.Get("/graph", h.Rung4Graph)
			r.Get("/nodes", h.Rung4Nodes)
			r.Get("/edges", h.Rung4Edges)
			r.Get("/events", h.Rung4Events)
			r.Get("/hierarchy", h.Rung4Hierarchy)
			r.Post("/refresh", h.Rung4Refresh)
		})

		r.Post("/share", h.ShareCreate)
		r.Get("/share", h.ShareList)
		r.Get("/share/{id}", h.ShareGet)
		r.Delete("/share/{id}", h.ShareDelete)

		r.Get("/access-control/status", h.AccessControlStatus)
		r.Get("/debug", h.Debug)
		r.Get("/diagnostic/capture-status", h.CaptureStatus)
	})

	if deps.Push != nil {
		r.Get("/ws", deps.Push.ServeHTTP)
	}

	return r
}
