// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/api"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/mcpserver"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/push"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/queue"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/rung4"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/share"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/source"
)

// ErrPortInUse reports that the configured port is already bound,
// usually by another companion instance. The CLI maps it to its own
// exit code so supervisors can tell the cases apart.
var ErrPortInUse = errors.New("port already in use")

// Run starts the companion with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("root_dir", cfg.Capture.RootDir),
		slog.String("queue_db", cfg.Queue.DBPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	for _, dir := range []string{filepath.Dir(cfg.Queue.DBPath), filepath.Dir(cfg.Share.DBPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	// Queue persistence. A broken store degrades to memory-only capture
	// rather than refusing to start.
	store, err := queue.OpenStore(cfg.Queue.DBPath, logger)
	if err != nil {
		logger.Warn("queue store unavailable, running without durability", slog.String("error", err.Error()))
		store = nil
	}
	if store != nil {
		defer store.Close()
	}
	q := queue.New(queue.Options{
		MaxItems:    cfg.Queue.MaxItems,
		MaxAge:      time.Duration(cfg.Queue.MaxAgeMs) * time.Millisecond,
		InflightCap: cfg.Queue.InflightCap,
		DedupWindow: time.Duration(cfg.Queue.DedupWindowMs) * time.Millisecond,
	}, store, logger)
	// The queue must stop before its store: Close flushes the final batch.
	defer q.Close()

	// Share links, same degradation policy.
	var sharePersist share.Persistence
	if shareStore, serr := share.OpenSQLiteStore(cfg.Share.DBPath); serr != nil {
		logger.Warn("share store unavailable, links are memory-only", slog.String("error", serr.Error()))
	} else {
		sharePersist = shareStore
		defer shareStore.Close()
	}
	shares := share.NewService(sharePersist, logger)

	// Capture sources.
	watcher := source.NewFileWatcher(cfg.Capture.RootDir, cfg.Capture.WorkspaceID, cfg.Capture.Ignore, q, logger)
	clip := source.NewClipboardMonitor(time.Duration(cfg.Capture.ClipboardRateMs)*time.Millisecond, q, logger)
	sampler := source.NewIDESampler(
		source.DefaultStateProvider(cfg.Capture.RootDir),
		time.Duration(cfg.Capture.IDESampleIntervalMs)*time.Millisecond, q, logger)

	sources := []source.Source{watcher, clip, sampler}

	var prompts *source.PromptSync
	if cfg.Capture.PromptDBPath != "" {
		prompts = source.NewPromptSync(cfg.Capture.PromptDBPath,
			time.Duration(cfg.Capture.PromptSyncIntervalMs)*time.Millisecond, q, logger)
		sources = append(sources, prompts)
	}

	if histPath := terminalHistoryPath(cfg.Capture.TerminalHistoryPath); histPath != "" {
		sources = append(sources, source.NewTerminalMonitor(histPath, q, logger))
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	screenshots := source.NewScreenshotMonitor(cfg.Capture.ScreenshotDirs, home, logger)
	sources = append(sources, screenshots)

	manager := source.NewManager(logger, sources...)

	// Derived views and delivery.
	graph := rung4.NewService(q, logger)
	hub := push.NewHub(q, logger)
	defer hub.Close()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Mount("/", api.NewRouter(api.Deps{
		Queue:       q,
		Sources:     manager,
		Screenshots: screenshots,
		IDE:         sampler,
		Prompts:     prompts,
		Graph:       graph,
		Share:       shares,
		Push:        hub,
		HomeDir:     home,
		StartedAt:   time.Now(),
		DebugInfo: map[string]any{
			"port":          cfg.App.HTTP.Port,
			"root_dir":      cfg.Capture.RootDir,
			"workspace_id":  cfg.Capture.WorkspaceID,
			"queue_db":      cfg.Queue.DBPath,
			"share_db":      cfg.Share.DBPath,
			"max_items":     cfg.Queue.MaxItems,
			"max_age_ms":    cfg.Queue.MaxAgeMs,
			"durable_queue": store != nil,
		},
	}))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: router,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		manager.Start(gCtx)
		<-gCtx.Done()
		manager.Stop()
		return nil
	})

	g.Go(func() error {
		shares.RunCleanup(gCtx.Done(), time.Duration(cfg.Share.CleanupIntervalMs)*time.Millisecond)
		return nil
	})

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if errors.Is(err, syscall.EADDRINUSE) {
				return fmt.Errorf("%s: %w", cfg.App.HTTP.Address(), ErrPortInUse)
			}
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. The queue is replayed from the
// configured database so tools see the retained history, but no capture
// sources or HTTP server run in this mode.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// MCP speaks JSON-RPC on stdout, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	store, err := queue.OpenStore(cfg.Queue.DBPath, logger)
	if err != nil {
		logger.Warn("queue store unavailable, serving empty history", slog.String("error", err.Error()))
		store = nil
	}
	if store != nil {
		defer store.Close()
	}
	q := queue.New(queue.Options{
		MaxItems: cfg.Queue.MaxItems,
		MaxAge:   time.Duration(cfg.Queue.MaxAgeMs) * time.Millisecond,
	}, store, logger)
	defer q.Close()

	var sharePersist share.Persistence
	if shareStore, serr := share.OpenSQLiteStore(cfg.Share.DBPath); serr == nil {
		sharePersist = shareStore
		defer shareStore.Close()
	}
	shares := share.NewService(sharePersist, logger)
	graph := rung4.NewService(q, logger)

	return mcpserver.New(q, graph, shares).ServeStdio()
}

// terminalHistoryPath resolves the history file to tail. Explicit config
// wins; otherwise the shell's default history file is probed.
func terminalHistoryPath(configured string) string {
	if configured != "" {
		return configured
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{".zsh_history", ".bash_history"} {
		p := filepath.Join(home, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
