// Package source implements the capture sources feeding the sequencer:
// file watcher, prompt sync, terminal monitor, clipboard monitor,
// screenshot monitor, and IDE-state sampler.
//
// Sources are independent: each runs as its own goroutine, recovers its own
// failures, and owns its polling interval and debouncing. They reach the
// queue only through the Submitter capability handed to them at
// construction, so there are no back-references.
package source

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

// Submitter is the sequencer capability given to every source.
type Submitter interface {
	SubmitEntry(e *telemetry.Entry) (uint64, error)
	SubmitEvent(ev *telemetry.Event) (uint64, error)
}

// Stats describes one source for diagnostics and the health report.
type Stats struct {
	Name        string `json:"name"`
	Monitoring  bool   `json:"monitoring"`
	Captured    uint64 `json:"captured"`
	Errors      uint64 `json:"errors"`
	LastCapture int64  `json:"last_capture,omitempty"` // unix millis
}

// Source is a capture source lifecycle.
type Source interface {
	Name() string
	// Run captures until ctx is cancelled. Errors are terminal for this
	// source only.
	Run(ctx context.Context) error
	Stats() Stats
	IsMonitoring() bool
}

// counters is the shared bookkeeping embedded by every source.
type counters struct {
	monitoring  atomic.Bool
	captured    atomic.Uint64
	errors      atomic.Uint64
	lastCapture atomic.Int64
}

func (c *counters) captureOK() {
	c.captured.Add(1)
	c.lastCapture.Store(telemetry.NowMillis())
}

func (c *counters) snapshot(name string) Stats {
	return Stats{
		Name:        name,
		Monitoring:  c.monitoring.Load(),
		Captured:    c.captured.Load(),
		Errors:      c.errors.Load(),
		LastCapture: c.lastCapture.Load(),
	}
}

// Manager runs a set of sources, isolating their failures from each other.
type Manager struct {
	logger  *slog.Logger
	sources []Source

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager over the given sources.
func NewManager(logger *slog.Logger, sources ...Source) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, sources: sources}
}

// Start launches every source. A source that returns or panics is logged
// and left stopped; the others keep running.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	for _, s := range m.sources {
		s := s
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("source panicked",
						slog.String("source", s.Name()),
						slog.Any("panic", r))
				}
			}()
			if err := s.Run(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("source stopped",
					slog.String("source", s.Name()),
					slog.String("error", err.Error()))
			}
		}()
	}
}

// Stop cancels all sources and waits for them to wind down.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Stats returns a snapshot per source, keyed by source name.
func (m *Manager) Stats() map[string]Stats {
	out := make(map[string]Stats, len(m.sources))
	for _, s := range m.sources {
		out[s.Name()] = s.Stats()
	}
	return out
}

// Lookup returns the source with the given name, if registered.
func (m *Manager) Lookup(name string) (Source, bool) {
	for _, s := range m.sources {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}
