package source

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const (
	ideSampleInterval = 5 * time.Second
	ideHistoryLimit   = 100
)

// IDEState is one sampled snapshot of the editing environment.
type IDEState struct {
	Timestamp      int64          `json:"timestamp"`
	EditorState    map[string]any `json:"editorState"`
	WorkspaceState map[string]any `json:"workspaceState"`
	DebugState     map[string]any `json:"debugState"`
	CursorState    map[string]any `json:"cursorState"`
}

// StateProvider produces the current IDE state. The default provider
// reports workspace-level facts only; richer providers can be plugged in
// where an IDE bridge is available.
type StateProvider func() IDEState

// IDESampler periodically snapshots IDE state, keeps the latest plus a
// bounded history, and emits an ide_state event whenever the snapshot
// changes.
type IDESampler struct {
	counters
	provider StateProvider
	interval time.Duration
	submit   Submitter
	logger   *slog.Logger

	mu       sync.RWMutex
	latest   *IDEState
	history  []IDEState
	lastHash string
}

// NewIDESampler creates the sampler. interval <= 0 selects the 5s default.
func NewIDESampler(provider StateProvider, interval time.Duration, submit Submitter, logger *slog.Logger) *IDESampler {
	if interval <= 0 {
		interval = ideSampleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IDESampler{provider: provider, interval: interval, submit: submit, logger: logger}
}

func (s *IDESampler) Name() string       { return "ide_state" }
func (s *IDESampler) Stats() Stats       { return s.snapshot(s.Name()) }
func (s *IDESampler) IsMonitoring() bool { return s.monitoring.Load() }

// Run samples until ctx is cancelled.
func (s *IDESampler) Run(ctx context.Context) error {
	s.monitoring.Store(true)
	defer s.monitoring.Store(false)
	s.logger.Info("ide sampler: started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sampleOnce()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ide sampler: stopped")
			return nil
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *IDESampler) sampleOnce() {
	state := s.provider()
	state.Timestamp = telemetry.NowMillis()

	// Change detection ignores the timestamp field.
	hashable := state
	hashable.Timestamp = 0
	raw, err := json.Marshal(hashable)
	if err != nil {
		s.errors.Add(1)
		return
	}
	hash := telemetry.ContentHash(string(raw))

	s.mu.Lock()
	changed := hash != s.lastHash
	s.lastHash = hash
	s.latest = &state
	s.history = append(s.history, state)
	if len(s.history) > ideHistoryLimit {
		s.history = append(s.history[:0:0], s.history[len(s.history)-ideHistoryLimit:]...)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	_, err = s.submit.SubmitEvent(&telemetry.Event{
		ID:        telemetry.NewID(),
		Timestamp: state.Timestamp,
		Type:      telemetry.EventIDEState,
		Details: map[string]any{
			"editorState":    state.EditorState,
			"workspaceState": state.WorkspaceState,
			"debugState":     state.DebugState,
			"cursorState":    state.CursorState,
		},
	})
	if err != nil {
		s.errors.Add(1)
		return
	}
	s.captureOK()
}

// Latest returns the most recent snapshot, or nil before the first sample.
func (s *IDESampler) Latest() *IDEState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	st := *s.latest
	return &st
}

// History returns the bounded snapshot history, oldest first.
func (s *IDESampler) History() []IDEState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IDEState, len(s.history))
	copy(out, s.history)
	return out
}

// DefaultStateProvider reports workspace-level facts for root. It stands in
// where no IDE bridge is connected.
func DefaultStateProvider(root string) StateProvider {
	return func() IDEState {
		return IDEState{
			EditorState: map[string]any{},
			WorkspaceState: map[string]any{
				"root": root,
			},
			DebugState:  map[string]any{},
			CursorState: map[string]any{},
		}
	}
}
