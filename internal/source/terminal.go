package source

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const terminalPollInterval = 2 * time.Second

// TerminalMonitor captures command executions as terminal events by
// tailing the user's shell history file. Only lines appended after the
// monitor starts are emitted.
type TerminalMonitor struct {
	counters
	historyPath string
	submit      Submitter
	logger      *slog.Logger
	offset      int64
}

// NewTerminalMonitor tails historyPath (bash or zsh history format).
func NewTerminalMonitor(historyPath string, submit Submitter, logger *slog.Logger) *TerminalMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TerminalMonitor{historyPath: historyPath, submit: submit, logger: logger}
}

func (t *TerminalMonitor) Name() string       { return "terminal" }
func (t *TerminalMonitor) Stats() Stats       { return t.snapshot(t.Name()) }
func (t *TerminalMonitor) IsMonitoring() bool { return t.monitoring.Load() }

// Run polls the history file until ctx is cancelled.
func (t *TerminalMonitor) Run(ctx context.Context) error {
	if info, err := os.Stat(t.historyPath); err == nil {
		t.offset = info.Size()
	}

	t.monitoring.Store(true)
	defer t.monitoring.Store(false)
	t.logger.Info("terminal monitor: started", slog.String("history", t.historyPath))

	ticker := time.NewTicker(terminalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("terminal monitor: stopped")
			return nil
		case <-ticker.C:
			t.pollOnce()
		}
	}
}

func (t *TerminalMonitor) pollOnce() {
	info, err := os.Stat(t.historyPath)
	if err != nil {
		return
	}
	size := info.Size()
	if size == t.offset {
		return
	}
	if size < t.offset {
		// History file rewritten (e.g. fc -W); restart from the top.
		t.offset = 0
	}

	f, err := os.Open(t.historyPath)
	if err != nil {
		t.errors.Add(1)
		return
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, 0); err != nil {
		t.errors.Add(1)
		return
	}
	buf := make([]byte, size-t.offset)
	n, _ := f.Read(buf)
	t.offset = size

	for _, line := range strings.Split(string(buf[:n]), "\n") {
		cmd, started, duration := parseHistoryLine(line)
		if cmd == "" {
			continue
		}
		details := map[string]any{"command": cmd}
		if duration > 0 {
			details["duration"] = duration
		}
		ev := &telemetry.Event{
			ID:      telemetry.NewID(),
			Type:    telemetry.EventTerminal,
			Details: details,
		}
		if started > 0 {
			ev.Timestamp = started * 1000
		}
		if _, err := t.submit.SubmitEvent(ev); err != nil {
			t.errors.Add(1)
			continue
		}
		t.captureOK()
	}
}

// parseHistoryLine handles both the plain bash format and the zsh extended
// format ": <start>:<duration>;<command>".
func parseHistoryLine(line string) (cmd string, started int64, duration int64) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", 0, 0
	}
	if strings.HasPrefix(line, ": ") {
		rest := strings.TrimPrefix(line, ": ")
		semi := strings.IndexByte(rest, ';')
		if semi > 0 {
			meta := rest[:semi]
			cmd = strings.TrimSpace(rest[semi+1:])
			if colon := strings.IndexByte(meta, ':'); colon > 0 {
				started, _ = strconv.ParseInt(meta[:colon], 10, 64)
				duration, _ = strconv.ParseInt(meta[colon+1:], 10, 64)
			}
			return cmd, started, duration
		}
	}
	return line, 0, 0
}
