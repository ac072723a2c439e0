package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/atotto/clipboard"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

// Emissions are rate-limited regardless of the configured poll interval.
const clipboardMinInterval = 500 * time.Millisecond

// ClipboardMonitor polls the platform clipboard and emits a clipboard
// event only when the text differs from the last seen value.
type ClipboardMonitor struct {
	counters
	interval time.Duration
	submit   Submitter
	logger   *slog.Logger

	lastText string
	lastEmit time.Time
}

// NewClipboardMonitor creates the monitor; interval below 500ms is raised
// to the floor.
func NewClipboardMonitor(interval time.Duration, submit Submitter, logger *slog.Logger) *ClipboardMonitor {
	if interval < clipboardMinInterval {
		interval = clipboardMinInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClipboardMonitor{interval: interval, submit: submit, logger: logger}
}

func (c *ClipboardMonitor) Name() string       { return "clipboard" }
func (c *ClipboardMonitor) Stats() Stats       { return c.snapshot(c.Name()) }
func (c *ClipboardMonitor) IsMonitoring() bool { return c.monitoring.Load() }

// Run polls until ctx is cancelled. Clipboard access failures (headless
// hosts, locked sessions) are counted and retried, never fatal.
func (c *ClipboardMonitor) Run(ctx context.Context) error {
	// Seed with the current content so startup does not replay whatever
	// was copied before the companion launched.
	if text, err := clipboard.ReadAll(); err == nil {
		c.lastText = text
	}

	c.monitoring.Store(true)
	defer c.monitoring.Store(false)
	c.logger.Info("clipboard monitor: started", slog.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("clipboard monitor: stopped")
			return nil
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *ClipboardMonitor) pollOnce() {
	text, err := clipboard.ReadAll()
	if err != nil {
		c.errors.Add(1)
		return
	}
	if text == "" || text == c.lastText {
		return
	}
	if time.Since(c.lastEmit) < clipboardMinInterval {
		return
	}
	c.lastText = text
	c.lastEmit = time.Now()

	preview := text
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	_, err = c.submit.SubmitEvent(&telemetry.Event{
		ID:   telemetry.NewID(),
		Type: telemetry.EventClipboard,
		Details: map[string]any{
			"preview": preview,
			"length":  len(text),
		},
	})
	if err != nil {
		c.errors.Add(1)
		return
	}
	c.captureOK()
}
