package source

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const screenshotRescanInterval = time.Minute

var screenshotExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".webp": {}, ".svg": {}, ".bmp": {},
}

// ScreenshotMonitor indexes image files in the configured directories.
// Only metadata is held; bytes stay on disk. Paths outside the user home
// directory are never indexed or returned.
type ScreenshotMonitor struct {
	counters
	dirs    []string
	homeDir string
	logger  *slog.Logger

	mu      sync.RWMutex
	records []telemetry.ScreenshotRecord // sorted by timestamp ascending
}

// NewScreenshotMonitor indexes dirs. Directories outside homeDir are
// dropped at construction.
func NewScreenshotMonitor(dirs []string, homeDir string, logger *slog.Logger) *ScreenshotMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &ScreenshotMonitor{homeDir: filepath.Clean(homeDir), logger: logger}
	for _, d := range dirs {
		if m.underHome(d) {
			m.dirs = append(m.dirs, d)
		} else {
			logger.Warn("screenshot monitor: dir outside home ignored", slog.String("dir", d))
		}
	}
	return m
}

func (m *ScreenshotMonitor) Name() string       { return "screenshot" }
func (m *ScreenshotMonitor) Stats() Stats       { return m.snapshot(m.Name()) }
func (m *ScreenshotMonitor) IsMonitoring() bool { return m.monitoring.Load() }

// Run rescans periodically until ctx is cancelled.
func (m *ScreenshotMonitor) Run(ctx context.Context) error {
	m.rescan()

	m.monitoring.Store(true)
	defer m.monitoring.Store(false)
	m.logger.Info("screenshot monitor: started", slog.Int("dirs", len(m.dirs)))

	ticker := time.NewTicker(screenshotRescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("screenshot monitor: stopped")
			return nil
		case <-ticker.C:
			m.rescan()
		}
	}
}

func (m *ScreenshotMonitor) rescan() {
	var records []telemetry.ScreenshotRecord
	for _, dir := range m.dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if _, ok := screenshotExts[ext]; !ok {
				return nil
			}
			if !m.underHome(path) {
				return nil
			}
			info, infoErr := d.Info()
			if infoErr != nil {
				return nil
			}
			records = append(records, telemetry.ScreenshotRecord{
				Path:      path,
				Timestamp: info.ModTime().UnixMilli(),
				SizeBytes: info.Size(),
			})
			return nil
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })

	m.mu.Lock()
	grew := len(records) > len(m.records)
	m.records = records
	m.mu.Unlock()

	if grew {
		m.captureOK()
	}
}

// Recent returns the n newest screenshots, newest first.
func (m *ScreenshotMonitor) Recent(n int) []telemetry.ScreenshotRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.records) {
		n = len(m.records)
	}
	out := make([]telemetry.ScreenshotRecord, 0, n)
	for i := len(m.records) - 1; i >= len(m.records)-n; i-- {
		out = append(out, m.records[i])
	}
	return out
}

// InRange returns screenshots with start <= timestamp <= end, oldest first.
func (m *ScreenshotMonitor) InRange(start, end int64) []telemetry.ScreenshotRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []telemetry.ScreenshotRecord{}
	for _, r := range m.records {
		if r.Timestamp >= start && r.Timestamp <= end {
			out = append(out, r)
		}
	}
	return out
}

// NearTime returns screenshots within windowMs of t, closest first.
func (m *ScreenshotMonitor) NearTime(t, windowMs int64) []telemetry.ScreenshotRecord {
	out := m.InRange(t-windowMs, t+windowMs)
	sort.Slice(out, func(i, j int) bool {
		di := out[i].Timestamp - t
		if di < 0 {
			di = -di
		}
		dj := out[j].Timestamp - t
		if dj < 0 {
			dj = -dj
		}
		return di < dj
	})
	return out
}

// Count returns the number of indexed screenshots.
func (m *ScreenshotMonitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *ScreenshotMonitor) underHome(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)
	return abs == m.homeDir || strings.HasPrefix(abs, m.homeDir+string(filepath.Separator))
}
