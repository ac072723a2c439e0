package source

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const (
	// Rapid successive writes to the same path are coalesced.
	fileDebounce = 200 * time.Millisecond

	// Files larger than this are tracked as events only; their content is
	// not snapshotted.
	maxSnapshotBytes = 1 << 20
)

// FileWatcher observes root recursively and emits an Entry plus a
// file_change Event for every effective change.
type FileWatcher struct {
	counters
	root        string
	workspaceID string
	ignore      []string // doublestar globs, relative to root
	submit      Submitter
	logger      *slog.Logger

	mu        sync.Mutex
	snapshots map[string]string // rel path -> last seen content
	timers    map[string]*time.Timer
	ctx       context.Context
}

// NewFileWatcher creates a watcher over root. ignore holds glob patterns
// (relative to root) that are skipped in addition to git-internal paths.
func NewFileWatcher(root, workspaceID string, ignore []string, submit Submitter, logger *slog.Logger) *FileWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{
		root:        root,
		workspaceID: workspaceID,
		ignore:      ignore,
		submit:      submit,
		logger:      logger,
		snapshots:   make(map[string]string),
		timers:      make(map[string]*time.Timer),
	}
}

func (w *FileWatcher) Name() string       { return "file_watcher" }
func (w *FileWatcher) Stats() Stats       { return w.snapshot(w.Name()) }
func (w *FileWatcher) IsMonitoring() bool { return w.monitoring.Load() }

// Run watches until ctx is cancelled. New directories created at runtime
// are added to the watch list automatically.
func (w *FileWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirsRecursive(fw, w.root); err != nil {
		return err
	}

	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.seedSnapshots()

	w.monitoring.Store(true)
	defer w.monitoring.Store(false)
	w.logger.Info("file watcher: started", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			w.cancelTimers()
			w.logger.Info("file watcher: stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fw, ev)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.errors.Add(1)
			w.logger.Error("file watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *FileWatcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	abs := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			if addErr := w.addDirsRecursive(fw, abs); addErr != nil {
				w.logger.Warn("file watcher: add new dir failed",
					slog.String("path", abs),
					slog.String("error", addErr.Error()))
			}
			return
		}
	}

	rel, relErr := filepath.Rel(w.root, abs)
	if relErr != nil {
		return
	}
	if w.skip(rel) {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.debounced(rel, func() { w.capture(rel, "") })
	case ev.Op&fsnotify.Remove != 0:
		w.debounced(rel, func() { w.capture(rel, telemetry.ChangeDeleted) })
	case ev.Op&fsnotify.Rename != 0:
		// fsnotify fires Rename on the OLD path only; the new path
		// arrives as a separate Create.
		w.debounced(rel, func() { w.capture(rel, telemetry.ChangeRenamed) })
	}
}

// debounced schedules fn after the debounce interval, resetting any timer
// already pending for the same path.
func (w *FileWatcher) debounced(rel string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[rel]; ok {
		t.Stop()
	}
	w.timers[rel] = time.AfterFunc(fileDebounce, func() {
		w.mu.Lock()
		delete(w.timers, rel)
		ctx := w.ctx
		w.mu.Unlock()
		if ctx != nil && ctx.Err() != nil {
			return
		}
		fn()
	})
}

func (w *FileWatcher) cancelTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for rel, t := range w.timers {
		t.Stop()
		delete(w.timers, rel)
	}
}

// capture reads the file's current state, diffs it against the last
// snapshot, and emits an Entry plus a file_change Event.
func (w *FileWatcher) capture(rel string, forced telemetry.ChangeType) {
	abs := filepath.Join(w.root, rel)

	w.mu.Lock()
	before, hadSnapshot := w.snapshots[rel]
	w.mu.Unlock()

	var after string
	changeType := forced
	if forced == telemetry.ChangeDeleted || forced == telemetry.ChangeRenamed {
		if !hadSnapshot {
			return
		}
		w.mu.Lock()
		delete(w.snapshots, rel)
		w.mu.Unlock()
	} else {
		data, err := os.ReadFile(abs)
		if err != nil {
			if os.IsNotExist(err) {
				// Deleted between event and debounce fire.
				w.capture(rel, telemetry.ChangeDeleted)
				return
			}
			w.errors.Add(1)
			w.logger.Warn("file watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if len(data) > maxSnapshotBytes || bytes.IndexByte(data, 0) >= 0 {
			return
		}
		after = string(data)
		if after == before {
			return
		}
		if hadSnapshot {
			changeType = telemetry.ChangeModified
		} else {
			changeType = telemetry.ChangeCreated
		}
		w.mu.Lock()
		w.snapshots[rel] = after
		w.mu.Unlock()
	}

	entry := &telemetry.Entry{
		ID:          telemetry.NewID(),
		WorkspaceID: w.workspaceID,
		Timestamp:   telemetry.NowMillis(),
		FilePath:    rel,
		BeforeCode:  before,
		AfterCode:   after,
		ChangeType:  changeType,
		Language:    telemetry.LanguageForPath(rel),
		Source:      w.Name(),
	}
	diffStats(entry)

	if _, err := w.submit.SubmitEntry(entry); err != nil {
		w.errors.Add(1)
		w.logger.Warn("file watcher: submit entry failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	_, err := w.submit.SubmitEvent(&telemetry.Event{
		ID:          telemetry.NewID(),
		WorkspaceID: w.workspaceID,
		Timestamp:   entry.Timestamp,
		Type:        telemetry.EventFileChange,
		Details: map[string]any{
			"file_path":   rel,
			"change_type": string(changeType),
			"language":    entry.Language,
		},
	})
	if err != nil {
		w.errors.Add(1)
		w.logger.Warn("file watcher: submit event failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.captureOK()
}

// skip filters git-internal paths and configured ignore globs before
// anything reaches the sequencer.
func (w *FileWatcher) skip(rel string) bool {
	if IsGitInternalPath(rel) {
		return true
	}
	norm := filepath.ToSlash(rel)
	for _, pat := range w.ignore {
		if ok, _ := doublestar.Match(pat, norm); ok {
			return true
		}
	}
	return false
}

// seedSnapshots records the initial content of watched files so that the
// first modification after startup produces a correct before-state.
func (w *FileWatcher) seedSnapshots() {
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasSuffix(path, string(os.PathSeparator)+".git") || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil || w.skip(rel) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > maxSnapshotBytes {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || bytes.IndexByte(data, 0) >= 0 {
			return nil
		}
		w.mu.Lock()
		w.snapshots[rel] = string(data)
		w.mu.Unlock()
		return nil
	})
}

func (w *FileWatcher) addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return fw.Add(path)
		}
		return nil
	})
}

// diffStats fills the derived line/char deltas on an entry.
func diffStats(e *telemetry.Entry) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(e.BeforeCode, e.AfterCode, false)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			e.CharsAdded += len(d.Text)
			e.LinesAdded += strings.Count(d.Text, "\n")
		case diffmatchpatch.DiffDelete:
			e.CharsDeleted += len(d.Text)
			e.LinesDeleted += strings.Count(d.Text, "\n")
		}
	}
}
