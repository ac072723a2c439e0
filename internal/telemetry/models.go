// Package telemetry defines the data model shared by the capture pipeline:
// entries (content-bearing change records), events (typed notifications),
// queued items, prompts, and screenshot records.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ItemKind discriminates queued items.
type ItemKind string

const (
	KindEntry ItemKind = "entry"
	KindEvent ItemKind = "event"
)

// ChangeType classifies a file change.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// Event types emitted by capture sources.
const (
	EventFileChange    = "file_change"
	EventCodeChange    = "code_change"
	EventTerminal      = "terminal"
	EventClipboard     = "clipboard"
	EventIDEState      = "ide_state"
	EventPromptCreated = "prompt_created"
	EventSessionStart  = "session_start"
	EventSessionEnd    = "session_end"
)

// Entry is a content-bearing record of a code change.
// Entries are immutable once queued.
type Entry struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id,omitempty"`
	WorkspaceID string     `json:"workspace_id,omitempty"`
	Timestamp   int64      `json:"timestamp"` // unix millis
	FilePath    string     `json:"file_path"`
	BeforeCode  string     `json:"before_code"`
	AfterCode   string     `json:"after_code"`
	ChangeType  ChangeType `json:"change_type"`
	Language    string     `json:"language,omitempty"`
	Source      string     `json:"source"`
	LinesAdded  int        `json:"lines_added"`
	LinesDeleted int       `json:"lines_deleted"`
	CharsAdded  int        `json:"chars_added"`
	CharsDeleted int       `json:"chars_deleted"`
}

// Event is a typed notification with a structured payload.
// Events are immutable once queued.
type Event struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id,omitempty"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Timestamp   int64          `json:"timestamp"` // unix millis
	Type        string         `json:"type"`
	Details     map[string]any `json:"details,omitempty"`
}

// QueuedItem is an entry or event tagged with its sequence number.
// Seq is monotonic, dense, and unique within a process lifetime.
type QueuedItem struct {
	Seq     uint64   `json:"seq"`
	Kind    ItemKind `json:"kind"`
	Entry   *Entry   `json:"entry,omitempty"`
	Event   *Event   `json:"event,omitempty"`
}

// Timestamp returns the payload timestamp in unix millis.
func (i QueuedItem) Timestamp() int64 {
	switch i.Kind {
	case KindEntry:
		if i.Entry != nil {
			return i.Entry.Timestamp
		}
	case KindEvent:
		if i.Event != nil {
			return i.Event.Timestamp
		}
	}
	return 0
}

// Prompt is an AI-assistant interaction read from the external IDE store.
// Re-ingestion is idempotent on ID.
type Prompt struct {
	ID               string  `json:"id"`
	Timestamp        int64   `json:"timestamp"`
	ModelName        string  `json:"model_name,omitempty"`
	Text             string  `json:"text"`
	Preview          string  `json:"preview,omitempty"`
	ContextUsage     float64 `json:"contextUsage,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	ContextPrecision float64 `json:"context_precision,omitempty"`
	ContextFiles     []string `json:"context_files,omitempty"`
}

// ScreenshotRecord is metadata for an on-disk screenshot; the bytes stay on
// disk.
type ScreenshotRecord struct {
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
	SizeBytes int64  `json:"size_bytes"`
}

// NewID returns a fresh random identifier for entries and events.
func NewID() string {
	return uuid.NewString()
}

// ContentHash is the stable key component used to deduplicate entries that
// carry the same after-state for the same path.
func ContentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// NowMillis returns the current time in unix millis, the timestamp unit used
// across the wire format.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
