package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/similarity"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const (
	promptSyncDefaultInterval = 30 * time.Second
	promptBackoffBase         = time.Second
	promptBackoffCap          = 60 * time.Second
)

// atFileRe matches @file references inside prompt text.
var atFileRe = regexp.MustCompile(`@([\w./-]+\.\w+)`)

// PromptSync polls the external IDE state database and emits a
// prompt_created event for every prompt not seen before. The database
// belongs to the IDE and may be locked or missing at any time; failures
// back off exponentially and never stop the source.
type PromptSync struct {
	counters
	dbPath   string
	interval time.Duration
	submit   Submitter
	logger   *slog.Logger

	mu     sync.Mutex
	known  map[string]struct{}
	latest []telemetry.Prompt
}

// NewPromptSync creates the source. dbPath points at the IDE's state
// database (a SQLite file); interval <= 0 selects the 30s default.
func NewPromptSync(dbPath string, interval time.Duration, submit Submitter, logger *slog.Logger) *PromptSync {
	if interval <= 0 {
		interval = promptSyncDefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptSync{
		dbPath:   dbPath,
		interval: interval,
		submit:   submit,
		logger:   logger,
		known:    make(map[string]struct{}),
	}
}

func (p *PromptSync) Name() string       { return "prompt_sync" }
func (p *PromptSync) Stats() Stats       { return p.snapshot(p.Name()) }
func (p *PromptSync) IsMonitoring() bool { return p.monitoring.Load() }

// Prompts returns the prompts discovered in the most recent successful poll.
func (p *PromptSync) Prompts() []telemetry.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]telemetry.Prompt, len(p.latest))
	copy(out, p.latest)
	return out
}

// Run polls until ctx is cancelled.
func (p *PromptSync) Run(ctx context.Context) error {
	p.monitoring.Store(true)
	defer p.monitoring.Store(false)
	p.logger.Info("prompt sync: started", slog.String("db", p.dbPath))

	backoff := promptBackoffBase
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("prompt sync: stopped")
			return nil
		case <-timer.C:
		}

		if err := p.poll(ctx); err != nil {
			p.errors.Add(1)
			p.logger.Warn("prompt sync: poll failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff))
			timer.Reset(backoff)
			backoff *= 2
			if backoff > promptBackoffCap {
				backoff = promptBackoffCap
			}
			continue
		}
		backoff = promptBackoffBase
		timer.Reset(p.interval)
	}
}

func (p *PromptSync) poll(ctx context.Context) error {
	if _, err := os.Stat(p.dbPath); err != nil {
		return fmt.Errorf("ide db unavailable: %w", err)
	}

	// Read-only open so a locked writer on the IDE side cannot be harmed.
	conn, err := sql.Open("sqlite3", "file:"+p.dbPath+"?mode=ro&_busy_timeout=2000")
	if err != nil {
		return fmt.Errorf("open ide db: %w", err)
	}
	defer conn.Close()

	prompts, err := readPromptRows(ctx, conn)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.latest = prompts
	var fresh []telemetry.Prompt
	for _, pr := range prompts {
		if _, seen := p.known[pr.ID]; seen {
			continue
		}
		p.known[pr.ID] = struct{}{}
		fresh = append(fresh, pr)
	}
	p.mu.Unlock()

	for _, pr := range fresh {
		// The event id doubles as the prompt's stable identity so the
		// sequencer can deduplicate re-ingestion across restarts.
		ev := &telemetry.Event{
			ID:        pr.ID,
			Timestamp: pr.Timestamp,
			Type:      telemetry.EventPromptCreated,
			Details: map[string]any{
				"model_name":        pr.ModelName,
				"text":              pr.Text,
				"preview":           pr.Preview,
				"contextUsage":      pr.ContextUsage,
				"total_tokens":      pr.TotalTokens,
				"context_precision": pr.ContextPrecision,
				"context_files":     pr.ContextFiles,
			},
		}
		if _, err := p.submit.SubmitEvent(ev); err != nil {
			p.errors.Add(1)
			p.logger.Warn("prompt sync: submit failed", slog.String("id", pr.ID), slog.String("error", err.Error()))
			continue
		}
		p.captureOK()
	}
	return nil
}

// generationRow mirrors the IDE's aiService.generations JSON items.
type generationRow struct {
	GenerationUUID  string `json:"generationUUID"`
	UnixMs          int64  `json:"unixMs"`
	TextDescription string `json:"textDescription"`
	Type            string `json:"type"`
}

type promptRow struct {
	Text        string `json:"text"`
	CommandType int    `json:"commandType"`
}

// readPromptRows extracts prompts from the IDE's key-value ItemTable. Both
// the generations list (which carries stable ids and timestamps) and the
// raw prompts list are consulted; generations win when present.
func readPromptRows(ctx context.Context, conn *sql.DB) ([]telemetry.Prompt, error) {
	var out []telemetry.Prompt

	if raw, err := itemValue(ctx, conn, "aiService.generations"); err == nil && len(raw) > 0 {
		var gens []generationRow
		if err := json.Unmarshal(raw, &gens); err == nil {
			for _, g := range gens {
				if g.GenerationUUID == "" {
					continue
				}
				out = append(out, buildPrompt(g.GenerationUUID, g.UnixMs, g.Type, g.TextDescription))
			}
		}
	}

	if len(out) > 0 {
		return out, nil
	}

	raw, err := itemValue(ctx, conn, "aiService.prompts")
	if err != nil {
		return nil, err
	}
	var rows []promptRow
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("parse prompts: %w", err)
		}
	}
	for _, r := range rows {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		// No stable id in this list; hash the text so re-reads stay
		// idempotent.
		id := telemetry.ContentHash(r.Text)[:32]
		out = append(out, buildPrompt(id, 0, "", r.Text))
	}
	return out, nil
}

func itemValue(ctx context.Context, conn *sql.DB, key string) ([]byte, error) {
	var value []byte
	err := conn.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

func buildPrompt(id string, unixMs int64, model, text string) telemetry.Prompt {
	if unixMs == 0 {
		unixMs = telemetry.NowMillis()
	}
	pr := telemetry.Prompt{
		ID:           id,
		Timestamp:    unixMs,
		ModelName:    model,
		Text:         text,
		Preview:      previewOf(text),
		TotalTokens:  approxTokens(text),
		ContextFiles: contextFilesOf(text),
	}
	pr.ContextUsage = float64(pr.TotalTokens)
	pr.ContextPrecision = contextPrecision(pr.Text, pr.ContextFiles)
	return pr
}

func previewOf(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= 120 {
		return text
	}
	return text[:120] + "..."
}

// approxTokens is a whitespace-word estimate; the IDE does not expose its
// tokenizer counts.
func approxTokens(text string) int {
	return len(strings.Fields(text))
}

// contextFilesOf extracts @file references from the prompt text.
func contextFilesOf(text string) []string {
	var files []string
	seen := make(map[string]struct{})
	for _, m := range atFileRe.FindAllStringSubmatch(text, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		files = append(files, m[1])
	}
	return files
}

// contextPrecision measures how much of the prompt vocabulary overlaps the
// referenced file names: a rough signal of how targeted the context is.
func contextPrecision(text string, files []string) float64 {
	if len(files) == 0 {
		return 0
	}
	words := splitTerms(text)
	var fileTerms []string
	for _, f := range files {
		fileTerms = append(fileTerms, splitTerms(f)...)
	}
	return similarity.Jaccard(words, fileTerms)
}

func splitTerms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
