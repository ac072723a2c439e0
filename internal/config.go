package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultPort is the companion's well-known local port.
const DefaultPort = 43917

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Capture CaptureConfig     `yaml:"capture"`
	Queue   QueueConfig       `yaml:"queue"`
	Share   ShareConfig       `yaml:"share"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Capture.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	return c.Share.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address, bound to loopback only.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CaptureConfig configures the capture sources.
type CaptureConfig struct {
	RootDir              string   `yaml:"root_dir"`
	WorkspaceID          string   `yaml:"workspace_id"`
	Ignore               []string `yaml:"ignore"`
	PromptDBPath         string   `yaml:"prompt_db_path"`
	PromptSyncIntervalMs int      `yaml:"prompt_sync_interval_ms"`
	ClipboardRateMs      int      `yaml:"clipboard_rate_ms"`
	TerminalHistoryPath  string   `yaml:"terminal_history_path"`
	IDESampleIntervalMs  int      `yaml:"ide_sample_interval_ms"`
	ScreenshotDirs       []string `yaml:"screenshot_dirs"`
}

// Validate validates the capture configuration.
func (c *CaptureConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RootDir, validation.Required),
		validation.Field(&c.PromptSyncIntervalMs, validation.Min(0)),
		validation.Field(&c.ClipboardRateMs, validation.Min(0)),
		validation.Field(&c.IDESampleIntervalMs, validation.Min(0)),
	)
}

// QueueConfig bounds the sequencer and names its database.
type QueueConfig struct {
	MaxItems      int    `yaml:"max_items"`
	MaxAgeMs      int64  `yaml:"max_age_ms"`
	InflightCap   int    `yaml:"inflight_cap"`
	DedupWindowMs int64  `yaml:"dedup_window_ms"`
	DBPath        string `yaml:"db_path"`
}

// Validate validates the queue configuration.
func (c *QueueConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxItems, validation.Min(0)),
		validation.Field(&c.MaxAgeMs, validation.Min(int64(0))),
		validation.Field(&c.InflightCap, validation.Min(0)),
		validation.Field(&c.DBPath, validation.Required),
	)
}

// ShareConfig names the share-link database.
type ShareConfig struct {
	DBPath            string `yaml:"db_path"`
	CleanupIntervalMs int64  `yaml:"cleanup_interval_ms"`
}

// Validate validates the share configuration.
func (c *ShareConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.CleanupIntervalMs, validation.Min(int64(0))),
	)
}

// ApplyEnv overlays CURSOR_TELEMETRY_* environment variables over the
// loaded file values. Unknown or malformed values are ignored with a
// warning rather than failing startup.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CURSOR_TELEMETRY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.App.HTTP.Port = port
		} else {
			slog.Warn("ignoring malformed CURSOR_TELEMETRY_PORT", slog.String("value", v))
		}
	}
	if v := os.Getenv("CURSOR_TELEMETRY_ROOT_DIR"); v != "" {
		c.Capture.RootDir = v
	}
	if v := os.Getenv("CURSOR_TELEMETRY_WORKSPACE_ID"); v != "" {
		c.Capture.WorkspaceID = v
	}
	if v := os.Getenv("CURSOR_TELEMETRY_PROMPT_DB"); v != "" {
		c.Capture.PromptDBPath = v
	}
	if v := os.Getenv("CURSOR_TELEMETRY_SCREENSHOT_DIRS"); v != "" {
		c.Capture.ScreenshotDirs = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("CURSOR_TELEMETRY_LOG_LEVEL"); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			c.App.LogLevel = level
		} else {
			slog.Warn("ignoring malformed CURSOR_TELEMETRY_LOG_LEVEL", slog.String("value", v))
		}
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".cursor-telemetry")
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: DefaultPort,
			},
		},
		Capture: CaptureConfig{
			RootDir:              ".",
			Ignore:               []string{"**/node_modules/**", "**/.git/**", "**/dist/**"},
			PromptSyncIntervalMs: 30_000,
			ClipboardRateMs:      2_000,
			IDESampleIntervalMs:  5_000,
			ScreenshotDirs:       []string{filepath.Join(home, "Desktop"), filepath.Join(home, "Pictures")},
		},
		Queue: QueueConfig{
			MaxItems:      200_000,
			MaxAgeMs:      7 * 24 * 60 * 60 * 1000,
			InflightCap:   1000,
			DedupWindowMs: 60_000,
			DBPath:        filepath.Join(dataDir, "queue.db"),
		},
		Share: ShareConfig{
			DBPath:            filepath.Join(dataDir, "share.db"),
			CleanupIntervalMs: 60 * 60 * 1000,
		},
	}
}
