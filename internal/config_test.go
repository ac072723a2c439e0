package internal

import (
	"log/slog"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should pass: %v", err)
	}
	if cfg.App.HTTP.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.App.HTTP.Port, DefaultPort)
	}
}

func TestHTTPConfig_PortBounds(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 should fail")
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("port 70000 should fail")
	}
	cfg.Port = 8080
	if err := cfg.Validate(); err != nil {
		t.Errorf("port 8080 should pass: %v", err)
	}
}

func TestHTTPConfig_AddressIsLoopback(t *testing.T) {
	cfg := HTTPConfig{Port: 43917}
	if got := cfg.Address(); got != "127.0.0.1:43917" {
		t.Errorf("address = %q", got)
	}
}

func TestQueueConfig_RequiresDBPath(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Queue.DBPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty queue db path should fail")
	}
}

func TestCaptureConfig_RequiresRootDir(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Capture.RootDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty root dir should fail")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CURSOR_TELEMETRY_PORT", "9000")
	t.Setenv("CURSOR_TELEMETRY_ROOT_DIR", "/tmp/project")
	t.Setenv("CURSOR_TELEMETRY_WORKSPACE_ID", "myws")
	t.Setenv("CURSOR_TELEMETRY_LOG_LEVEL", "debug")

	cfg := NewDefaultConfig()
	cfg.ApplyEnv()

	if cfg.App.HTTP.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.App.HTTP.Port)
	}
	if cfg.Capture.RootDir != "/tmp/project" {
		t.Errorf("root dir = %q", cfg.Capture.RootDir)
	}
	if cfg.Capture.WorkspaceID != "myws" {
		t.Errorf("workspace = %q", cfg.Capture.WorkspaceID)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
}

func TestApplyEnvIgnoresMalformedPort(t *testing.T) {
	t.Setenv("CURSOR_TELEMETRY_PORT", "not-a-port")

	cfg := NewDefaultConfig()
	cfg.ApplyEnv()
	if cfg.App.HTTP.Port != DefaultPort {
		t.Errorf("port = %d, want default %d", cfg.App.HTTP.Port, DefaultPort)
	}
}
