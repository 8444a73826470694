package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var keys = []string{
	"PORT", "DOCEXTRACT_API_KEY", "MAX_UPLOAD_BYTES", "EXTRACT_TIMEOUT",
	"HEADING_SCAN_PAGES", "OUTLINE_FALLTHROUGH", "SKIP_FAILED_PAGES",
	"REFLOW_BLOCKS_PER_PAGE", "WORKER_COUNT", "MAX_QUEUE_SIZE", "JOB_TTL", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.Port != "8090" {
		t.Errorf("expected port 8090, got %q", cfg.Port)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Errorf("expected 50 MiB limit, got %d", cfg.MaxUploadBytes)
	}
	if cfg.ExtractTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.ExtractTimeout)
	}
	if cfg.HeadingScanPages != 20 {
		t.Errorf("expected 20 scan pages, got %d", cfg.HeadingScanPages)
	}
	if cfg.OutlineFallthrough {
		t.Error("expected outline fallthrough off by default")
	}
	if !cfg.SkipFailedPages {
		t.Error("expected failed pages to be skipped by default")
	}
	if cfg.WorkerCount != 2 || cfg.MaxQueueSize != 16 {
		t.Errorf("expected 2 workers and queue 16, got %d and %d", cfg.WorkerCount, cfg.MaxQueueSize)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.JobTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("EXTRACT_TIMEOUT", "5s")
	t.Setenv("OUTLINE_FALLTHROUGH", "true")
	t.Setenv("WORKER_COUNT", "-3")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %q", cfg.Port)
	}
	if cfg.ExtractTimeout != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.ExtractTimeout)
	}
	if !cfg.OutlineFallthrough {
		t.Error("expected outline fallthrough enabled")
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("expected non-positive worker count to reset to 2, got %d", cfg.WorkerCount)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Errorf("expected invalid value to fall back, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")

	path := filepath.Join(t.TempDir(), "docextract.yaml")
	body := "extract_timeout: 2m\nheading_scan_pages: 5\nskip_failed_pages: false\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ExtractTimeout != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.ExtractTimeout)
	}
	if cfg.HeadingScanPages != 5 {
		t.Errorf("expected 5 scan pages, got %d", cfg.HeadingScanPages)
	}
	if cfg.SkipFailedPages {
		t.Error("expected skip_failed_pages false from file")
	}
	if cfg.Port != "9000" {
		t.Errorf("expected env port to survive, got %q", cfg.Port)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.SlogLevel())
	}
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("worker_count: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{LogLevel: "info"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without API key")
	}
	cfg.APIKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
	cfg.LogLevel = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log level")
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("expected info fallback, got %v", cfg.SlogLevel())
	}
}
