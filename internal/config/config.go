package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Extraction
	ExtractTimeout     time.Duration `yaml:"extract_timeout"`
	HeadingScanPages   int           `yaml:"heading_scan_pages"`
	OutlineFallthrough bool          `yaml:"outline_fallthrough"`
	SkipFailedPages    bool          `yaml:"skip_failed_pages"`
	BlocksPerPage      int           `yaml:"reflow_blocks_per_page"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	LogLevel string `yaml:"log_level"`
}

const (
	defaultMaxUploadBytes   = 52428800 // 50MB
	defaultExtractTimeout   = 30 * time.Second
	defaultHeadingScanPages = 20
	defaultBlocksPerPage    = 40
	defaultWorkerCount      = 2
	defaultMaxQueueSize     = 16
	defaultJobTTL           = 30 * time.Minute
)

// Load reads configuration from the environment.
func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("DOCEXTRACT_API_KEY"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),

		ExtractTimeout:     envDuration("EXTRACT_TIMEOUT", defaultExtractTimeout),
		HeadingScanPages:   envInt("HEADING_SCAN_PAGES", defaultHeadingScanPages),
		OutlineFallthrough: envBool("OUTLINE_FALLTHROUGH", false),
		SkipFailedPages:    envBool("SKIP_FAILED_PAGES", true),
		BlocksPerPage:      envInt("REFLOW_BLOCKS_PER_PAGE", defaultBlocksPerPage),

		WorkerCount:  envInt("WORKER_COUNT", defaultWorkerCount),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", defaultMaxQueueSize),

		JobTTL: envDuration("JOB_TTL", defaultJobTTL),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}
	cfg.applyDefaults()
	return cfg
}

// LoadFile loads the environment and then overlays the YAML file at path.
// Keys absent from the file keep their environment or default values.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8090"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = defaultExtractTimeout
	}
	if c.HeadingScanPages <= 0 {
		c.HeadingScanPages = defaultHeadingScanPages
	}
	if c.BlocksPerPage <= 0 {
		c.BlocksPerPage = defaultBlocksPerPage
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = defaultWorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaultMaxQueueSize
	}
	if c.JobTTL <= 0 {
		c.JobTTL = defaultJobTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the settings the HTTP server needs.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCEXTRACT_API_KEY is required")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level, falling back to info.
func (c Config) SlogLevel() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
	return lvl, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
