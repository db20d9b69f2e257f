package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Auth
	BibgestAPIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL      time.Duration
	StatsWindow time.Duration

	// Relator table; empty uses the embedded MARC list.
	RelatorsFile string

	// Batch parsing
	InputDirs    []string
	OutputPath   string
	ErrorLogPath string

	// Pathstore publishing
	Publish         bool
	PathstoreURL    string
	PathstoreAPIKey string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		BibgestAPIKey: os.Getenv("BIBGEST_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10485760), // 10MB

		JobTTL:      envDuration("JOB_TTL", 1*time.Hour),
		StatsWindow: envDuration("STATS_WINDOW", 1*time.Hour),

		RelatorsFile: os.Getenv("RELATORS_FILE"),

		InputDirs:    envList("INPUT_DIRS", []string{"./fpb/books"}),
		OutputPath:   envOr("OUTPUT_PATH", "./parser/fpb.json"),
		ErrorLogPath: envOr("ERROR_LOG_PATH", "./parser/fpb.log"),

		Publish:         envBool("PUBLISH", false),
		PathstoreURL:    envOr("PATHSTORE_URL", "http://localhost:8080"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10485760
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 1 * time.Hour
	}

	return cfg
}

// Validate checks the settings the HTTP service needs.
func (c Config) Validate() error {
	if c.BibgestAPIKey == "" {
		return fmt.Errorf("BIBGEST_API_KEY is required")
	}
	if c.Publish && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PUBLISH is set")
	}
	return nil
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

// envList splits a comma-separated value, dropping empty items.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
