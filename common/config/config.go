// Package config loads wdlrun's runtime configuration from environment
// variables (spec.md §6.2), following the teacher's own env-var-only
// convention (getEnv/getEnvInt/getEnvBool/getEnvDuration helpers, no
// third-party config library) rather than introducing one the teacher
// itself never reached for.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	stdos "os"
)

// Config holds every runtime option spec.md §6.2 documents: container
// backend choice, default image, CPU/memory budget, call-cache and
// download-cache settings, fail-fast/fail-slow, copy-input-files default,
// and the command placeholder-escaping regex.
type Config struct {
	Service  ServiceConfig
	Backend  BackendConfig
	Resources ResourceConfig
	Cache    CacheConfig
	Download DownloadConfig
	Run      RunConfig
}

// ServiceConfig holds ambient logging settings.
type ServiceConfig struct {
	LogLevel  string
	LogFormat string
}

// BackendConfig selects the container backend (internal/backend) and its
// default image (spec.md §4.K).
type BackendConfig struct {
	Kind         string // "docker", "podman", "singularity", "udocker"
	DefaultImage string
}

// ResourceConfig is the host-wide CPU/memory admission budget (spec.md
// §4.J "Resource admission", §5), optionally coordinated across hosts via
// Redis.
type ResourceConfig struct {
	CPUCores    float64
	MemoryBytes int64
	RedisURL    string // empty: local in-process semaphore only
	AdmissionPool string
}

// CacheConfig configures the call cache (spec.md §4.L).
type CacheConfig struct {
	Enabled bool
	Dir     string
	PostgresURL string // empty: filesystem store only, no Postgres index
}

// DownloadConfig configures the download orchestrator (spec.md §4.M).
type DownloadConfig struct {
	Enabled bool
	Dir     string
	IncludeGlobs []string
	ExcludeGlobs []string
	RedisURL string // empty: no cross-host coordination on the download cache
}

// RunConfig holds per-run defaults (spec.md §5/§4.J).
type RunConfig struct {
	FailFast          bool
	CopyInputFiles    bool
	PlaceholderRegex  string
	HistoryPostgresURL string // empty: no run-history ledger
}

// Load reads Config from the environment, applying spec.md §6.2's
// documented defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			LogLevel:  getEnv("WDLRUN__SERVICE__LOG_LEVEL", "info"),
			LogFormat: getEnv("WDLRUN__SERVICE__LOG_FORMAT", "text"),
		},
		Backend: BackendConfig{
			Kind:         getEnv("WDLRUN__BACKEND__KIND", "docker"),
			DefaultImage: getEnv("WDLRUN__BACKEND__DEFAULT_IMAGE", "ubuntu:20.04"),
		},
		Resources: ResourceConfig{
			CPUCores:      getEnvFloat("WDLRUN__RESOURCES__CPU_CORES", 4),
			MemoryBytes:   getEnvInt64("WDLRUN__RESOURCES__MEMORY_BYTES", 8<<30),
			RedisURL:      getEnv("WDLRUN__RESOURCES__REDIS_URL", ""),
			AdmissionPool: getEnv("WDLRUN__RESOURCES__ADMISSION_POOL", "default"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("WDLRUN__CACHE__ENABLED", true),
			Dir:         getEnv("WDLRUN__CACHE__DIR", ".wdlrun/cache"),
			PostgresURL: getEnv("WDLRUN__CACHE__POSTGRES_URL", ""),
		},
		Download: DownloadConfig{
			Enabled:      getEnvBool("WDLRUN__DOWNLOAD__ENABLED", true),
			Dir:          getEnv("WDLRUN__DOWNLOAD__DIR", ".wdlrun/download-cache"),
			IncludeGlobs: getEnvSlice("WDLRUN__DOWNLOAD__INCLUDE", nil),
			ExcludeGlobs: getEnvSlice("WDLRUN__DOWNLOAD__EXCLUDE", nil),
			RedisURL:     getEnv("WDLRUN__DOWNLOAD__REDIS_URL", ""),
		},
		Run: RunConfig{
			FailFast:           getEnvBool("WDLRUN__RUN__FAIL_FAST", true),
			CopyInputFiles:     getEnvBool("WDLRUN__RUN__COPY_INPUT_FILES", false),
			PlaceholderRegex:   getEnv("WDLRUN__RUN__PLACEHOLDER_REGEX", ""),
			HistoryPostgresURL: getEnv("WDLRUN__RUN__HISTORY_POSTGRES_URL", ""),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects configuration combinations that would only surface as a
// confusing failure deep inside internal/director.
func (c *Config) Validate() error {
	if c.Resources.CPUCores <= 0 {
		return fmt.Errorf("resources.cpu_cores must be > 0, got %v", c.Resources.CPUCores)
	}
	if c.Resources.MemoryBytes <= 0 {
		return fmt.Errorf("resources.memory_bytes must be > 0, got %d", c.Resources.MemoryBytes)
	}
	switch c.Backend.Kind {
	case "docker", "podman", "singularity", "udocker":
	default:
		return fmt.Errorf("backend.kind %q is not one of docker/podman/singularity/udocker", c.Backend.Kind)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := stdos.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := stdos.Getenv(key); value != "" {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := stdos.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := stdos.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := stdos.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvSlice parses a comma-separated env var into a slice, trimming
// whitespace around each element; an unset or empty var yields defaultValue.
func getEnvSlice(key string, defaultValue []string) []string {
	value := stdos.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p := strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
