// Package bootstrap assembles wdlrun's reusable, process-wide components
// (config, logger, container backend, resource admission, call cache,
// download cache, run history) in the dependency order spec.md §6.2
// documents, mirroring the teacher's own Setup/Components/Option shape but
// wired to wdlrun's domain types instead of a generic service's
// DB/queue/cache/telemetry stack.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/go-wdl/wdlrun/common/config"
	"github.com/go-wdl/wdlrun/common/logger"
	"github.com/go-wdl/wdlrun/common/ratelimit"
	"github.com/go-wdl/wdlrun/internal/backend"
	"github.com/go-wdl/wdlrun/internal/cache"
	"github.com/go-wdl/wdlrun/internal/director"
	"github.com/go-wdl/wdlrun/internal/download"
	"github.com/go-wdl/wdlrun/internal/task"
)

// Setup assembles Components in order: config, logger, backend, resource
// admission (local, or Redis-distributed when Resources.RedisURL is set),
// call cache, download cache, run history.
func Setup(ctx context.Context, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := &Components{cleanupFuncs: make([]func() error, 0)}

	var err error
	if options.customConfig != nil {
		c.Config = options.customConfig
	} else {
		c.Config, err = config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if options.customLogger != nil {
		c.Logger = options.customLogger
	} else {
		c.Logger = logger.New(c.Config.Service.LogLevel, c.Config.Service.LogFormat)
	}

	if !options.skipBackend {
		c.Logger.Info("selecting container backend", "kind", c.Config.Backend.Kind)
		c.Backend, err = newBackend(c.Config.Backend.Kind)
		if err != nil {
			return nil, fmt.Errorf("select container backend: %w", err)
		}
	}

	if !options.skipAdmission {
		if c.Config.Resources.RedisURL != "" {
			c.Logger.Info("initializing distributed resource admission",
				"redis", c.Config.Resources.RedisURL, "pool", c.Config.Resources.AdmissionPool)
			c.redisClient = redis.NewClient(&redis.Options{Addr: c.Config.Resources.RedisURL})
			if err := c.redisClient.Ping(ctx).Err(); err != nil {
				return nil, fmt.Errorf("connect admission redis: %w", err)
			}
			c.addCleanup(func() error { return c.redisClient.Close() })
			limiter := ratelimit.NewLimiter(c.redisClient, c.Logger, c.Config.Resources.AdmissionPool)
			c.Admission = task.NewDistributedAdmission(limiter, c.Config.Resources.CPUCores, c.Config.Resources.MemoryBytes)
		} else {
			c.Logger.Info("initializing local resource admission",
				"cpu_cores", c.Config.Resources.CPUCores, "memory_bytes", c.Config.Resources.MemoryBytes)
			c.Admission = task.NewAdmission(c.Config.Resources.CPUCores, c.Config.Resources.MemoryBytes, c.Logger.Warn)
		}
	}

	c.Defaults = task.Defaults{
		DockerImage:    c.Config.Backend.DefaultImage,
		CPU:            c.Config.Resources.CPUCores,
		MemoryBytes:    c.Config.Resources.MemoryBytes,
		CopyInputFiles: c.Config.Run.CopyInputFiles,
	}

	if !options.skipCache && c.Config.Cache.Enabled {
		c.Logger.Info("initializing call cache", "dir", c.Config.Cache.Dir)
		c.Cache, err = cache.New(ctx, cache.Options{
			Dir:         c.Config.Cache.Dir,
			Get:         true,
			Put:         true,
			DatabaseURL: c.Config.Cache.PostgresURL,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize call cache: %w", err)
		}
		c.addCleanup(func() error { return c.Cache.Close() })
	}

	if !options.skipDownload && c.Config.Download.Enabled {
		c.Logger.Info("initializing download cache", "dir", c.Config.Download.Dir)
		c.Download, err = download.NewCache(c.Config.Download.Dir)
		if err != nil {
			return nil, fmt.Errorf("initialize download cache: %w", err)
		}
	}

	if !options.skipHistory {
		c.History, err = director.NewHistory(ctx, c.Config.Run.HistoryPostgresURL)
		if err != nil {
			return nil, fmt.Errorf("initialize run history: %w", err)
		}
		c.addCleanup(func() error { c.History.Close(); return nil })
	}

	return c, nil
}

// MustSetup is like Setup but panics on error.
func MustSetup(ctx context.Context, opts ...Option) *Components {
	c, err := Setup(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("bootstrap: %v", err))
	}
	return c
}

func newBackend(kind string) (backend.Backend, error) {
	switch kind {
	case "docker":
		return backend.NewDockerSwarmBackend()
	case "podman":
		return backend.NewPodmanBackend()
	case "singularity":
		return backend.NewSingularityBackend()
	case "udocker":
		return backend.NewUdockerBackend()
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}
