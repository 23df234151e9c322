package bootstrap

import (
	"github.com/go-wdl/wdlrun/common/config"
	"github.com/go-wdl/wdlrun/common/logger"
)

// Option configures the bootstrap process.
type Option func(*options)

type options struct {
	skipBackend   bool
	skipAdmission bool
	skipCache     bool
	skipDownload  bool
	skipHistory   bool
	customLogger  *logger.Logger
	customConfig  *config.Config
}

// WithoutBackend skips container backend selection, for commands (like
// input-template) that never run a task.
func WithoutBackend() Option {
	return func(o *options) { o.skipBackend = true }
}

// WithoutAdmission skips resource-admission setup.
func WithoutAdmission() Option {
	return func(o *options) { o.skipAdmission = true }
}

// WithoutCache skips call-cache initialization.
func WithoutCache() Option {
	return func(o *options) { o.skipCache = true }
}

// WithoutDownload skips download-cache initialization.
func WithoutDownload() Option {
	return func(o *options) { o.skipDownload = true }
}

// WithoutHistory skips run-history initialization.
func WithoutHistory() Option {
	return func(o *options) { o.skipHistory = true }
}

// WithCustomLogger uses a custom logger instead of creating one.
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) { o.customLogger = log }
}

// WithCustomConfig uses a custom config instead of loading from env.
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) { o.customConfig = cfg }
}

func defaultOptions() *options {
	return &options{}
}
