package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/go-wdl/wdlrun/common/config"
	"github.com/go-wdl/wdlrun/common/logger"
	"github.com/go-wdl/wdlrun/internal/backend"
	"github.com/go-wdl/wdlrun/internal/cache"
	"github.com/go-wdl/wdlrun/internal/director"
	"github.com/go-wdl/wdlrun/internal/download"
	"github.com/go-wdl/wdlrun/internal/task"
)

// Components holds every host-wide dependency a wdlrun invocation needs:
// config, logger, the selected container backend, the resource-admission
// budget, host-wide task.Defaults, and the optional call/download caches
// and run-history ledger. The program-specific task.Runner (which needs an
// eval.Evaluator built against one run's ast.Program) is assembled by the
// caller from these fields, since Setup only ever sees host-wide
// configuration, not any particular workflow.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	Backend   backend.Backend
	Admission task.Admitter
	Defaults  task.Defaults
	Cache     *cache.Cache    // nil when the call cache is disabled
	Download  *download.Cache // nil when the download cache is disabled
	History   director.History

	redisClient  *redis.Client
	cleanupFuncs []func() error
}

// Shutdown runs every registered cleanup in LIFO order, collecting (not
// short-circuiting on) individual failures.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")
	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	c.Logger.Info("shutdown complete")
	return nil
}

func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
