// Package task drives one Call instance's execution against a container
// backend: the 8-phase attempt lifecycle of spec.md §4.J (setup, staging,
// image preparation, command assembly, execution, termination, output
// collection, failure/retry), CPU/memory admission, and retry bookkeeping.
package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/backend"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/graph"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Logger is the minimal structured-logging capability the runner needs,
// satisfied by *common/logger.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Runner executes attempts for one Call against a single configured
// backend, gated by a shared Admitter budget (an in-process *Admission or
// a Redis-backed *DistributedAdmission — Runner never branches on which).
type Runner struct {
	Backend   backend.Backend
	Admission Admitter
	Evaluator *eval.Evaluator
	Defaults  Defaults
	Logger    Logger

	// PlaceholderRegex, if set, is applied to every command placeholder's
	// rendered value (spec.md §4.J step 4's security guard).
	PlaceholderRegex string
	// PollInterval governs how often the backend is polled for completion.
	PollInterval time.Duration
}

// Result is the outcome of a fully-resolved (possibly retried) call
// invocation.
type Result struct {
	Outputs  map[string]values.Value
	ExitCode int
	Attempts int
	WorkDir  string
}

// CallContext bundles the per-invocation directories the runner needs,
// matching spec.md §6.3's run directory layout.
type CallContext struct {
	// CallDir is the call's own directory, e.g. RUNDIR/call-NAME[-IDX].
	// Its work/, work2/, ... children are each attempt's cwd.
	CallDir string
	// WriteDir is the run-level write_/ directory shared by every call's
	// expression-evaluation side effects (write_lines, write_json, ...).
	WriteDir string
	Stager   FileStager
	// CancelRequested reports whether the enclosing state machine has
	// asked this attempt to stop (spec.md §5 cooperative cancellation).
	CancelRequested func() bool
}

// Run executes a task call to completion, making up to
// runtime.maxRetries+1 attempts (spec.md §4.J step 8), and returns its
// resolved outputs or a TaskFailure error once retries are exhausted.
func (r *Runner) Run(ctx context.Context, t *ast.Task, call *ast.Call, callEnv *env.Env, cc CallContext) (*Result, error) {
	ra, err := evalRuntime(t, callEnv, r.Evaluator, r.Defaults, nil)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= ra.MaxRetries; attempt++ {
		if cc.CancelRequested != nil && cc.CancelRequested() {
			return nil, errs.New(errs.KindInterrupted, t.Pos, "call %s cancelled before attempt %d", call.Alias, attempt+1)
		}

		attemptDir := r.attemptDir(cc.CallDir, attempt)
		res, err := r.runAttempt(ctx, t, call, callEnv, cc, ra, attemptDir, attempt)
		if err == nil {
			res.Attempts = attempt + 1
			return res, nil
		}
		lastErr = err
		if r.Logger != nil {
			r.Logger.Warn("task attempt failed", "call", call.Alias, "attempt", attempt+1, "error", err)
		}
	}
	return nil, errs.Wrap(errs.KindTaskFailure, lastErr, "call %s: exhausted %d attempt(s)", call.Alias, ra.MaxRetries+1)
}

// attemptDir names the per-attempt cwd: work/ for the first attempt,
// work2/, work3/, ... for retries, each preserved after the run (spec.md
// §6.3).
func (r *Runner) attemptDir(callDir string, attempt int) string {
	if attempt == 0 {
		return filepath.Join(callDir, "work")
	}
	return filepath.Join(callDir, fmt.Sprintf("work%d", attempt+1))
}

func (r *Runner) runAttempt(ctx context.Context, t *ast.Task, call *ast.Call, callEnv *env.Env, cc CallContext, ra RuntimeAttrs, cwd string, attempt int) (*Result, error) {
	// Phase 1: Setup.
	if err := os.MkdirAll(cwd, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "create attempt directory %s", cwd)
	}
	stdoutPath := filepath.Join(cc.CallDir, "stdout.txt")
	stderrPath := filepath.Join(cc.CallDir, "stderr.txt")
	paths := NewAttemptPaths(cwd, cc.WriteDir, stdoutPath, stderrPath, cc.Stager)

	taskGraph, err := graph.BuildTask(t)
	if err != nil {
		return nil, err
	}
	bound, err := r.bindTaskDecls(taskGraph, t, callEnv, paths)
	if err != nil {
		return nil, err
	}

	// Phase 2: Staging.
	mounts, stagedEnv, err := stageFiles(t, bound, cwd, ra.CopyInputFiles)
	if err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "staging")
	}

	// Phase 3: Image preparation.
	img, err := r.Backend.PrepareImage(ctx, ra.Docker)
	if err != nil {
		return nil, errs.Wrap(errs.KindTaskFailure, err, "prepare image %s", ra.Docker)
	}

	// Phase 4: Command assembly.
	cmdScript, err := AssembleCommand(t, stagedEnv, r.Evaluator, paths, r.PlaceholderRegex)
	if err != nil {
		return nil, err
	}
	scriptPath := filepath.Join(cwd, ".command.sh")
	if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\nset -e\n"+cmdScript+"\n"), 0o755); err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "write command script")
	}

	reservation, err := r.Admission.Acquire(ctx, ra.CPU, ra.MemoryBytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindTaskFailure, err, "resource admission")
	}
	defer reservation.Release(ctx)

	// Phase 5: Execution.
	runSpec := backend.RunSpec{
		Image:       img,
		Cwd:         cwd,
		Mounts:      mounts,
		Env:         envInputs(t, bound),
		CommandPath: scriptPath,
		CPU:         ra.CPU,
		MemoryBytes: ra.MemoryBytes,
		Privileged:  ra.Privileged,
	}
	handle, err := r.Backend.Run(ctx, runSpec)
	if err != nil {
		return nil, errs.Wrap(errs.KindTaskFailure, err, "submit container run")
	}

	// Phase 6: Termination (poll to completion).
	exitCode, err := r.poll(ctx, handle, cc)
	if err != nil {
		return nil, err
	}
	stdout, stderr, err := r.Backend.Logs(ctx, handle)
	if err != nil {
		return nil, errs.Wrap(errs.KindTaskFailure, err, "collect logs")
	}
	if err := os.WriteFile(paths.stdoutPath, stdout, 0o644); err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "write stdout.txt")
	}
	if err := os.WriteFile(paths.stderrPath, stderr, 0o644); err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "write stderr.txt")
	}

	if !ra.ReturnCodes.Accepts(exitCode) {
		e := errs.New(errs.KindTaskFailure, t.Pos, "call %s exited %d (attempt %d)", call.Alias, exitCode, attempt+1)
		e.ExitCode = exitCode
		return nil, e
	}

	// Phase 7: Output collection.
	outputs, err := r.collectOutputs(t, stagedEnv, paths)
	if err != nil {
		return nil, errs.Wrap(errs.KindTaskFailure, err, "output collection")
	}

	return &Result{Outputs: outputs, ExitCode: exitCode, WorkDir: cwd}, nil
}

// bindTaskDecls binds a task's input/intermediate declarations in
// dependency order (spec.md §4.J step 1), giving write_/ functions access
// to the attempt's PathMapper.
func (r *Runner) bindTaskDecls(g *graph.Graph, t *ast.Task, callEnv *env.Env, paths *AttemptPaths) (*env.Env, error) {
	en := callEnv
	for _, id := range g.IDs() {
		node, _ := g.Get(id)
		if node.Kind != graph.NodeDecl || strings.HasPrefix(id, "output-") {
			continue
		}
		if node.Decl.Expr == nil {
			// Task input: expect it to already be bound by the caller.
			if _, ok := en.Lookup(node.Name); ok {
				continue
			}
			return nil, errs.New(errs.KindInput, node.Pos, "missing required input %q", node.Name)
		}
		v, err := r.Evaluator.EvalDecl(node.Decl, en, paths)
		if err != nil {
			return nil, err
		}
		en = en.Bind(node.Name, v)
	}
	return en, nil
}

func (r *Runner) poll(ctx context.Context, h backend.RunHandle, cc CallContext) (int, error) {
	interval := r.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for {
		if cc.CancelRequested != nil && cc.CancelRequested() {
			_ = r.Backend.Kill(ctx, h)
			return 0, errs.New(errs.KindInterrupted, errs.Pos{}, "call cancelled")
		}
		res, err := r.Backend.Poll(ctx, h)
		if err != nil {
			return 0, errs.Wrap(errs.KindTaskFailure, err, "poll container")
		}
		if res.Status == backend.Exited {
			return res.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			_ = r.Backend.Kill(ctx, h)
			return 0, errs.Wrap(errs.KindInterrupted, ctx.Err(), "call cancelled")
		case <-time.After(interval):
		}
	}
}
