package director

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/cache"
	"github.com/go-wdl/wdlrun/internal/download"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/graph"
	"github.com/go-wdl/wdlrun/internal/state"
	"github.com/go-wdl/wdlrun/internal/task"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Director drives one workflow invocation end to end (spec.md §4.N): it
// owns the run directory, alternates internal/state.Step with dispatching
// Ready Call instances to internal/task (resolving URI inputs through
// internal/download.Orchestrator's FileStager and short-circuiting through
// internal/cache where possible), and renders the final artifacts.
type Director struct {
	Layout   *Layout
	Graph    *graph.Graph
	Program  *ast.Program
	Runner   *task.Runner
	Cache    *cache.Cache
	Download *download.Orchestrator
	History  History
	Logger   task.Logger

	// Concurrency bounds the number of Call instances dispatched at once
	// (spec.md §5's resource model); 0 means unbounded.
	Concurrency int
}

type completion struct {
	id      state.InstanceID
	outputs map[string]values.Value
	err     error
}

// Run drives st to completion, dispatching every Ready Call instance
// through d.dispatch, and returns the workflow's bound outputs once Done.
// ctx cancellation requests cooperative cancellation (spec.md §5): running
// calls observe CancelRequested and the loop drains remaining work before
// returning an Interrupted error (or the first failure, if a call failed).
func (d *Director) Run(ctx context.Context, st *state.State) (map[string]values.Value, error) {
	hist := d.History
	if hist == nil {
		hist = noHistory{}
	}
	runID, err := hist.RunStarted(ctx, d.Layout.Root, d.Program.Workflow.Name)
	if err != nil && d.Logger != nil {
		d.Logger.Warn("run-history record-start failed", "error", err)
	}
	outputs, runErr := d.run(ctx, st)
	if err := hist.RunFinished(ctx, runID, runErr != nil, errMessage(runErr)); err != nil && d.Logger != nil {
		d.Logger.Warn("run-history record-finish failed", "error", err)
	}
	return outputs, runErr
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// run is Run's actual driving loop, separated so Run can wrap it with
// History bookkeeping uniformly regardless of outcome.
func (d *Director) run(ctx context.Context, st *state.State) (map[string]values.Value, error) {
	results := make(chan completion)
	inflight := 0

	// g manages the dispatch goroutines' lifecycle; its own error
	// aggregation is unused (each worker always returns nil — a call's
	// failure is reported via the results channel into state.Complete, not
	// by aborting Run). Concurrency is bounded by sem rather than
	// errgroup's own SetLimit: SetLimit's Go blocks the caller once the
	// limit is reached, which would deadlock this loop (it is also the
	// sole reader of the unbuffered results channel a blocked slot is
	// waiting to free). Acquiring the semaphore inside the goroutine
	// instead keeps the launching loop non-blocking.
	g := &errgroup.Group{}
	var sem *semaphore.Weighted
	if d.Concurrency > 0 {
		sem = semaphore.NewWeighted(int64(d.Concurrency))
	}

	// cancelFlags lets the driving loop below signal a running instance's
	// in-flight dispatch goroutine without sharing the (immutable,
	// continually-replaced) *state.State itself: Step/Cancel/Complete each
	// clone rather than mutate, so a goroutine holding an older snapshot
	// would never observe a later CancelRequested flip.
	var cancelFlags sync.Map // InstanceID.Key() -> *atomic.Bool

	// launch takes an explicit state snapshot rather than closing over the
	// loop variable: st is reassigned by the driving loop below while these
	// goroutines run concurrently.
	launch := func(id state.InstanceID, snapshot *state.State) {
		flag := &atomic.Bool{}
		cancelFlags.Store(id.Key(), flag)
		inflight++
		g.Go(func() error {
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					results <- completion{id: id, err: err}
					return nil
				}
				defer sem.Release(1)
			}
			outputs, err := d.dispatch(ctx, snapshot, id, flag)
			results <- completion{id: id, outputs: outputs, err: err}
			return nil
		})
	}

	for {
		ns, ready, err := st.Step()
		if err != nil {
			return nil, err
		}
		st = ns

		select {
		case <-ctx.Done():
			st = st.Cancel()
		default:
		}

		for _, jid := range st.RunningJobs() {
			if flag, ok := cancelFlags.Load(jid.Key()); ok {
				flag.(*atomic.Bool).Store(true)
			}
		}

		for _, id := range ready {
			launch(id, st)
		}

		if inflight == 0 {
			if st.Done() {
				break
			}
			// No in-flight work and nothing newly ready: the graph is
			// stuck (should not happen for a well-formed program), but
			// returning rather than spinning keeps this loop total.
			if len(ready) == 0 {
				return nil, errs.New(errs.KindEval, errs.Pos{}, "workflow stalled with no runnable or in-flight instances")
			}
			continue
		}

		c := <-results
		inflight--
		cancelFlags.Delete(c.id.Key())
		st = st.Complete(c.id, c.outputs, c.err)
	}

	if st.Failed() {
		return nil, d.firstFailure(st)
	}
	if st.Cancelled() {
		return nil, errs.New(errs.KindInterrupted, errs.Pos{}, "run cancelled")
	}
	return st.WorkflowOutputs(d.Program)
}

// firstFailure finds a Failed instance's recorded error to surface as the
// run's overall failure (spec.md §7: the first failure drives error.json).
func (d *Director) firstFailure(st *state.State) error {
	for _, inst := range st.Instances() {
		if inst.Status == state.Failed && inst.Err != nil {
			return inst.Err
		}
	}
	return errs.New(errs.KindTaskFailure, errs.Pos{}, "run failed")
}

// dispatch evaluates one Ready Call instance's bound inputs, consults the
// call cache, and on a miss runs it through internal/task, storing the
// result back into the cache on success.
func (d *Director) dispatch(ctx context.Context, st *state.State, id state.InstanceID, cancelled *atomic.Bool) (map[string]values.Value, error) {
	node, ok := d.Graph.Get(id.Node)
	if !ok || node.Call == nil || node.Call.Task == nil {
		return nil, errs.New(errs.KindEval, errs.Pos{}, "call instance %s: no resolved task", id.Key())
	}
	call := node.Call
	t := call.Task

	callEnv, inputs, err := d.bindCallInputs(st, id, call, t)
	if err != nil {
		return nil, err
	}

	outputTypes := make(map[string]*types.Type, len(t.Outputs))
	for _, o := range t.Outputs {
		outputTypes[o.Name] = o.Type
	}

	if d.Cache != nil {
		sourceDigest := cache.SourceDigest(cache.TaskSourceText(t))
		_, outputs, hit, cerr := d.Cache.Lookup(ctx, t.Name, sourceDigest, inputs, outputTypes)
		if cerr == nil && hit {
			return outputs, nil
		}
	}

	callDir := d.Layout.CallDir(call.Alias, id.Path)
	cc := task.CallContext{
		CallDir:         callDir,
		WriteDir:        d.Layout.WriteDir(),
		CancelRequested: cancelled.Load,
	}
	if d.Download != nil {
		cc.Stager = d.Download
	}

	res, err := d.Runner.Run(ctx, t, call, callEnv, cc)
	if err != nil {
		return nil, err
	}

	if d.Cache != nil {
		sourceDigest := cache.SourceDigest(cache.TaskSourceText(t))
		key := cache.NewKey(sourceDigest, mustInputDigest(inputs))
		watch := watchPaths(res.Outputs)
		if err := d.Cache.Store(key, res.Outputs, watch); err != nil && d.Logger != nil {
			d.Logger.Warn("call cache store failed", "call", call.Alias, "error", err)
		}
	}
	return res.Outputs, nil
}

// bindCallInputs evaluates every input expression a Call instance supplies
// against the workflow environment in scope at its graph path, returning
// both the task-decl environment internal/task.Runner expects (explicit
// inputs bound by name, with task-side defaults filled in later by
// Runner.Run) and the plain input map the call cache hashes.
func (d *Director) bindCallInputs(st *state.State, id state.InstanceID, call *ast.Call, t *ast.Task) (*env.Env, map[string]values.Value, error) {
	scope := st.EnvFor(id)
	callEnv := env.Empty()
	inputs := make(map[string]values.Value, len(call.Inputs))
	for name, expr := range call.Inputs {
		v, err := d.Runner.Evaluator.Eval(expr, scope, nil)
		if err != nil {
			return nil, nil, errs.Wrap(errs.KindEval, err, "evaluate input %q of call %s", name, call.Alias)
		}
		callEnv = callEnv.Bind(name, v)
		inputs[name] = v
	}
	return callEnv, inputs, nil
}

func mustInputDigest(inputs map[string]values.Value) string {
	d, err := cache.InputDigest(inputs)
	if err != nil {
		return ""
	}
	return d
}

// watchPaths collects the local file/directory paths a cached entry
// should be invalidated by (spec.md §4.L's fsnotify-based proactive
// invalidation): every File/Directory output path.
func watchPaths(outputs map[string]values.Value) []string {
	var out []string
	var walk func(v values.Value)
	walk = func(v values.Value) {
		if v.File.Virtual != "" {
			out = append(out, v.File.Virtual)
		}
		for _, e := range v.Arr {
			walk(e)
		}
		if v.PL != nil {
			walk(*v.PL)
		}
		if v.PR != nil {
			walk(*v.PR)
		}
		if v.M != nil {
			for _, f := range v.M.Entries() {
				walk(f.Value)
			}
		}
		for _, f := range v.Fields {
			walk(f.Value)
		}
	}
	for _, v := range outputs {
		walk(v)
	}
	return out
}
