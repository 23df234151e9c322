package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/spf13/cobra"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/cache"
	"github.com/go-wdl/wdlrun/internal/cliinput"
	"github.com/go-wdl/wdlrun/internal/director"
	"github.com/go-wdl/wdlrun/internal/download"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/graph"
	"github.com/go-wdl/wdlrun/internal/state"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/task"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

var (
	runDir            string
	runTaskName       string
	runCopyInputFiles bool
	runNoCache        bool
)

var runCmd = &cobra.Command{
	Use:   "run SOURCE [INPUTS...]",
	Short: "execute a workflow or (with --task) a single task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDir, "dir", "", "run directory (default: a fresh timestamped directory)")
	runCmd.Flags().StringVar(&runTaskName, "task", "", "run a single task by name instead of the document's workflow")
	runCmd.Flags().BoolVar(&runCopyInputFiles, "copy-input-files", false, "copy File/Directory inputs into work/ instead of mounting read-only")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "disable both call-cache reads and writes for this run")
	runCmd.Flags().StringArrayP("input", "i", nil, "JSON input document (repeatable, later files win)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	source := args[0]
	inputArgs := args[1:]
	files, _ := cmd.Flags().GetStringArray("input")

	prog, err := loadProgram(source)
	if err != nil {
		return err
	}

	c, err := setupComponents(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Shutdown(cmd.Context())
	if runCopyInputFiles {
		c.Defaults.CopyInputFiles = true
	}

	parent := filepath.Dir(source)
	layout, err := director.NewLayout(parent, runDir)
	if err != nil {
		return err
	}
	if err := director.WriteRerunScript(layout, "wdlrun", source, append(inputArgs, files2Flags(files)...)); err != nil {
		return err
	}
	defer director.LinkLastRun(parent, layout.Root)

	reg := stdlib.Default()
	ev := eval.New(reg, prog)

	var dlOrch *download.Orchestrator
	if c.Download != nil {
		dlOrch = &download.Orchestrator{Cache: c.Download, RunDir: layout.DownloadDir()}
	}

	runner := &task.Runner{
		Backend:   c.Backend,
		Admission: c.Admission,
		Evaluator: ev,
		Defaults:  c.Defaults,
		Logger:    c.Logger,
	}
	if dlOrch != nil {
		dlOrch.Runner = runner
	}

	cacheForRun := c.Cache
	if runNoCache {
		cacheForRun = nil
	}

	ctx, stop := director.WatchSignals(cmd.Context(), func() {
		c.Logger.Warn("second interrupt received, escalating cancellation")
	})
	defer stop()

	var outputs map[string]values.Value
	if runTaskName != "" {
		outputs, err = runBareTask(ctx, prog, runTaskName, inputArgs, files, layout, runner)
	} else {
		outputs, err = runWorkflow(ctx, prog, inputArgs, files, layout, runner, cacheForRun, dlOrch, c.History)
	}
	if err != nil {
		_ = director.WriteErrorJSON(layout.ErrorJSON(), err)
		return err
	}
	if err := director.WriteOutputsJSON(layout.OutputsJSON(), outputs, layout.Root); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), layout.Root)
	return nil
}

func files2Flags(files []string) []string {
	out := make([]string, 0, len(files)*2)
	for _, f := range files {
		out = append(out, "-i", f)
	}
	return out
}

func loadProgram(source string) (*ast.Program, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "read source %s", source)
	}
	resolver := ast.LocalResolver{ReadFile: func(p string) (string, error) {
		b, err := os.ReadFile(p)
		return string(b), err
	}}
	docs, err := ast.Load(source, string(data), resolver)
	if err != nil {
		return nil, err
	}
	prog, err := ast.Build(source, docs)
	if err != nil {
		return nil, err
	}
	if err := ast.Typecheck(prog, stdlib.Default()); err != nil {
		return nil, err
	}
	return prog, nil
}

func runWorkflow(ctx context.Context, prog *ast.Program, inputArgs, files []string, layout *director.Layout, runner *task.Runner, c *cache.Cache, dl *download.Orchestrator, hist director.History) (map[string]values.Value, error) {
	cliArgs, err := cliinput.ParseArgs(append(files2Flags(files), inputArgs...))
	if err != nil {
		return nil, err
	}
	in, err := cliinput.Assemble(prog, cliArgs)
	if err != nil {
		return nil, err
	}

	base := env.Empty()
	prefix := prog.Workflow.Name + "."
	bound := make(map[string]values.Value, len(in))
	for k, v := range in {
		bound[trimPrefix(k, prefix)] = v
	}
	base = base.BindAll(bound)

	g, err := graph.Build(prog)
	if err != nil {
		return nil, err
	}
	st := state.New(g, runner.Evaluator, base, state.FailFast)

	d := &director.Director{
		Layout:   layout,
		Graph:    g,
		Program:  prog,
		Runner:   runner,
		Cache:    c,
		Download: dl,
		History:  hist,
		Logger:   runner.Logger,
	}
	return d.Run(ctx, st)
}

func trimPrefix(s, prefix string) string {
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// bareTaskInputs assembles a single task's flat (unnamespaced) input
// document from `-i` files (merged via RFC 7396 merge patch, same as
// internal/cliinput's workflow path) and positional/--empty/--none
// overrides, for the CLI's `run --task T` mode where there is no
// enclosing workflow namespace to qualify keys with.
func bareTaskInputs(a *cliinput.Args, decls map[string]*types.Type) (map[string]json.RawMessage, error) {
	merged := []byte("{}")
	for _, f := range a.Files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errs.Wrap(errs.KindFilesystem, err, "read input file %s", f)
		}
		merged, err = jsonpatch.MergePatch(merged, data)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "merge input file %s", f)
		}
	}

	overrides := map[string]json.RawMessage{}
	for name, vals := range a.Assigns {
		t, ok := decls[name]
		if !ok {
			return nil, errs.New(errs.KindInput, errs.Pos{Source: name}, "unknown input %q", name)
		}
		raw, err := cliinput.AssignJSON(vals, t)
		if err != nil {
			return nil, err
		}
		overrides[name] = raw
	}
	for _, name := range a.Empty {
		if _, ok := decls[name]; !ok {
			return nil, errs.New(errs.KindInput, errs.Pos{Source: name}, "unknown input %q", name)
		}
		overrides[name] = json.RawMessage("[]")
	}
	for _, name := range a.None {
		if _, ok := decls[name]; !ok {
			return nil, errs.New(errs.KindInput, errs.Pos{Source: name}, "unknown input %q", name)
		}
		overrides[name] = json.RawMessage("null")
	}
	if len(overrides) > 0 {
		ob, err := json.Marshal(overrides)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "encode input overrides")
		}
		merged, err = jsonpatch.MergePatch(merged, ob)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "apply input overrides")
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(merged, &raw); err != nil {
		return nil, errs.Wrap(errs.KindInput, err, "decode merged input document")
	}
	for key := range raw {
		if _, ok := decls[key]; !ok {
			return nil, errs.New(errs.KindInput, errs.Pos{Source: key}, "unknown input key %q", key)
		}
	}
	return raw, nil
}

func runBareTask(ctx context.Context, prog *ast.Program, taskName string, inputArgs, files []string, layout *director.Layout, runner *task.Runner) (map[string]values.Value, error) {
	t, ok := prog.Tasks[taskName]
	if !ok {
		return nil, errs.New(errs.KindInput, errs.Pos{}, "no such task %q", taskName)
	}

	cliArgs, err := cliinput.ParseArgs(append(files2Flags(files), inputArgs...))
	if err != nil {
		return nil, err
	}
	decls := make(map[string]*types.Type, len(t.Inputs))
	for _, d := range t.Inputs {
		decls[d.Name] = d.Type
	}

	raw, err := bareTaskInputs(cliArgs, decls)
	if err != nil {
		return nil, err
	}
	bound, err := values.NamespacedInputs(raw, decls)
	if err != nil {
		return nil, err
	}

	callEnv := env.Empty().BindAll(bound)
	call := &ast.Call{Alias: t.Name, Target: t.Name, Task: t}
	callDir := layout.CallDir(t.Name, nil)
	if err := os.MkdirAll(callDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "create call directory")
	}

	res, err := runner.Run(ctx, t, call, callEnv, task.CallContext{
		CallDir:  callDir,
		WriteDir: layout.WriteDir(),
	})
	if err != nil {
		return nil, err
	}
	return res.Outputs, nil
}
