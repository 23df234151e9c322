package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
	"github.com/go-wdl/wdlrun/internal/task"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Orchestrator materializes URI-typed File/Directory inputs into local
// paths before the workflow state machine begins (spec.md §4.M), by
// running a synthetic single-output task through the very same task
// runtime user tasks execute on.
type Orchestrator struct {
	Runner   *task.Runner
	Cache    *Cache
	UseAria2 bool
	// RunDir is the scratch root the synthetic download tasks' call/write
	// directories are created under (spec.md §4.N's RUNDIR, typically its
	// "download/" subdirectory).
	RunDir string

	n int
}

// Resolve materializes uri to a local file path, serving from the
// download cache when present. Every URI is fetched as a single file with
// the scheme's helper command; Directory URIs get no recursive fetch. A
// cache hit's shared lock is released before the path is returned.
func (o *Orchestrator) Resolve(ctx context.Context, uri string) (string, error) {
	scheme := DetectScheme(uri)
	if scheme == SchemeLocal {
		return uri, nil
	}

	payloadName := "payload"
	if o.Cache != nil {
		if path, ok, release, err := o.Cache.Lookup(uri, payloadName); err != nil {
			return "", err
		} else if ok {
			release()
			return path, nil
		}
	}

	h, err := helperFor(scheme, o.UseAria2)
	if err != nil {
		return "", errs.Wrap(errs.KindInput, err, "resolve %s", uri)
	}

	o.n++
	id := fmt.Sprintf("%x", sha256.Sum256([]byte(fmt.Sprintf("%s-%d", uri, o.n))))[:12]
	callDir := filepath.Join(o.RunDir, "call-download-"+id)
	writeDir := filepath.Join(o.RunDir, "write_")

	synth, call, err := syntheticDownloadTask(uri, payloadName, h)
	if err != nil {
		return "", err
	}

	res, err := o.Runner.Run(ctx, synth, call, env.Empty(), task.CallContext{
		CallDir:  callDir,
		WriteDir: writeDir,
	})
	if err != nil {
		return "", errs.Wrap(errs.KindInput, err, "download %s", uri)
	}

	outFile := res.Outputs["payload"]
	local := outFile.File.Virtual
	if !filepath.IsAbs(local) {
		local = filepath.Join(res.WorkDir, local)
	}

	if o.Cache != nil {
		return o.Cache.Store(uri, payloadName, local)
	}
	return local, nil
}

// Stage implements internal/task.FileStager: the PathMapper capability
// internal/task's AttemptPaths defers to for any File/Directory handle it
// cannot resolve directly on the host filesystem.
func (o *Orchestrator) Stage(handle values.FileHandle) (string, error) {
	return o.Resolve(context.Background(), handle.Virtual)
}

// syntheticDownloadTask builds the one-shot task + call pair spec.md §6.5
// describes: a task whose only job is running the scheme's helper command
// and whose single output is the fetched file, evaluated relative to its
// own work directory so internal/task's output-path invariant is satisfied
// trivially.
func syntheticDownloadTask(uri, payloadName string, h helper) (*ast.Task, *ast.Call, error) {
	dockerExpr, err := parser.ParseExprFragment(fmt.Sprintf("%q", h.image))
	if err != nil {
		return nil, nil, err
	}
	outExpr, err := parser.ParseExprFragment(fmt.Sprintf("%q", payloadName))
	if err != nil {
		return nil, nil, err
	}
	command := fmt.Sprintf(h.command, shellQuote(uri), shellQuote(payloadName))

	t := &ast.Task{
		Name:    "download",
		Command: []ast.CommandPart{{Literal: command}},
		Outputs: []*ast.Decl{
			{Name: "payload", Type: types.Prim(types.File), Expr: outExpr},
		},
		Runtime: map[string]*parser.Expr{"docker": dockerExpr},
	}
	call := &ast.Call{Alias: "download", Target: "download", Task: t}
	return t, call, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
