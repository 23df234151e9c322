package director

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/backend"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/graph"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/state"
	"github.com/go-wdl/wdlrun/internal/task"
	"github.com/go-wdl/wdlrun/internal/values"
)

const helloWDL = `version 1.0

task greet {
  input {
    String who
  }
  command <<<
    echo "hi ~{who}"
  >>>
  output {
    String out = "hi " + who
  }
  runtime {
    docker: "ubuntu:20.04"
    cpu: 1
    memory: "512 MB"
  }
}

workflow hello {
  input {
    Array[String] names
  }
  scatter (n in names) {
    call greet { input: who = n }
  }
  output {
    Array[String] greetings = greet.out
  }
}
`

func mustLoad(t *testing.T, src string) *ast.Program {
	t.Helper()
	docs, err := ast.Load("entry.wdl", src, ast.LocalResolver{ReadFile: func(string) (string, error) { return "", nil }})
	require.NoError(t, err)
	prog, err := ast.Build("entry.wdl", docs)
	require.NoError(t, err)
	require.NoError(t, ast.Typecheck(prog, nil))
	return prog
}

// fakeBackend is an in-memory double like the one internal/task's tests
// define: PrepareImage/Run are no-ops, Poll always reports a configured exit code.
type fakeBackend struct{ exitCode int }

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) PrepareImage(ctx context.Context, ref string) (backend.LocalImageHandle, error) {
	return backend.LocalImageHandle(ref), nil
}
func (f *fakeBackend) Run(ctx context.Context, spec backend.RunSpec) (backend.RunHandle, error) {
	return backend.RunHandle("h"), nil
}
func (f *fakeBackend) Poll(ctx context.Context, h backend.RunHandle) (backend.PollResult, error) {
	return backend.PollResult{Status: backend.Exited, ExitCode: f.exitCode}, nil
}
func (f *fakeBackend) Kill(ctx context.Context, h backend.RunHandle) error { return nil }
func (f *fakeBackend) Logs(ctx context.Context, h backend.RunHandle) ([]byte, []byte, error) {
	return []byte("hi\n"), nil, nil
}

func newTestDirector(t *testing.T, be backend.Backend, g *graph.Graph, prog *ast.Program) *Director {
	t.Helper()
	dir := t.TempDir()
	l, err := NewLayout(dir, "")
	require.NoError(t, err)
	r := &task.Runner{
		Backend:   be,
		Admission: task.NewAdmission(4, 4<<30, nil),
		Evaluator: eval.New(stdlib.Default(), nil),
		Defaults:  task.Defaults{DockerImage: "ubuntu:20.04", CPU: 1, MemoryBytes: 1 << 30},
	}
	return &Director{Layout: l, Graph: g, Program: prog, Runner: r, Concurrency: 2}
}

func TestDirectorRunsScatteredCallsToCompletion(t *testing.T) {
	prog := mustLoad(t, helloWDL)
	g, err := graph.Build(prog)
	require.NoError(t, err)

	d := newTestDirector(t, &fakeBackend{exitCode: 0}, g, prog)

	names := values.NewArray(values.NewString("").Type, false, []values.Value{
		values.NewString("alice"), values.NewString("bob"),
	})
	base := env.Empty().Bind("names", names)
	ev := eval.New(stdlib.Default(), nil)
	st := state.New(g, ev, base, state.FailFast)

	outs, err := d.Run(context.Background(), st)
	require.NoError(t, err)
	greetings := outs["greetings"]
	require.Len(t, greetings.Arr, 2)
	require.Equal(t, "hi alice", greetings.Arr[0].Str)
	require.Equal(t, "hi bob", greetings.Arr[1].Str)
}

func TestDirectorSurfacesTaskFailure(t *testing.T) {
	prog := mustLoad(t, helloWDL)
	g, err := graph.Build(prog)
	require.NoError(t, err)

	d := newTestDirector(t, &fakeBackend{exitCode: 1}, g, prog)

	names := values.NewArray(values.NewString("").Type, false, []values.Value{values.NewString("alice")})
	base := env.Empty().Bind("names", names)
	ev := eval.New(stdlib.Default(), nil)
	st := state.New(g, ev, base, state.FailFast)

	_, err = d.Run(context.Background(), st)
	require.Error(t, err)
}

func TestLayoutCallDirAppendsScatterIndex(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLayout(dir, "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(l.Root, "call-greet-1"), l.CallDir("greet", []int{1}))
	require.Equal(t, filepath.Join(l.Root, "call-greet"), l.CallDir("greet", nil))
}
