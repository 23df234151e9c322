package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/backend"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/values"
)

const greetWDL = `version 1.0

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
`

func mustLoadTask(t *testing.T, src string) *ast.Program {
	t.Helper()
	docs, err := ast.Load("entry.wdl", src, ast.LocalResolver{ReadFile: func(string) (string, error) { return "", nil }})
	require.NoError(t, err)
	prog, err := ast.Build("entry.wdl", docs)
	require.NoError(t, err)
	require.NoError(t, ast.Typecheck(prog, nil))
	return prog
}

// fakeBackend is an in-memory backend.Backend double: PrepareImage and Run
// are no-ops, Poll always reports Exited with a configured code, and Logs
// returns canned stdout.
type fakeBackend struct {
	exitCode   int
	stdout     []byte
	runSpecs   []backend.RunSpec
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) PrepareImage(ctx context.Context, ref string) (backend.LocalImageHandle, error) {
	return backend.LocalImageHandle(ref), nil
}
func (f *fakeBackend) Run(ctx context.Context, spec backend.RunSpec) (backend.RunHandle, error) {
	f.runSpecs = append(f.runSpecs, spec)
	return backend.RunHandle("h1"), nil
}
func (f *fakeBackend) Poll(ctx context.Context, h backend.RunHandle) (backend.PollResult, error) {
	return backend.PollResult{Status: backend.Exited, ExitCode: f.exitCode}, nil
}
func (f *fakeBackend) Kill(ctx context.Context, h backend.RunHandle) error { return nil }
func (f *fakeBackend) Logs(ctx context.Context, h backend.RunHandle) ([]byte, []byte, error) {
	return f.stdout, nil, nil
}

func newTestRunner(be *fakeBackend) *Runner {
	return &Runner{
		Backend:   be,
		Admission: NewAdmission(4, 4<<30, nil),
		Evaluator: eval.New(stdlib.Default(), nil),
		Defaults:  Defaults{DockerImage: "ubuntu:20.04", CPU: 1, MemoryBytes: 1 << 30},
	}
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	prog := mustLoadTask(t, greetWDL)
	task := prog.Tasks["greet"]

	be := &fakeBackend{exitCode: 0, stdout: []byte("hi alice\n")}
	r := newTestRunner(be)

	dir := t.TempDir()
	cc := CallContext{CallDir: filepath.Join(dir, "call-greet"), WriteDir: filepath.Join(dir, "write_")}
	callEnv := env.Empty().Bind("who", values.NewString("alice"))
	call := &ast.Call{Alias: "greet", Target: "greet", Task: task, Pos: task.Pos}

	res, err := r.Run(context.Background(), task, call, callEnv, cc)
	require.NoError(t, err)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, 0, res.ExitCode)
	out, ok := res.Outputs["out"]
	require.True(t, ok)
	require.Equal(t, "hi alice", out.Str)

	// stdout.txt lands at the call directory, not inside work/.
	b, err := os.ReadFile(filepath.Join(cc.CallDir, "stdout.txt"))
	require.NoError(t, err)
	require.Equal(t, "hi alice\n", string(b))

	require.Len(t, be.runSpecs, 1)
	require.Equal(t, float64(1), be.runSpecs[0].CPU)
}

func TestRunRetriesThenFails(t *testing.T) {
	prog := mustLoadTask(t, greetWDL)
	task := prog.Tasks["greet"]

	be := &fakeBackend{exitCode: 1}
	r := newTestRunner(be)

	dir := t.TempDir()
	cc := CallContext{CallDir: filepath.Join(dir, "call-greet"), WriteDir: filepath.Join(dir, "write_")}
	callEnv := env.Empty().Bind("who", values.NewString("bob"))
	call := &ast.Call{Alias: "greet", Target: "greet", Task: task, Pos: task.Pos}

	_, err := r.Run(context.Background(), task, call, callEnv, cc)
	require.Error(t, err)

	// Only one attempt since runtime.maxRetries defaults to 0: work/ exists,
	// work2/ does not.
	require.DirExists(t, filepath.Join(cc.CallDir, "work"))
	require.NoDirExists(t, filepath.Join(cc.CallDir, "work2"))
}

func TestReturnCodesAnyAcceptsNonzero(t *testing.T) {
	rc := ReturnCodes{Any: true}
	require.True(t, rc.Accepts(17))
}

func TestParseMemoryQuantity(t *testing.T) {
	b, err := ParseMemoryQuantity(values.NewString("2 GiB"))
	require.NoError(t, err)
	require.Equal(t, int64(2*1<<30), b)

	b, err = ParseMemoryQuantity(values.NewInt(1024))
	require.NoError(t, err)
	require.Equal(t, int64(1024), b)
}
