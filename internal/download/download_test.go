package download

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/backend"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/task"
)

func TestDetectScheme(t *testing.T) {
	require.Equal(t, SchemeHTTPS, DetectScheme("https://example.com/a.txt"))
	require.Equal(t, SchemeS3, DetectScheme("s3://bucket/key"))
	require.Equal(t, SchemeLocal, DetectScheme("/local/path/a.txt"))
	require.Equal(t, SchemeLocal, DetectScheme("relative/a.txt"))
}

// fakeBackend mirrors internal/task's own test double: Run's command is
// irrelevant since no real container runs, but PrepareImage/Run/Poll/Logs
// must still behave like a container that wrote the expected payload file.
type fakeBackend struct{ payload []byte }

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) PrepareImage(ctx context.Context, ref string) (backend.LocalImageHandle, error) {
	return backend.LocalImageHandle(ref), nil
}
func (f *fakeBackend) Run(ctx context.Context, spec backend.RunSpec) (backend.RunHandle, error) {
	return backend.RunHandle(filepath.Join(spec.Cwd, "payload")), nil
}
func (f *fakeBackend) Poll(ctx context.Context, h backend.RunHandle) (backend.PollResult, error) {
	path := string(h)
	_ = os.WriteFile(path, f.payload, 0o644)
	return backend.PollResult{Status: backend.Exited, ExitCode: 0}, nil
}
func (f *fakeBackend) Kill(ctx context.Context, h backend.RunHandle) error { return nil }
func (f *fakeBackend) Logs(ctx context.Context, h backend.RunHandle) ([]byte, []byte, error) {
	return nil, nil, nil
}

func TestOrchestratorResolveCachesByURI(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(filepath.Join(dir, "dlcache"))
	require.NoError(t, err)

	be := &fakeBackend{payload: []byte("hello")}
	r := &task.Runner{
		Backend:   be,
		Admission: task.NewAdmission(4, 4<<30, nil),
		Evaluator: eval.New(stdlib.Default(), nil),
		Defaults:  task.Defaults{DockerImage: "ubuntu:20.04", CPU: 1, MemoryBytes: 1 << 20},
	}
	o := &Orchestrator{Runner: r, Cache: cache, RunDir: filepath.Join(dir, "run")}

	path, err := o.Resolve(context.Background(), "https://example.com/a.txt")
	require.NoError(t, err)
	require.FileExists(t, path)

	// Second resolve for the same URI must be served from the cache
	// without invoking the backend again; flip the backend's payload so a
	// repeat run would be detectable.
	be.payload = []byte("changed")
	path2, err := o.Resolve(context.Background(), "https://example.com/a.txt")
	require.NoError(t, err)
	require.Equal(t, path, path2)
	b, err := os.ReadFile(path2)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
}
