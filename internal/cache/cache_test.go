package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

func TestSourceDigestNormalizesWhitespace(t *testing.T) {
	a := SourceDigest("task  foo  {\n  command { echo hi }\n}")
	b := SourceDigest("task foo { command { echo hi } }")
	require.Equal(t, a, b)
}

func TestInputDigestStableUnderKeyOrder(t *testing.T) {
	a := map[string]values.Value{"x": values.NewInt(1), "y": values.NewString("z")}
	b := map[string]values.Value{"y": values.NewString("z"), "x": values.NewInt(1)}
	da, err := InputDigest(a)
	require.NoError(t, err)
	db, err := InputDigest(b)
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestInputDigestChangesWithValue(t *testing.T) {
	da, _ := InputDigest(map[string]values.Value{"x": values.NewInt(1)})
	db, _ := InputDigest(map[string]values.Value{"x": values.NewInt(2)})
	require.NotEqual(t, da, db)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	key := NewKey("src", "in")
	require.NoError(t, s.Put(&Entry{Key: key, Outputs: []byte(`{"out":1}`), WrittenAt: time.Now()}))

	e, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"out":1}`, string(e.Outputs))
}

func TestFileStoreInvalidatesOnWatchedPathChange(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	inputPath := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(inputPath, []byte("v1"), 0o644))

	key := NewKey("src", "in")
	require.NoError(t, s.Put(&Entry{
		Key: key, Outputs: []byte(`{}`), WrittenAt: time.Now(), WatchPaths: []string{inputPath},
	}))

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, os.WriteFile(inputPath, []byte("v2"), 0o644))

	_, ok, err = s.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheLookupMissThenHit(t *testing.T) {
	c, err := New(context.Background(), Options{Dir: t.TempDir(), Get: true, Put: true})
	require.NoError(t, err)
	defer c.Close()

	outTypes := map[string]*types.Type{"out": types.Prim(types.String)}
	inputs := map[string]values.Value{"who": values.NewString("alice")}
	key, _, hit, err := c.Lookup(context.Background(), "greet", "src-v1", inputs, outTypes)
	require.NoError(t, err)
	require.False(t, hit)

	outputs := map[string]values.Value{"out": values.NewString("hi alice")}
	require.NoError(t, c.Store(key, outputs, nil))

	_, got, hit, err := c.Lookup(context.Background(), "greet", "src-v1", inputs, outTypes)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "hi alice", got["out"].Str)
}

func TestCacheDisabledGetReturnsMiss(t *testing.T) {
	c, err := New(context.Background(), Options{Dir: t.TempDir(), Get: false, Put: true})
	require.NoError(t, err)
	defer c.Close()

	outTypes := map[string]*types.Type{"out": types.Prim(types.String)}
	inputs := map[string]values.Value{"who": values.NewString("alice")}
	key, _, hit, err := c.Lookup(context.Background(), "greet", "src-v1", inputs, outTypes)
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.Store(key, map[string]values.Value{"out": values.NewString("hi alice")}, nil))

	_, _, hit, err = c.Lookup(context.Background(), "greet", "src-v1", inputs, outTypes)
	require.NoError(t, err)
	require.False(t, hit, "reads disabled even though an entry now exists")
}
