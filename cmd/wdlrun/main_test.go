package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/errs"
)

func TestSplitEnvOverride(t *testing.T) {
	cases := []struct {
		in      string
		wantKey string
		wantVal string
		wantOk  bool
	}{
		{"FOO=bar", "FOO", "bar", true},
		{"FOO=", "FOO", "", true},
		{"FOO=bar=baz", "FOO", "bar=baz", true},
		{"FOO", "FOO", "", true},
		{"", "", "", false},
	}
	for _, c := range cases {
		k, v, ok := splitEnvOverride(c.in)
		assert.Equal(t, c.wantOk, ok, c.in)
		if ok {
			assert.Equal(t, c.wantKey, k, c.in)
			assert.Equal(t, c.wantVal, v, c.in)
		}
	}
}

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil-kind", errs.New("", errs.Pos{}, "x"), 1},
		{"syntax", errs.New(errs.KindSyntax, errs.Pos{}, "x"), 2},
		{"type", errs.New(errs.KindType, errs.Pos{}, "x"), 2},
		{"input", errs.New(errs.KindInput, errs.Pos{}, "x"), 2},
		{"interrupted", errs.New(errs.KindInterrupted, errs.Pos{}, "x"), 130},
		{"non-errs-error", assertErr{}, 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, exitCodeFor(c.err), c.name)
	}

	taskFail := errs.New(errs.KindTaskFailure, errs.Pos{}, "x")
	require.Equal(t, 1, exitCodeFor(taskFail), "task failure with no recorded exit code falls back to 1")

	taskFail.ExitCode = 7
	require.Equal(t, 7, exitCodeFor(taskFail), "task failure surfaces the container's own exit code")
}

type assertErr struct{}

func (assertErr) Error() string { return "not an *errs.Error" }

func TestFiles2Flags(t *testing.T) {
	got := files2Flags([]string{"a.json", "b.json"})
	assert.Equal(t, []string{"-i", "a.json", "-i", "b.json"}, got)
	assert.Empty(t, files2Flags(nil))
}

func TestTrimPrefix(t *testing.T) {
	assert.Equal(t, "who", trimPrefix("hello.who", "hello."))
	assert.Equal(t, "hello", trimPrefix("hello", "hello."), "no prefix match passes through unchanged")
	assert.Equal(t, "hello.", trimPrefix("hello.", "hello."), "exact-length match is left unchanged, not trimmed to empty")
}
