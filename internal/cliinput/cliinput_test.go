package cliinput

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/ast"
)

const greetWDL = `version 1.0

task greet {
  input {
    String who
    Int times = 1
  }
  command <<<
    echo "~{who}"
  >>>
  output {
    String out = "hi " + who
  }
  runtime {
    docker: "ubuntu:20.04"
  }
}

workflow hello {
  input {
    String name
    Int? age
    Array[String] tags
  }
  call greet { input: who = name }
  output {
    String greeting = greet.out
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

func TestParseArgsSplitsForms(t *testing.T) {
	a, err := ParseArgs([]string{"name=alice", "tags=a", "tags=b", "--none", "age", "-i", "base.json"})
	require.NoError(t, err)
	require.Equal(t, []string{"base.json"}, a.Files)
	require.Equal(t, []string{"age"}, a.None)
	require.Equal(t, []string{"alice"}, a.Assigns["name"])
	require.Equal(t, []string{"a", "b"}, a.Assigns["tags"])
}

func TestAssembleFromPositionalArgs(t *testing.T) {
	prog := mustLoad(t, greetWDL)
	a, err := ParseArgs([]string{"name=alice", "tags=a", "tags=b", "--none", "age"})
	require.NoError(t, err)

	vals, err := Assemble(prog, a)
	require.NoError(t, err)
	require.Equal(t, "alice", vals["hello.name"].Str)
	require.Len(t, vals["hello.tags"].Arr, 2)
	require.True(t, vals["hello.age"].Absent)
}

func TestAssembleMergesInputFilesAndOverrides(t *testing.T) {
	prog := mustLoad(t, greetWDL)
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(base, []byte(`{"hello.name":"base","hello.tags":["x"]}`), 0o644))

	a, err := ParseArgs([]string{"-i", base, "name=override"})
	require.NoError(t, err)

	vals, err := Assemble(prog, a)
	require.NoError(t, err)
	require.Equal(t, "override", vals["hello.name"].Str)
	require.Len(t, vals["hello.tags"].Arr, 1)
}

func TestAssembleRejectsUnknownKey(t *testing.T) {
	prog := mustLoad(t, greetWDL)
	a, err := ParseArgs([]string{"nope=1"})
	require.NoError(t, err)
	_, err = Assemble(prog, a)
	require.Error(t, err)
}

func TestAssembleAcceptsCallLevelOverrideKey(t *testing.T) {
	prog := mustLoad(t, greetWDL)
	a, err := ParseArgs([]string{"name=alice", "tags=a", "--none", "age", "hello.greet.times=5"})
	require.NoError(t, err)
	_, err = Assemble(prog, a)
	require.NoError(t, err)
}

func TestInputTemplateRendersRequiredAndOptional(t *testing.T) {
	prog := mustLoad(t, greetWDL)
	out, err := InputTemplate(prog)
	require.NoError(t, err)
	require.Contains(t, string(out), `"hello.name": ""`)
	require.Contains(t, string(out), `"hello.age": null`)
	require.Contains(t, string(out), `"hello.tags": []`)
}
