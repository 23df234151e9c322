package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/graph"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/values"
)

const scatterWDL = `version 1.0

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

const condWDL = `version 1.0

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
  }
}

workflow maybe_hello {
  input {
    Boolean flag
    String name
  }
  if (flag) {
    call greet { input: who = name }
  }
  output {
    String? greeting = greet.out
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

func newEvaluator() *eval.Evaluator {
	return eval.New(stdlib.Default(), nil)
}

func TestScatterExpansionAndGather(t *testing.T) {
	prog := mustLoad(t, scatterWDL)
	g, err := graph.Build(prog)
	require.NoError(t, err)

	ev := newEvaluator()
	names := values.NewArray(values.NewString("").Type, false, []values.Value{
		values.NewString("alice"), values.NewString("bob"),
	})
	base := env.Empty().Bind("names", names)

	s := New(g, ev, base, FailFast)
	s, ready, err := s.Step()
	require.NoError(t, err)
	require.Len(t, ready, 2)

	for _, id := range ready {
		s = s.Complete(id, map[string]values.Value{"out": values.NewString("hi " + callWho(id))}, nil)
	}
	s, _, err = s.Step()
	require.NoError(t, err)

	assert.True(t, s.Done())
	assert.False(t, s.Failed())

	outs, err := s.WorkflowOutputs(prog)
	require.NoError(t, err)
	g2 := outs["greetings"]
	require.Equal(t, 2, len(g2.Arr))
}

func callWho(id InstanceID) string {
	if len(id.Path) == 0 {
		return ""
	}
	if id.Path[len(id.Path)-1] == 0 {
		return "alice"
	}
	return "bob"
}

func TestConditionalFalseYieldsAbsentGather(t *testing.T) {
	prog := mustLoad(t, condWDL)
	g, err := graph.Build(prog)
	require.NoError(t, err)

	ev := newEvaluator()
	base := env.Empty().Bind("flag", values.NewBool(false)).Bind("name", values.NewString("x"))

	s := New(g, ev, base, FailFast)
	s, ready, err := s.Step()
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.True(t, s.Done())

	outs, err := s.WorkflowOutputs(prog)
	require.NoError(t, err)
	assert.True(t, outs["greeting"].Absent)
}

func TestConditionalTrueRunsAndGathers(t *testing.T) {
	prog := mustLoad(t, condWDL)
	g, err := graph.Build(prog)
	require.NoError(t, err)

	ev := newEvaluator()
	base := env.Empty().Bind("flag", values.NewBool(true)).Bind("name", values.NewString("x"))

	s := New(g, ev, base, FailFast)
	s, ready, err := s.Step()
	require.NoError(t, err)
	require.Len(t, ready, 1)

	s = s.Complete(ready[0], map[string]values.Value{"out": values.NewString("hi x")}, nil)
	s, _, err = s.Step()
	require.NoError(t, err)
	require.True(t, s.Done())

	outs, err := s.WorkflowOutputs(prog)
	require.NoError(t, err)
	assert.False(t, outs["greeting"].Absent)
	assert.Equal(t, "hi x", outs["greeting"].Str)
}

func TestFailureMarksStateFailedAndDrains(t *testing.T) {
	prog := mustLoad(t, scatterWDL)
	g, err := graph.Build(prog)
	require.NoError(t, err)

	ev := newEvaluator()
	names := values.NewArray(values.NewString("").Type, false, []values.Value{
		values.NewString("alice"), values.NewString("bob"),
	})
	base := env.Empty().Bind("names", names)

	s := New(g, ev, base, FailFast)
	s, ready, err := s.Step()
	require.NoError(t, err)
	require.Len(t, ready, 2)

	s = s.Complete(ready[0], nil, errors.New("boom"))
	assert.True(t, s.Failed())

	inst, ok := s.Get(ready[0])
	require.True(t, ok)
	assert.Equal(t, Failed, inst.Status)

	running := s.RunningJobs()
	var sawSecond bool
	for _, id := range running {
		if id.Key() == ready[1].Key() {
			sawSecond = true
		}
	}
	assert.True(t, sawSecond, "sibling Running instance should be flagged for cancellation under FailFast draining")
}
