package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/ast"
)

const sampleWDL = `version 1.0

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

func mustLoad(t *testing.T, src string) *ast.Program {
	t.Helper()
	docs, err := ast.Load("entry.wdl", src, ast.LocalResolver{ReadFile: func(string) (string, error) { return "", nil }})
	require.NoError(t, err)
	prog, err := ast.Build("entry.wdl", docs)
	require.NoError(t, err)
	require.NoError(t, ast.Typecheck(prog, nil))
	return prog
}

func TestBuildGraphScatterAndGather(t *testing.T) {
	prog := mustLoad(t, sampleWDL)
	g, err := Build(prog)
	require.NoError(t, err)

	ids := g.IDs()
	assert.Contains(t, ids, "decl-names")
	assert.Contains(t, ids, "scatter-n")
	assert.Contains(t, ids, "scatter-n/call-greet")
	assert.Contains(t, ids, "scatter-n/gather/greet")
	assert.Contains(t, ids, "output-greetings")

	callNode, ok := g.Get("scatter-n/call-greet")
	require.True(t, ok)
	assert.Equal(t, NodeCall, callNode.Kind)
	assert.Contains(t, callNode.DependsOn, "scatter-n")

	gatherNode, ok := g.Get("scatter-n/gather/greet")
	require.True(t, ok)
	assert.Equal(t, NodeGather, gatherNode.Kind)
	assert.Equal(t, "scatter-n/call-greet", gatherNode.GatherOf)
	assert.Equal(t, []string{"scatter-n/call-greet"}, gatherNode.DependsOn)

	outNode, ok := g.Get("output-greetings")
	require.True(t, ok)
	assert.Contains(t, outNode.DependsOn, "scatter-n/gather/greet")

	section, ok := g.SectionOf("scatter-n/call-greet")
	require.True(t, ok)
	assert.Equal(t, "scatter-n", section)

	_, ok = g.SectionOf("output-greetings")
	assert.False(t, ok)
}

func TestBuildTaskGraph(t *testing.T) {
	prog := mustLoad(t, sampleWDL)
	task := prog.Tasks["greet"]
	g, err := BuildTask(task)
	require.NoError(t, err)

	outNode, ok := g.Get("output-out")
	require.True(t, ok)
	assert.Contains(t, outNode.DependsOn, "input-who")
}
