package ast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/parser"
)

const sampleWDL = `version 1.0

struct Sample {
  String name
  File bam
}

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

func mustLoad(t *testing.T, src string) *Program {
	t.Helper()
	docs, err := Load("entry.wdl", src, LocalResolver{ReadFile: func(string) (string, error) { return "", nil }})
	require.NoError(t, err)
	prog, err := Build("entry.wdl", docs)
	require.NoError(t, err)
	return prog
}

func TestBuildProgram(t *testing.T) {
	prog := mustLoad(t, sampleWDL)
	require.Contains(t, prog.Structs, "Sample")
	require.Contains(t, prog.Tasks, "greet")
	require.NotNil(t, prog.Workflow)
	require.Len(t, prog.Workflow.Body, 1)
	require.NotNil(t, prog.Workflow.Body[0].Scatter)
}

func TestTypecheckProgram(t *testing.T) {
	prog := mustLoad(t, sampleWDL)
	err := Typecheck(prog, nil)
	require.NoError(t, err)
}

func TestTypecheckRejectsBadAssignment(t *testing.T) {
	prog := mustLoad(t, `version 1.0
workflow w {
  Int x = "not an int"
}
`)
	err := Typecheck(prog, nil)
	require.Error(t, err)
}

func TestCommandPlaceholdersParsedIntoExprs(t *testing.T) {
	prog := mustLoad(t, sampleWDL)
	task := prog.Tasks["greet"]
	var sawExpr bool
	for _, p := range task.Command {
		if p.Expr != nil {
			sawExpr = true
			require.Equal(t, "~{", p.Sep)
		}
	}
	require.True(t, sawExpr, "expected at least one command placeholder parsed into an expression")
	require.NoError(t, Typecheck(prog, nil))
}

func TestParseErrorPropagates(t *testing.T) {
	_, err := Load("bad.wdl", `version 1.0
workflow w {
`, LocalResolver{})
	require.Error(t, err)
}

var _ = parser.Document{}
