package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloWDL = `version 1.0

workflow hello {
  input {
    String name
  }
  call greet { input: who = name }
  output {
    String greeting = greet.out
  }
}

task greet {
  input {
    String who
  }
  command <<<
    echo "Hello, ~{who}!"
  >>>
  output {
    String out = read_string(stdout())
  }
  runtime {
    docker: "ubuntu:20.04"
    cpu: 1
  }
}
`

func TestParseHelloWorkflow(t *testing.T) {
	doc, err := Parse("hello.wdl", helloWDL)
	require.NoError(t, err)
	assert.Equal(t, "1.0", doc.Version)
	require.NotNil(t, doc.Workflow)
	assert.Equal(t, "hello", doc.Workflow.Name)
	require.Len(t, doc.Workflow.Body, 1)
	require.NotNil(t, doc.Workflow.Body[0].Call)
	assert.Equal(t, "greet", doc.Workflow.Body[0].Call.Target)
	require.Len(t, doc.Tasks, 1)
	task := doc.Tasks[0]
	assert.True(t, task.CommandHeredoc)
	require.Len(t, task.Runtime, 2)
	assert.Equal(t, "docker", task.Runtime[0].Name)
}

func TestParseCommandPlaceholder(t *testing.T) {
	doc, err := Parse("t.wdl", `version 1.0
task t {
  command <<< echo ~{x + 1} >>>
  output {
    Int y = 1
  }
}
`)
	require.NoError(t, err)
	cmd := doc.Tasks[0].Command
	require.Len(t, cmd, 3)
	assert.Equal(t, " echo ", cmd[0].Literal)
	assert.Equal(t, "~{", cmd[1].PlaceholderSep)
	assert.Equal(t, "x + 1", cmd[1].Expr)
	assert.Equal(t, " ", cmd[2].Literal)
}

func TestParseScatterAndConditional(t *testing.T) {
	doc, err := Parse("w.wdl", `version 1.0
workflow w {
  Array[Int] xs = [1, 2, 3]
  scatter (x in xs) {
    if (x > 1) {
      Int y = x * 2
    }
  }
}
`)
	require.NoError(t, err)
	require.Len(t, doc.Workflow.Body, 2)
	require.NotNil(t, doc.Workflow.Body[1].Scatter)
	sc := doc.Workflow.Body[1].Scatter
	assert.Equal(t, "x", sc.Var)
	require.Len(t, sc.Body, 1)
	require.NotNil(t, sc.Body[0].Conditional)
}

func TestParseStructAndImport(t *testing.T) {
	doc, err := Parse("s.wdl", `version 1.1
import "lib.wdl" as lib
struct Sample {
  String name
  File bam
}
`)
	require.NoError(t, err)
	require.Len(t, doc.Imports, 1)
	assert.Equal(t, "lib.wdl", doc.Imports[0].URI)
	assert.Equal(t, "lib", doc.Imports[0].Alias)
	require.Len(t, doc.Structs, 1)
	assert.Equal(t, "Sample", doc.Structs[0].Name)
	assert.Len(t, doc.Structs[0].Members, 2)
}

func TestParseExpressionPrecedence(t *testing.T) {
	doc, err := Parse("e.wdl", `version 1.0
workflow w {
  Boolean b = 1 + 2 * 3 == 7 && !false
}
`)
	require.NoError(t, err)
	d := doc.Workflow.Body[0].Decl
	require.NotNil(t, d)
	require.Equal(t, ExprBinary, d.Expr.Kind)
	assert.Equal(t, "&&", d.Expr.BinOp)
}

func TestSyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse("bad.wdl", `version 1.0
workflow w {
`)
	require.Error(t, err)
}
