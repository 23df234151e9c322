// Package ast builds a typed, import-resolved program from one or more
// parser.Document trees and typechecks it per spec.md §4.E. It is the
// second of the two-stage compile pipeline (parse, then convert+validate),
// mirroring the teacher's own two-pass compiler shape.
package ast

import (
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
	"github.com/go-wdl/wdlrun/internal/types"
)

// Program is the fully resolved, typechecked compile unit: every struct
// alias resolved, every declaration's static type computed, every call
// target bound to a concrete Task. Calls to sub-workflows are not
// supported: Build rejects any call target that is not a known task.
type Program struct {
	Version  string
	Structs  map[string]*types.Type // name -> StructInstance type
	Tasks    map[string]*Task
	Workflow *Workflow
}

type Decl struct {
	Name string
	Type *types.Type
	Expr *parser.Expr // nil if unbound (required/optional input with no default)
	Pos  errs.Pos
}

// CommandPart is one segment of a task's command template, its
// placeholder (if any) already parsed into an expression rather than kept
// as the lexer's raw captured text.
type CommandPart struct {
	Literal string        // valid when Expr == nil
	Expr    *parser.Expr  // valid when Literal == ""
	Sep     string        // "${" or "~{", for draft-2 compatibility accounting
	Pos     errs.Pos
}

type Task struct {
	Name          string
	Inputs        []*Decl
	Decls         []*Decl
	Outputs       []*Decl
	Command       []CommandPart
	CommandHeredoc bool
	Runtime       map[string]*parser.Expr
	Meta          map[string]any
	ParameterMeta map[string]any
	Pos           errs.Pos
}

// InputDecls returns inputs in declaration order (used for call binding and
// input-template generation).
func (t *Task) InputDecls() []*Decl { return t.Inputs }

type Workflow struct {
	Name          string
	Inputs        []*Decl
	Outputs       []*Decl
	Body          []Element
	Meta          map[string]any
	ParameterMeta map[string]any
	AllowNestedInputs bool
	Pos           errs.Pos
}

// Element mirrors parser.WorkflowElement but with call targets resolved.
type Element struct {
	Decl        *Decl
	Call        *Call
	Scatter     *Scatter
	Conditional *Conditional
}

type Call struct {
	// Alias is the call's bound name within the workflow (explicit `as`, or
	// the task/workflow's own name by default).
	Alias  string
	Target string
	Task   *Task     // non-nil when the target is a task
	Sub    *Workflow // non-nil when the target is an importable sub-workflow
	// Inputs maps each bound input name to its expression. The `input: x`
	// shorthand (x bound to an identically-named outer variable) has no
	// separate representation: its entry carries a nil expression, which
	// the typechecker reads as `x = x`.
	Inputs map[string]*parser.Expr
	Pos    errs.Pos
}

type Scatter struct {
	Var      string
	ItemType *types.Type
	Expr     *parser.Expr
	Body     []Element
	Pos      errs.Pos
}

type Conditional struct {
	Expr *parser.Expr
	Body []Element
	Pos  errs.Pos
}
