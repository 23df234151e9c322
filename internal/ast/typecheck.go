package ast

import (
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
	"github.com/go-wdl/wdlrun/internal/types"
)

// Scope is a persistent chain of name->type bindings used purely for
// static typechecking (a parallel, lighter-weight structure to
// internal/env.Env, which binds runtime values instead).
type Scope struct {
	parent *Scope
	names  map[string]*types.Type
}

func NewScope(parent *Scope) *Scope { return &Scope{parent: parent, names: map[string]*types.Type{}} }

func (s *Scope) Bind(name string, t *types.Type) { s.names[name] = t }

func (s *Scope) Lookup(name string) (*types.Type, bool) {
	for f := s; f != nil; f = f.parent {
		if t, ok := f.names[name]; ok {
			return t, true
		}
	}
	return nil, false
}

// FuncSig describes one stdlib function signature for typechecking
// purposes: fixed or variadic parameter types and a return type. Variadic
// functions (e.g. select_first over Array[X?]) compute their return type
// dynamically via Infer.
type FuncSig struct {
	Params   []*types.Type
	Variadic bool
	Ret      *types.Type
	// Infer, if set, overrides Ret with a return type computed from the
	// actual argument types (e.g. `size`-like passthrough or element-type
	// extraction functions).
	Infer func(args []*types.Type) (*types.Type, error)
}

// StdlibSignatures is the capability internal/stdlib provides so ast can
// typecheck function application without importing the function bodies
// themselves.
type StdlibSignatures interface {
	Lookup(name string) (FuncSig, bool)
}

// Typecheck walks every expression in prog, verifying static types against
// spec.md §4.A's coercion rules and the taxonomy of §7 TypeError variants.
// Declared types are never rewritten (WDL requires explicit types
// everywhere); each initializer is validated against its declared type.
func Typecheck(prog *Program, stdlib StdlibSignatures) error {
	tc := &typechecker{prog: prog, stdlib: stdlib}
	global := NewScope(nil)
	for _, d := range prog.Workflow.Inputs {
		global.Bind(d.Name, d.Type)
	}
	if err := tc.checkDecls(prog.Workflow.Inputs, global, true); err != nil {
		return err
	}
	if err := tc.checkElements(prog.Workflow.Body, global); err != nil {
		return err
	}
	outScope := tc.bodyScope(prog.Workflow.Body, global)
	if err := tc.checkDecls(prog.Workflow.Outputs, outScope, false); err != nil {
		return err
	}

	for _, task := range prog.Tasks {
		if err := tc.checkTask(task); err != nil {
			return err
		}
	}
	return nil
}

type typechecker struct {
	prog   *Program
	stdlib StdlibSignatures
}

func (tc *typechecker) checkTask(task *Task) error {
	scope := NewScope(nil)
	for _, d := range task.Inputs {
		scope.Bind(d.Name, d.Type)
	}
	if err := tc.checkDecls(task.Inputs, scope, true); err != nil {
		return err
	}
	for _, d := range task.Decls {
		scope.Bind(d.Name, d.Type)
	}
	if err := tc.checkDecls(task.Decls, scope, false); err != nil {
		return err
	}
	for _, p := range task.Command {
		if p.Expr != nil {
			if _, err := tc.infer(p.Expr, scope); err != nil {
				return err
			}
		}
	}
	for _, e := range task.Runtime {
		if _, err := tc.infer(e, scope); err != nil {
			return err
		}
	}
	outScope := NewScope(scope)
	outScope.Bind("stdout", types.Prim(types.File))
	outScope.Bind("stderr", types.Prim(types.File))
	for _, d := range task.Outputs {
		outScope.Bind(d.Name, d.Type)
	}
	return tc.checkDecls(task.Outputs, outScope, false)
}

// checkDecls validates each declaration's initializer expression (if any)
// is assignable to its declared type; allowUnbound permits input decls to
// have no initializer.
func (tc *typechecker) checkDecls(decls []*Decl, scope *Scope, allowUnbound bool) error {
	for _, d := range decls {
		if d.Expr == nil {
			if !allowUnbound && !d.Type.Optional {
				return errs.New(errs.KindType, d.Pos, "declaration %q requires an initializer", d.Name)
			}
			continue
		}
		actual, err := tc.infer(d.Expr, scope)
		if err != nil {
			return err
		}
		if res := types.Coerce(actual, d.Type, types.QuantStrict); res.Verdict == types.Err {
			return errs.Typef(errs.StaticTypeMismatch, d.Pos, "cannot assign %s to %s %q: %s", actual, d.Type, d.Name, res.Reason)
		}
	}
	return nil
}

func (tc *typechecker) checkElements(els []Element, scope *Scope) error {
	cur := scope
	for _, el := range els {
		switch {
		case el.Decl != nil:
			if _, bound := cur.Lookup(el.Decl.Name); bound {
				return errs.Typef(errs.NameCollision, el.Decl.Pos, "identifier %q already bound in this scope", el.Decl.Name)
			}
			if el.Decl.Expr != nil {
				actual, err := tc.infer(el.Decl.Expr, cur)
				if err != nil {
					return err
				}
				if res := types.Coerce(actual, el.Decl.Type, types.QuantStrict); res.Verdict == types.Err {
					return errs.Typef(errs.StaticTypeMismatch, el.Decl.Pos, "cannot assign %s to %s %q: %s", actual, el.Decl.Type, el.Decl.Name, res.Reason)
				}
			}
			next := NewScope(cur)
			next.Bind(el.Decl.Name, el.Decl.Type)
			cur = next

		case el.Call != nil:
			if err := tc.checkCall(el.Call, cur); err != nil {
				return err
			}
			next := NewScope(cur)
			next.Bind(el.Call.Alias, callOutputsType(el.Call.Task))
			cur = next

		case el.Scatter != nil:
			arrT, err := tc.infer(el.Scatter.Expr, cur)
			if err != nil {
				return err
			}
			if arrT.Kind != types.Array {
				return errs.Typef(errs.StaticTypeMismatch, el.Scatter.Pos, "scatter expression must be an Array, got %s", arrT)
			}
			el.Scatter.ItemType = arrT.Item
			inner := NewScope(cur)
			inner.Bind(el.Scatter.Var, arrT.Item)
			if err := tc.checkElements(el.Scatter.Body, inner); err != nil {
				return err
			}
			next := NewScope(cur)
			lifted := tc.bodyScope(el.Scatter.Body, inner)
			for _, name := range directBindings(el.Scatter.Body) {
				t, _ := lifted.Lookup(name)
				next.Bind(name, types.NewArray(t, false))
			}
			cur = next

		case el.Conditional != nil:
			condT, err := tc.infer(el.Conditional.Expr, cur)
			if err != nil {
				return err
			}
			if condT.Kind != types.Boolean {
				return errs.Typef(errs.StaticTypeMismatch, el.Conditional.Pos, "if condition must be Boolean, got %s", condT)
			}
			inner := NewScope(cur)
			if err := tc.checkElements(el.Conditional.Body, inner); err != nil {
				return err
			}
			next := NewScope(cur)
			lifted := tc.bodyScope(el.Conditional.Body, inner)
			for _, name := range directBindings(el.Conditional.Body) {
				t, _ := lifted.Lookup(name)
				next.Bind(name, t.AsOptional())
			}
			cur = next
		}
	}
	return nil
}

// bodyScope returns the scope as it stands after executing els from base
// (used to read back the types introduced by nested decls/calls for
// lifting through scatter/conditional).
func (tc *typechecker) bodyScope(els []Element, base *Scope) *Scope {
	cur := base
	for _, el := range els {
		switch {
		case el.Decl != nil:
			next := NewScope(cur)
			next.Bind(el.Decl.Name, el.Decl.Type)
			cur = next
		case el.Call != nil:
			next := NewScope(cur)
			next.Bind(el.Call.Alias, callOutputsType(el.Call.Task))
			cur = next
		case el.Scatter != nil:
			next := NewScope(cur)
			inner := NewScope(cur)
			if el.Scatter.ItemType != nil {
				inner.Bind(el.Scatter.Var, el.Scatter.ItemType)
			}
			lifted := tc.bodyScope(el.Scatter.Body, inner)
			for _, name := range directBindings(el.Scatter.Body) {
				t, _ := lifted.Lookup(name)
				next.Bind(name, types.NewArray(t, false))
			}
			cur = next
		case el.Conditional != nil:
			next := NewScope(cur)
			lifted := tc.bodyScope(el.Conditional.Body, cur)
			for _, name := range directBindings(el.Conditional.Body) {
				t, _ := lifted.Lookup(name)
				next.Bind(name, t.AsOptional())
			}
			cur = next
		}
	}
	return cur
}

// directBindings lists the names directly introduced at this body level
// (decl names and call aliases), for gather-node lifting.
func directBindings(els []Element) []string {
	var out []string
	for _, el := range els {
		switch {
		case el.Decl != nil:
			out = append(out, el.Decl.Name)
		case el.Call != nil:
			out = append(out, el.Call.Alias)
		case el.Scatter != nil:
			out = append(out, directBindings(el.Scatter.Body)...)
		case el.Conditional != nil:
			out = append(out, directBindings(el.Conditional.Body)...)
		}
	}
	return out
}

// callOutputsType represents a completed call's outputs as a struct-shaped
// type so `call_name.output_name` typechecks as member access.
func callOutputsType(task *Task) *types.Type {
	members := make([]types.StructMember, 0, len(task.Outputs))
	for _, o := range task.Outputs {
		members = append(members, types.StructMember{Name: o.Name, Type: o.Type})
	}
	return types.NewStruct(task.Name, members)
}

func (tc *typechecker) checkCall(c *Call, scope *Scope) error {
	bound := map[string]bool{}
	for name, expr := range c.Inputs {
		bound[name] = true
		var e *parser.Expr = expr
		if e == nil {
			// `input: x` shorthand means x = x (outer variable of the
			// same name).
			e = &parser.Expr{Kind: parser.ExprIdent, Name: name, Pos: c.Pos}
		}
		actual, err := tc.infer(e, scope)
		if err != nil {
			return err
		}
		decl := findInput(c.Task, name)
		if decl == nil {
			return errs.Typef(errs.NoSuchMember, c.Pos, "task %q has no input %q", c.Task.Name, name)
		}
		if res := types.Coerce(actual, decl.Type, types.QuantStrict); res.Verdict == types.Err {
			return errs.Typef(errs.StaticTypeMismatch, c.Pos, "call %s: input %q expects %s, got %s: %s", c.Alias, name, decl.Type, actual, res.Reason)
		}
	}
	for _, in := range c.Task.Inputs {
		if !in.Type.Optional && in.Expr == nil && !bound[in.Name] {
			return errs.New(errs.KindInput, c.Pos, "call %s: missing required input %q", c.Alias, in.Name)
		}
	}
	return nil
}

func findInput(task *Task, name string) *Decl {
	for _, d := range task.Inputs {
		if d.Name == name {
			return d
		}
	}
	return nil
}
