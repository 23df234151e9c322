// Package eval implements expression evaluation over the parsed AST: the
// runtime counterpart to internal/ast's static typechecker, sharing the same
// node-kind switch shape (spec.md §9's polymorphic-AST redesign note) so the
// two stay easy to read side by side.
package eval

import (
	"math"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Evaluator bundles the capabilities expression evaluation needs: the
// function registry for Apply nodes and the struct table for StructLiteral
// nodes. It holds no per-call state — a PathMapper is supplied by the
// caller on every Eval/EvalDecl call (see pm below), because one Evaluator
// is shared across every concurrently-dispatched call in a run (spec.md
// §5) and a struct field would race across them.
type Evaluator struct {
	Stdlib  *stdlib.Registry
	Structs map[string]*types.Type // struct name -> type, from ast.Program
}

// New builds an Evaluator. prog may be nil for tests that don't exercise
// struct literals.
func New(reg *stdlib.Registry, prog *ast.Program) *Evaluator {
	ev := &Evaluator{Stdlib: reg}
	if prog != nil {
		ev.Structs = prog.Structs
	}
	return ev
}

// Eval evaluates an expression node against the given binding environment.
// pm resolves the PathMapper-backed stdlib functions (write_lines,
// write_json, size, glob, stdout, stderr, ...) an Apply node anywhere
// beneath e may call; pass nil where no attempt work directory exists yet
// (workflow-level input/scatter/conditional evaluation, runtime{}
// evaluation before staging) and the task attempt's *task.AttemptPaths
// for everything evaluated during an attempt (spec.md §4.J phases 1-7).
func (ev *Evaluator) Eval(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	switch e.Kind {
	case parser.ExprLiteral:
		return ev.evalLiteral(e)

	case parser.ExprInterpolatedString:
		return ev.evalInterpolated(e, en, pm)

	case parser.ExprArray:
		return ev.evalArray(e, en, pm)

	case parser.ExprMap:
		return ev.evalMap(e, en, pm)

	case parser.ExprPair:
		l, err := ev.Eval(e.Left, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		r, err := ev.Eval(e.Right, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		return values.NewPair(l, r), nil

	case parser.ExprObject:
		return ev.evalObject(e, en, pm)

	case parser.ExprStructLiteral:
		return ev.evalStructLiteral(e, en, pm)

	case parser.ExprIdent:
		v, ok := en.Lookup(e.Name)
		if !ok {
			return values.Value{}, errs.Typef(errs.ForwardReference, e.Pos, "undefined identifier %q", e.Name)
		}
		return v, nil

	case parser.ExprMember:
		obj, err := ev.Eval(e.Object, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		return selectMember(e.Pos, obj, e.Member)

	case parser.ExprIndex:
		return ev.evalIndex(e, en, pm)

	case parser.ExprUnary:
		return ev.evalUnary(e, en, pm)

	case parser.ExprBinary:
		return ev.evalBinary(e, en, pm)

	case parser.ExprTernary:
		cond, err := ev.Eval(e.Cond, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		if cond.Bool {
			return ev.Eval(e.Then, en, pm)
		}
		return ev.Eval(e.Else, en, pm)

	case parser.ExprApply:
		return ev.evalApply(e, en, pm)
	}
	return values.Value{}, errs.New(errs.KindEval, e.Pos, "internal: unhandled expression kind")
}

func (ev *Evaluator) evalLiteral(e *parser.Expr) (values.Value, error) {
	switch e.LitKind {
	case parser.LitBool:
		return values.NewBool(e.BoolV), nil
	case parser.LitInt:
		return values.NewInt(e.IntV), nil
	case parser.LitFloat:
		return values.NewFloat(e.FloatV), nil
	case parser.LitString:
		return values.NewString(e.StrV), nil
	case parser.LitNull:
		return values.Absent(types.AnyT()), nil
	}
	return values.Value{}, errs.New(errs.KindEval, e.Pos, "internal: bad literal kind")
}

func (ev *Evaluator) evalInterpolated(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	var sb []byte
	for _, part := range e.Parts {
		sb = append(sb, part.Literal...)
		if part.Expr == nil {
			continue
		}
		v, err := ev.Eval(part.Expr, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		if v.Absent {
			continue // null placeholder renders as empty string (no sep/default option in this grammar)
		}
		sb = append(sb, values.Render(v)...)
	}
	return values.NewString(string(sb)), nil
}

func (ev *Evaluator) evalArray(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	elems := make([]values.Value, len(e.Elems))
	var itemT *types.Type
	for i, el := range e.Elems {
		v, err := ev.Eval(el, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		elems[i] = v
		if itemT == nil && !v.Absent {
			itemT = v.Type
		}
	}
	if itemT == nil {
		itemT = types.AnyT()
	}
	return values.NewArray(itemT, len(elems) > 0, elems), nil
}

func (ev *Evaluator) evalMap(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	m := values.NewOrderedMap()
	var keyT, valT *types.Type
	for i := range e.MapKeys {
		k, err := ev.Eval(e.MapKeys[i], en, pm)
		if err != nil {
			return values.Value{}, err
		}
		v, err := ev.Eval(e.MapVals[i], en, pm)
		if err != nil {
			return values.Value{}, err
		}
		if keyT == nil {
			keyT, valT = k.Type, v.Type
		}
		m.Put(k, v)
	}
	if keyT == nil {
		keyT, valT = types.AnyT(), types.AnyT()
	}
	return values.NewMap(keyT, valT, m), nil
}

func (ev *Evaluator) evalObject(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	fields := make([]values.Field, len(e.FieldNames))
	members := make([]types.StructMember, len(e.FieldNames))
	for i, name := range e.FieldNames {
		v, err := ev.Eval(e.FieldVals[i], en, pm)
		if err != nil {
			return values.Value{}, err
		}
		fields[i] = values.Field{Name: name, Value: v}
		members[i] = types.StructMember{Name: name, Type: v.Type}
	}
	return values.Value{Type: &types.Type{Kind: types.Object, Members: members}, Fields: fields}, nil
}

func (ev *Evaluator) evalStructLiteral(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	st := ev.Structs[e.StructName]
	if st == nil {
		return values.Value{}, errs.New(errs.KindEval, e.Pos, "unknown struct %q", e.StructName)
	}
	fields := make([]values.Field, len(e.FieldNames))
	for i, name := range e.FieldNames {
		v, err := ev.Eval(e.FieldVals[i], en, pm)
		if err != nil {
			return values.Value{}, err
		}
		if mt := st.MemberType(name); mt != nil {
			v, err = Coerce(v, mt)
			if err != nil {
				return values.Value{}, errs.Wrap(errs.KindEval, err, "struct %s member %s", e.StructName, name)
			}
		}
		fields[i] = values.Field{Name: name, Value: v}
	}
	return values.Value{Type: st, Fields: fields}, nil
}

// selectMember resolves `.member` against a runtime value, broadcasting
// through Array wrapping the way a call's output type does when that call
// sits inside a scatter (spec.md §4.H). An absent optional broadcasts to an
// absent member value of the same resolved type, rather than erroring.
func selectMember(pos errs.Pos, obj values.Value, member string) (values.Value, error) {
	if obj.Type != nil && obj.Type.Kind == types.Array {
		out := make([]values.Value, len(obj.Arr))
		var itemT *types.Type
		for i, el := range obj.Arr {
			v, err := selectMember(pos, el, member)
			if err != nil {
				return values.Value{}, err
			}
			out[i] = v
			if itemT == nil {
				itemT = v.Type
			}
		}
		if itemT == nil {
			itemT = types.AnyT()
		}
		return values.NewArray(itemT, false, out), nil
	}
	if obj.Absent {
		base := obj.Type.AsRequired()
		mt, err := memberTypeOf(pos, base, member)
		if err != nil {
			return values.Value{}, err
		}
		return values.Absent(mt), nil
	}
	switch obj.Type.Kind {
	case types.Pair:
		switch member {
		case "left":
			return *obj.PL, nil
		case "right":
			return *obj.PR, nil
		}
		return values.Value{}, errs.Typef(errs.NoSuchMember, pos, "Pair has no member %q", member)
	case types.StructInstance, types.Object:
		v, ok := obj.Member(member)
		if !ok {
			return values.Value{}, errs.Typef(errs.NoSuchMember, pos, "%s has no member %q", obj.Type, member)
		}
		return v, nil
	}
	return values.Value{}, errs.Typef(errs.NoSuchMember, pos, "cannot access member %q on %s", member, obj.Type)
}

func memberTypeOf(pos errs.Pos, base *types.Type, member string) (*types.Type, error) {
	switch base.Kind {
	case types.Pair:
		switch member {
		case "left":
			return base.Left, nil
		case "right":
			return base.Right, nil
		}
		return nil, errs.Typef(errs.NoSuchMember, pos, "Pair has no member %q", member)
	case types.StructInstance, types.Object:
		if mt := base.MemberType(member); mt != nil {
			return mt, nil
		}
		for _, m := range base.Members {
			if m.Name == member {
				return m.Type, nil
			}
		}
	}
	return nil, errs.Typef(errs.NoSuchMember, pos, "cannot access member %q on %s", member, base)
}

func (ev *Evaluator) evalIndex(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	obj, err := ev.Eval(e.Object, en, pm)
	if err != nil {
		return values.Value{}, err
	}
	idx, err := ev.Eval(e.Index, en, pm)
	if err != nil {
		return values.Value{}, err
	}
	switch obj.Type.Kind {
	case types.Array:
		i := idx.Int
		if i < 0 || int(i) >= len(obj.Arr) {
			return values.Value{}, errs.New(errs.KindEval, e.Pos, "array index %d out of bounds (length %d)", i, len(obj.Arr))
		}
		return obj.Arr[i], nil
	case types.Map:
		v, ok := obj.M.Get(idx)
		if !ok {
			return values.Value{}, errs.New(errs.KindEval, e.Pos, "map has no key %s", values.Render(idx))
		}
		return v, nil
	}
	return values.Value{}, errs.Typef(errs.IncompatibleOperand, e.Pos, "cannot index into %s", obj.Type)
}

func (ev *Evaluator) evalUnary(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	v, err := ev.Eval(e.Arg, en, pm)
	if err != nil {
		return values.Value{}, err
	}
	switch e.Op {
	case "!":
		return values.NewBool(!v.Bool), nil
	case "-":
		if v.Type.Kind == types.Int {
			return values.NewInt(-v.Int), nil
		}
		return values.NewFloat(-v.Float), nil
	case "+":
		return v, nil
	}
	return values.Value{}, errs.New(errs.KindEval, e.Pos, "internal: unknown unary operator %q", e.Op)
}

func (ev *Evaluator) evalBinary(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	l, err := ev.Eval(e.LHS, en, pm)
	if err != nil {
		return values.Value{}, err
	}

	switch e.BinOp {
	case "&&":
		if !l.Bool {
			return values.NewBool(false), nil
		}
		r, err := ev.Eval(e.RHS, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		return values.NewBool(r.Bool), nil
	case "||":
		if l.Bool {
			return values.NewBool(true), nil
		}
		r, err := ev.Eval(e.RHS, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		return values.NewBool(r.Bool), nil
	}

	r, err := ev.Eval(e.RHS, en, pm)
	if err != nil {
		return values.Value{}, err
	}

	switch e.BinOp {
	case "==":
		return values.NewBool(values.Equal(l, r)), nil
	case "!=":
		return values.NewBool(!values.Equal(l, r)), nil
	case "<", "<=", ">", ">=":
		return compareValues(e.Pos, e.BinOp, l, r)
	case "+":
		if l.Type.Kind == types.String || r.Type.Kind == types.String ||
			l.Type.Kind == types.File || r.Type.Kind == types.File {
			return values.NewString(values.Render(l) + values.Render(r)), nil
		}
		return arith(e.Pos, "+", l, r)
	case "-", "*", "/", "%":
		return arith(e.Pos, e.BinOp, l, r)
	}
	return values.Value{}, errs.New(errs.KindEval, e.Pos, "internal: unknown binary operator %q", e.BinOp)
}

func compareValues(pos errs.Pos, op string, l, r values.Value) (values.Value, error) {
	if l.Type.Kind == types.String && r.Type.Kind == types.String {
		return values.NewBool(cmpStrings(op, l.Str, r.Str)), nil
	}
	lf, rf := toFloat(l), toFloat(r)
	switch op {
	case "<":
		return values.NewBool(lf < rf), nil
	case "<=":
		return values.NewBool(lf <= rf), nil
	case ">":
		return values.NewBool(lf > rf), nil
	case ">=":
		return values.NewBool(lf >= rf), nil
	}
	return values.Value{}, errs.New(errs.KindEval, pos, "internal: unknown comparison operator %q", op)
}

func cmpStrings(op, a, b string) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func toFloat(v values.Value) float64 {
	if v.Type.Kind == types.Int {
		return float64(v.Int)
	}
	return v.Float
}

func arith(pos errs.Pos, op string, l, r values.Value) (values.Value, error) {
	if l.Type.Kind == types.Int && r.Type.Kind == types.Int {
		switch op {
		case "+":
			return values.NewInt(l.Int + r.Int), nil
		case "-":
			return values.NewInt(l.Int - r.Int), nil
		case "*":
			return values.NewInt(l.Int * r.Int), nil
		case "/":
			if r.Int == 0 {
				return values.Value{}, errs.New(errs.KindEval, pos, "division by zero")
			}
			return values.NewInt(l.Int / r.Int), nil
		case "%":
			if r.Int == 0 {
				return values.Value{}, errs.New(errs.KindEval, pos, "modulo by zero")
			}
			return values.NewInt(l.Int % r.Int), nil
		}
	}
	lf, rf := toFloat(l), toFloat(r)
	switch op {
	case "+":
		return values.NewFloat(lf + rf), nil
	case "-":
		return values.NewFloat(lf - rf), nil
	case "*":
		return values.NewFloat(lf * rf), nil
	case "/":
		if rf == 0 {
			return values.Value{}, errs.New(errs.KindEval, pos, "division by zero")
		}
		return values.NewFloat(lf / rf), nil
	case "%":
		if rf == 0 {
			return values.Value{}, errs.New(errs.KindEval, pos, "modulo by zero")
		}
		return values.NewFloat(math.Mod(lf, rf)), nil
	}
	return values.Value{}, errs.New(errs.KindEval, pos, "internal: unknown arithmetic operator %q", op)
}

func (ev *Evaluator) evalApply(e *parser.Expr, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	args := make([]values.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := ev.Eval(a, en, pm)
		if err != nil {
			return values.Value{}, err
		}
		args[i] = v
	}
	if ev.Stdlib == nil {
		return values.Value{}, errs.Typef(errs.NoSuchFunction, e.Pos, "no function registry configured for %q", e.FuncName)
	}
	return ev.Stdlib.Call(e.FuncName, e.Pos, args, pm)
}

// EvalDecl evaluates a declaration's initializer (if any) and coerces the
// result into the declaration's static type, the step every Decl node in
// internal/ast.Program.Workflow/Task goes through before being bound into
// the environment (internal/state drives this during workflow execution).
func (ev *Evaluator) EvalDecl(d *ast.Decl, en *env.Env, pm stdlib.PathMapper) (values.Value, error) {
	if d.Expr == nil {
		return values.Absent(d.Type), nil
	}
	v, err := ev.Eval(d.Expr, en, pm)
	if err != nil {
		return values.Value{}, err
	}
	return Coerce(v, d.Type)
}
