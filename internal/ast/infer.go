package ast

import (
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
	"github.com/go-wdl/wdlrun/internal/types"
)

func (tc *typechecker) infer(e *parser.Expr, scope *Scope) (*types.Type, error) {
	switch e.Kind {
	case parser.ExprLiteral:
		switch e.LitKind {
		case parser.LitBool:
			return types.Prim(types.Boolean), nil
		case parser.LitInt:
			return types.Prim(types.Int), nil
		case parser.LitFloat:
			return types.Prim(types.Float), nil
		case parser.LitString:
			return types.Prim(types.String), nil
		case parser.LitNull:
			return types.AnyT().AsOptional(), nil
		}
		return types.AnyT(), nil

	case parser.ExprInterpolatedString:
		for _, part := range e.Parts {
			if part.Expr != nil {
				if _, err := tc.infer(part.Expr, scope); err != nil {
					return nil, err
				}
			}
		}
		return types.Prim(types.String), nil

	case parser.ExprArray:
		if len(e.Elems) == 0 {
			return types.NewArray(types.AnyT(), false), nil
		}
		elemTypes := make([]*types.Type, 0, len(e.Elems))
		for _, el := range e.Elems {
			t, err := tc.infer(el, scope)
			if err != nil {
				return nil, err
			}
			elemTypes = append(elemTypes, t)
		}
		item, err := types.Unify(elemTypes)
		if err != nil {
			return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "array literal: %v", err)
		}
		return types.NewArray(item, true), nil

	case parser.ExprMap:
		if len(e.MapKeys) == 0 {
			return types.NewMap(types.AnyT(), types.AnyT()), nil
		}
		keyTypes := make([]*types.Type, len(e.MapKeys))
		valTypes := make([]*types.Type, len(e.MapVals))
		for i := range e.MapKeys {
			kt, err := tc.infer(e.MapKeys[i], scope)
			if err != nil {
				return nil, err
			}
			vt, err := tc.infer(e.MapVals[i], scope)
			if err != nil {
				return nil, err
			}
			keyTypes[i], valTypes[i] = kt, vt
		}
		k, err := types.Unify(keyTypes)
		if err != nil {
			return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "map literal keys: %v", err)
		}
		v, err := types.Unify(valTypes)
		if err != nil {
			return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "map literal values: %v", err)
		}
		return types.NewMap(k, v), nil

	case parser.ExprPair:
		l, err := tc.infer(e.Left, scope)
		if err != nil {
			return nil, err
		}
		r, err := tc.infer(e.Right, scope)
		if err != nil {
			return nil, err
		}
		return types.NewPair(l, r), nil

	case parser.ExprObject, parser.ExprStructLiteral:
		if e.Kind == parser.ExprStructLiteral {
			st, ok := tc.prog.Structs[e.StructName]
			if !ok {
				return nil, errs.New(errs.KindType, e.Pos, "unknown struct %q", e.StructName)
			}
			for i, name := range e.FieldNames {
				mt := st.MemberType(name)
				if mt == nil {
					return nil, errs.Typef(errs.NoSuchMember, e.Pos, "struct %q has no member %q", e.StructName, name)
				}
				actual, err := tc.infer(e.FieldVals[i], scope)
				if err != nil {
					return nil, err
				}
				if res := types.Coerce(actual, mt, types.QuantStrict); res.Verdict == types.Err {
					return nil, errs.Typef(errs.StaticTypeMismatch, e.Pos, "struct %s member %s: %s", e.StructName, name, res.Reason)
				}
			}
			return st, nil
		}
		members := make([]types.StructMember, 0, len(e.FieldNames))
		for i, name := range e.FieldNames {
			t, err := tc.infer(e.FieldVals[i], scope)
			if err != nil {
				return nil, err
			}
			members = append(members, types.StructMember{Name: name, Type: t})
		}
		return &types.Type{Kind: types.Object, Members: members}, nil

	case parser.ExprIdent:
		t, ok := scope.Lookup(e.Name)
		if !ok {
			return nil, errs.Typef(errs.ForwardReference, e.Pos, "undefined identifier %q", e.Name)
		}
		return t, nil

	case parser.ExprMember:
		obj, err := tc.infer(e.Object, scope)
		if err != nil {
			return nil, err
		}
		return memberType(e.Pos, obj, e.Member)

	case parser.ExprIndex:
		obj, err := tc.infer(e.Object, scope)
		if err != nil {
			return nil, err
		}
		idx, err := tc.infer(e.Index, scope)
		if err != nil {
			return nil, err
		}
		switch obj.Kind {
		case types.Array:
			if idx.Kind != types.Int {
				return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "array index must be Int, got %s", idx)
			}
			return obj.Item, nil
		case types.Map:
			if res := types.Coerce(idx, obj.Key, types.QuantStrict); res.Verdict == types.Err {
				return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "map index type mismatch: %s", res.Reason)
			}
			return obj.Value, nil
		default:
			return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "cannot index into %s", obj)
		}

	case parser.ExprUnary:
		t, err := tc.infer(e.Arg, scope)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "!":
			if t.Kind != types.Boolean {
				return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "! requires Boolean, got %s", t)
			}
			return types.Prim(types.Boolean), nil
		case "-", "+":
			if t.Kind != types.Int && t.Kind != types.Float {
				return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "unary %s requires a numeric type, got %s", e.Op, t)
			}
			return t, nil
		}
		return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "unknown unary operator %q", e.Op)

	case parser.ExprBinary:
		return tc.inferBinary(e, scope)

	case parser.ExprTernary:
		condT, err := tc.infer(e.Cond, scope)
		if err != nil {
			return nil, err
		}
		if condT.Kind != types.Boolean {
			return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "ternary condition must be Boolean, got %s", condT)
		}
		thenT, err := tc.infer(e.Then, scope)
		if err != nil {
			return nil, err
		}
		elseT, err := tc.infer(e.Else, scope)
		if err != nil {
			return nil, err
		}
		return types.Unify([]*types.Type{thenT, elseT})

	case parser.ExprApply:
		return tc.inferApply(e, scope)
	}
	return nil, errs.New(errs.KindEval, e.Pos, "internal: unhandled expression kind")
}

func (tc *typechecker) inferBinary(e *parser.Expr, scope *Scope) (*types.Type, error) {
	l, err := tc.infer(e.LHS, scope)
	if err != nil {
		return nil, err
	}
	r, err := tc.infer(e.RHS, scope)
	if err != nil {
		return nil, err
	}
	switch e.BinOp {
	case "&&", "||":
		if l.Kind != types.Boolean || r.Kind != types.Boolean {
			return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "%s requires Boolean operands, got %s and %s", e.BinOp, l, r)
		}
		return types.Prim(types.Boolean), nil

	case "==", "!=":
		return types.Prim(types.Boolean), nil

	case "<", "<=", ">", ">=":
		if !isOrderable(l) || !isOrderable(r) {
			return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "%s requires numeric/String operands, got %s and %s", e.BinOp, l, r)
		}
		return types.Prim(types.Boolean), nil

	case "+":
		// String concatenation: either operand a String (or File) makes
		// the result a String, per spec.md §4.A's String-coercion rule.
		if l.Kind == types.String || r.Kind == types.String || l.Kind == types.File || r.Kind == types.File {
			if !isStringable(l) || !isStringable(r) {
				return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "+ cannot concatenate %s and %s", l, r)
			}
			return types.Prim(types.String), nil
		}
		return arithResult(e.Pos, l, r)

	case "-", "*", "/", "%":
		return arithResult(e.Pos, l, r)
	}
	return nil, errs.Typef(errs.IncompatibleOperand, e.Pos, "unknown binary operator %q", e.BinOp)
}

// memberType resolves `.member` against obj, broadcasting through the
// Array/optional wrappers a gather node introduces when a call sits inside
// a scatter (Array[Struct] -> Array[member]) or conditional
// (Struct? -> member?), per spec.md §4.H's lifting rule.
func memberType(pos errs.Pos, obj *types.Type, member string) (*types.Type, error) {
	if obj.Kind == types.Array {
		item, err := memberType(pos, obj.Item, member)
		if err != nil {
			return nil, err
		}
		return types.NewArray(item, false), nil
	}
	wasOptional := obj.Optional
	base := obj.AsRequired()
	if base.Kind == types.Pair {
		switch member {
		case "left":
			return rewrap(base.Left, wasOptional), nil
		case "right":
			return rewrap(base.Right, wasOptional), nil
		}
		return nil, errs.Typef(errs.NoSuchMember, pos, "Pair has no member %q", member)
	}
	if base.Kind == types.StructInstance || base.Kind == types.Object {
		mt := base.MemberType(member)
		if mt == nil {
			for _, m := range base.Members {
				if m.Name == member {
					mt = m.Type
				}
			}
		}
		if mt == nil {
			return nil, errs.Typef(errs.NoSuchMember, pos, "%s has no member %q", base, member)
		}
		return rewrap(mt, wasOptional), nil
	}
	return nil, errs.Typef(errs.NoSuchMember, pos, "cannot access member %q on %s", member, obj)
}

func rewrap(t *types.Type, optional bool) *types.Type {
	if optional {
		return t.AsOptional()
	}
	return t
}

func isOrderable(t *types.Type) bool {
	return t.Kind == types.Int || t.Kind == types.Float || t.Kind == types.String
}

func isStringable(t *types.Type) bool {
	switch t.Kind {
	case types.String, types.Int, types.Float, types.Boolean, types.File:
		return true
	}
	return false
}

func arithResult(pos errs.Pos, l, r *types.Type) (*types.Type, error) {
	if l.Kind == types.Int && r.Kind == types.Int {
		return types.Prim(types.Int), nil
	}
	if (l.Kind == types.Int || l.Kind == types.Float) && (r.Kind == types.Int || r.Kind == types.Float) {
		return types.Prim(types.Float), nil
	}
	return nil, errs.Typef(errs.IncompatibleOperand, pos, "arithmetic requires numeric operands, got %s and %s", l, r)
}

func (tc *typechecker) inferApply(e *parser.Expr, scope *Scope) (*types.Type, error) {
	argTypes := make([]*types.Type, len(e.Args))
	for i, a := range e.Args {
		t, err := tc.infer(a, scope)
		if err != nil {
			return nil, err
		}
		argTypes[i] = t
	}
	if tc.stdlib == nil {
		return types.AnyT(), nil
	}
	sig, ok := tc.stdlib.Lookup(e.FuncName)
	if !ok {
		return nil, errs.Typef(errs.NoSuchFunction, e.Pos, "no such function %q", e.FuncName)
	}
	if !sig.Variadic && len(argTypes) != len(sig.Params) {
		return nil, errs.Typef(errs.StaticTypeMismatch, e.Pos, "%s expects %d argument(s), got %d", e.FuncName, len(sig.Params), len(argTypes))
	}
	for i, at := range argTypes {
		var want *types.Type
		if i < len(sig.Params) {
			want = sig.Params[i]
		} else if sig.Variadic && len(sig.Params) > 0 {
			want = sig.Params[len(sig.Params)-1]
		}
		if want != nil && !types.IsAny(want) {
			if res := types.Coerce(at, want, types.QuantStrict); res.Verdict == types.Err {
				return nil, errs.Typef(errs.StaticTypeMismatch, e.Pos, "%s argument %d: %s", e.FuncName, i+1, res.Reason)
			}
		}
	}
	if sig.Infer != nil {
		return sig.Infer(argTypes)
	}
	return sig.Ret, nil
}
