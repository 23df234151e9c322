package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/parser"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

func lit(kind parser.LiteralKind, i int64, f float64, s string, b bool) *parser.Expr {
	return &parser.Expr{Kind: parser.ExprLiteral, LitKind: kind, IntV: i, FloatV: f, StrV: s, BoolV: b}
}

func intLit(i int64) *parser.Expr    { return lit(parser.LitInt, i, 0, "", false) }
func floatLit(f float64) *parser.Expr { return lit(parser.LitFloat, 0, f, "", false) }
func strLit(s string) *parser.Expr   { return lit(parser.LitString, 0, 0, s, false) }

func bin(op string, l, r *parser.Expr) *parser.Expr {
	return &parser.Expr{Kind: parser.ExprBinary, BinOp: op, LHS: l, RHS: r}
}

func TestArithmeticPromotion(t *testing.T) {
	ev := New(nil, nil)

	v, err := ev.Eval(bin("+", intLit(2), intLit(3)), env.Empty(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.Int, v.Type.Kind)
	assert.Equal(t, int64(5), v.Int)

	v, err = ev.Eval(bin("+", intLit(2), floatLit(0.5)), env.Empty(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.Float, v.Type.Kind)
	assert.Equal(t, 2.5, v.Float)
}

func TestDivisionAndModuloByZero(t *testing.T) {
	ev := New(nil, nil)
	_, err := ev.Eval(bin("/", intLit(1), intLit(0)), env.Empty(), nil)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.KindEval, e.Kind)

	_, err = ev.Eval(bin("%", intLit(1), intLit(0)), env.Empty(), nil)
	require.Error(t, err)
}

func TestStringConcatenation(t *testing.T) {
	ev := New(nil, nil)
	v, err := ev.Eval(bin("+", strLit("n="), intLit(7)), env.Empty(), nil)
	require.NoError(t, err)
	assert.Equal(t, "n=7", v.Str)
}

func TestTernary(t *testing.T) {
	ev := New(nil, nil)
	e := &parser.Expr{Kind: parser.ExprTernary, Cond: lit(parser.LitBool, 0, 0, "", true), Then: strLit("yes"), Else: strLit("no")}
	v, err := ev.Eval(e, env.Empty(), nil)
	require.NoError(t, err)
	assert.Equal(t, "yes", v.Str)
}

func TestInterpolatedString(t *testing.T) {
	ev := New(nil, nil)
	e := &parser.Expr{
		Kind: parser.ExprInterpolatedString,
		Parts: []parser.InterpPart{
			{Literal: "count="},
			{Expr: intLit(4), Sep: "~{"},
			{Literal: "!"},
		},
	}
	v, err := ev.Eval(e, env.Empty(), nil)
	require.NoError(t, err)
	assert.Equal(t, "count=4!", v.Str)
}

func TestMemberBroadcastThroughArray(t *testing.T) {
	ev := New(nil, nil)
	memberT := []types.StructMember{{Name: "out", Type: types.Prim(types.String)}}
	s1 := values.NewStruct("Greeting", []values.Field{{Name: "out", Value: values.NewString("hi")}}, memberT)
	s2 := values.NewStruct("Greeting", []values.Field{{Name: "out", Value: values.NewString("bye")}}, memberT)
	arr := values.NewArray(s1.Type, false, []values.Value{s1, s2})

	e := &parser.Expr{Kind: parser.ExprMember, Object: &parser.Expr{Kind: parser.ExprIdent, Name: "greet"}, Member: "out"}
	en := env.Empty().Bind("greet", arr)
	v, err := ev.Eval(e, en, nil)
	require.NoError(t, err)
	require.Equal(t, types.Array, v.Type.Kind)
	require.Len(t, v.Arr, 2)
	assert.Equal(t, "hi", v.Arr[0].Str)
	assert.Equal(t, "bye", v.Arr[1].Str)
}

func TestApplyStdlibLength(t *testing.T) {
	reg := stdlib.Default()
	ev := New(reg, nil)
	arrExpr := &parser.Expr{Kind: parser.ExprArray, Elems: []*parser.Expr{intLit(1), intLit(2), intLit(3)}}
	e := &parser.Expr{Kind: parser.ExprApply, FuncName: "length", Args: []*parser.Expr{arrExpr}}
	v, err := ev.Eval(e, env.Empty(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Int)
}

func TestCoerceIntToFloatAndString(t *testing.T) {
	f, err := Coerce(values.NewInt(2), types.Prim(types.Float))
	require.NoError(t, err)
	assert.Equal(t, 2.0, f.Float)

	s, err := Coerce(values.NewInt(2), types.Prim(types.String))
	require.NoError(t, err)
	assert.Equal(t, "2", s.Str)
}

func TestEvalDeclAbsentWithoutInitializer(t *testing.T) {
	ev := New(nil, nil)
	d := &ast.Decl{Name: "x", Type: types.Prim(types.Int).AsOptional()}
	v, err := ev.EvalDecl(d, env.Empty(), nil)
	require.NoError(t, err)
	assert.True(t, v.Absent)
}
