package stdlib

import (
	"fmt"
	"math"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

func registerMath(r *Registry) {
	numericUnary := func(name string, f func(float64) float64, intResult bool) {
		r.register(name, ast.FuncSig{
			Params: []*types.Type{prim(types.Float)},
			Infer: func(args []*types.Type) (*types.Type, error) {
				if intResult {
					return prim(types.Int), nil
				}
				return prim(types.Float), nil
			},
		}, func(args []values.Value, pm PathMapper) (values.Value, error) {
			x, err := asFloat(args[0])
			if err != nil {
				return values.Value{}, err
			}
			res := f(x)
			if intResult {
				return values.NewInt(int64(res)), nil
			}
			return values.NewFloat(res), nil
		})
	}

	numericUnary("floor", math.Floor, true)
	numericUnary("ceil", math.Ceil, true)
	numericUnary("round", math.Round, true)

	r.register("min", ast.FuncSig{
		Params: []*types.Type{prim(types.Float), prim(types.Float)},
		Infer: func(args []*types.Type) (*types.Type, error) {
			if args[0].Kind == types.Int && args[1].Kind == types.Int {
				return prim(types.Int), nil
			}
			return prim(types.Float), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		return minMax(args, false)
	})
	r.register("max", ast.FuncSig{
		Params: []*types.Type{prim(types.Float), prim(types.Float)},
		Infer: func(args []*types.Type) (*types.Type, error) {
			if args[0].Kind == types.Int && args[1].Kind == types.Int {
				return prim(types.Int), nil
			}
			return prim(types.Float), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		return minMax(args, true)
	})

	r.register("length", ast.FuncSig{
		Params: []*types.Type{types.AnyT()},
		Ret:    prim(types.Int),
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		return values.NewInt(int64(lengthOf(args[0]))), nil
	})

	r.register("range", ast.FuncSig{
		Params: []*types.Type{prim(types.Int)},
		Ret:    arr(prim(types.Int)),
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		n := args[0].Int
		if n < 0 {
			return values.Value{}, fmt.Errorf("range: negative length %d", n)
		}
		elems := make([]values.Value, n)
		for i := int64(0); i < n; i++ {
			elems[i] = values.NewInt(i)
		}
		return values.NewArray(prim(types.Int), false, elems), nil
	})
}

func asFloat(v values.Value) (float64, error) {
	switch v.Type.Kind {
	case types.Int:
		return float64(v.Int), nil
	case types.Float:
		return v.Float, nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %s", v.Type)
	}
}

func minMax(args []values.Value, wantMax bool) (values.Value, error) {
	a, err := asFloat(args[0])
	if err != nil {
		return values.Value{}, err
	}
	b, err := asFloat(args[1])
	if err != nil {
		return values.Value{}, err
	}
	bothInt := args[0].Type.Kind == types.Int && args[1].Type.Kind == types.Int
	pick := a
	if (wantMax && b > a) || (!wantMax && b < a) {
		pick = b
	}
	if bothInt {
		return values.NewInt(int64(pick)), nil
	}
	return values.NewFloat(pick), nil
}

func lengthOf(v values.Value) int {
	switch v.Type.Kind {
	case types.Array:
		return len(v.Arr)
	case types.Map:
		if v.M == nil {
			return 0
		}
		return v.M.Len()
	case types.String:
		return len(v.Str)
	default:
		return 0
	}
}
