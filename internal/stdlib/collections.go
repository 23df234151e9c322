package stdlib

import (
	"fmt"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

func registerCollections(r *Registry) {
	r.register("select_first", ast.FuncSig{
		Params: []*types.Type{arr(types.AnyT())},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return args[0].Item.AsRequired(), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		for _, e := range args[0].Arr {
			if !e.Absent {
				return e, nil
			}
		}
		return values.Value{}, fmt.Errorf("select_first: no non-null element in array")
	})

	r.register("select_all", ast.FuncSig{
		Params: []*types.Type{arr(types.AnyT())},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return arr(args[0].Item.AsRequired()), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		var out []values.Value
		for _, e := range args[0].Arr {
			if !e.Absent {
				out = append(out, e)
			}
		}
		itemT := args[0].Type.Item.AsRequired()
		return values.NewArray(itemT, false, out), nil
	})

	r.register("defined", ast.FuncSig{Params: []*types.Type{types.AnyT()}, Ret: prim(types.Boolean)},
		func(args []values.Value, pm PathMapper) (values.Value, error) {
			return values.NewBool(!args[0].Absent), nil
		})

	r.register("flatten", ast.FuncSig{
		Params: []*types.Type{arr(arr(types.AnyT()))},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return arr(args[0].Item.Item), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		var out []values.Value
		var itemT *types.Type
		for _, inner := range args[0].Arr {
			if itemT == nil {
				itemT = inner.Type.Item
			}
			out = append(out, inner.Arr...)
		}
		if itemT == nil {
			itemT = types.AnyT()
		}
		return values.NewArray(itemT, false, out), nil
	})

	r.register("zip", ast.FuncSig{
		Params: []*types.Type{arr(types.AnyT()), arr(types.AnyT())},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return arr(types.NewPair(args[0].Item, args[1].Item)), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		a, b := args[0].Arr, args[1].Arr
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		out := make([]values.Value, n)
		for i := 0; i < n; i++ {
			out[i] = values.NewPair(a[i], b[i])
		}
		return values.NewArray(types.NewPair(args[0].Type.Item, args[1].Type.Item), false, out), nil
	})

	r.register("cross", ast.FuncSig{
		Params: []*types.Type{arr(types.AnyT()), arr(types.AnyT())},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return arr(types.NewPair(args[0].Item, args[1].Item)), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		var out []values.Value
		for _, a := range args[0].Arr {
			for _, b := range args[1].Arr {
				out = append(out, values.NewPair(a, b))
			}
		}
		return values.NewArray(types.NewPair(args[0].Type.Item, args[1].Type.Item), false, out), nil
	})

	r.register("transpose", ast.FuncSig{
		Params: []*types.Type{arr(arr(types.AnyT()))},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return arr(arr(args[0].Item.Item)), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		rows := args[0].Arr
		if len(rows) == 0 {
			return values.NewArray(arr(types.AnyT()), false, nil), nil
		}
		cols := len(rows[0].Arr)
		itemT := rows[0].Type.Item
		out := make([]values.Value, cols)
		for c := 0; c < cols; c++ {
			var col []values.Value
			for _, row := range rows {
				if c >= len(row.Arr) {
					return values.Value{}, fmt.Errorf("transpose: ragged array")
				}
				col = append(col, row.Arr[c])
			}
			out[c] = values.NewArray(itemT, false, col)
		}
		return values.NewArray(arr(itemT), false, out), nil
	})

	r.register("as_pairs", ast.FuncSig{
		Params: []*types.Type{mapT(types.AnyT(), types.AnyT())},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return arr(types.NewPair(args[0].Key, args[0].Value)), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		var out []values.Value
		if args[0].M != nil {
			ks, vs := args[0].M.Pairs()
			for i := range ks {
				out = append(out, values.NewPair(ks[i], vs[i]))
			}
		}
		return values.NewArray(types.NewPair(args[0].Type.Key, args[0].Type.Value), false, out), nil
	})

	r.register("as_map", ast.FuncSig{
		Params: []*types.Type{arr(types.NewPair(types.AnyT(), types.AnyT()))},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return mapT(args[0].Item.Left, args[0].Item.Right), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		m := values.NewOrderedMap()
		for _, pair := range args[0].Arr {
			m.Put(*pair.PL, *pair.PR)
		}
		return values.NewMap(args[0].Type.Item.Left, args[0].Type.Item.Right, m), nil
	})

	r.register("keys", ast.FuncSig{
		Params: []*types.Type{mapT(types.AnyT(), types.AnyT())},
		Infer:  func(args []*types.Type) (*types.Type, error) { return arr(args[0].Key), nil },
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		var out []values.Value
		if args[0].M != nil {
			ks, _ := args[0].M.Pairs()
			out = ks
		}
		return values.NewArray(args[0].Type.Key, false, out), nil
	})

	r.register("collect_by_key", ast.FuncSig{
		Params: []*types.Type{arr(types.NewPair(types.AnyT(), types.AnyT()))},
		Infer: func(args []*types.Type) (*types.Type, error) {
			return mapT(args[0].Item.Left, arr(args[0].Item.Right)), nil
		},
	}, func(args []values.Value, pm PathMapper) (values.Value, error) {
		m := values.NewOrderedMap()
		for _, pair := range args[0].Arr {
			k, v := *pair.PL, *pair.PR
			if existing, ok := m.Get(k); ok {
				existing.Arr = append(existing.Arr, v)
				m.Put(k, existing)
			} else {
				m.Put(k, values.NewArray(v.Type, false, []values.Value{v}))
			}
		}
		return values.NewMap(args[0].Type.Item.Left, arr(args[0].Type.Item.Right), m), nil
	})
}
