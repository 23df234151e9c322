package eval

import (
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Coerce converts a value into the shape required by a target type,
// mirroring types.Coerce's verdicts (spec.md §4.A) but producing the
// converted runtime Value rather than a verdict. Callers (Decl binding,
// call-input binding, struct-literal fields) have already statically
// verified the coercion is legal; this only performs the conversion that
// verdict implies.
func Coerce(v values.Value, to *types.Type) (values.Value, error) {
	if to == nil || types.IsAny(to) {
		return v, nil
	}
	if v.Absent {
		return values.Absent(to), nil
	}
	out, err := coerceRequired(v, to.AsRequired())
	if err != nil {
		return values.Value{}, err
	}
	if to.Optional {
		out.Type = out.Type.AsOptional()
	}
	return out, nil
}

func coerceRequired(v values.Value, to *types.Type) (values.Value, error) {
	from := v.Type.AsRequired()

	switch {
	case types.Equal(from, to):
		return v, nil

	case from.Kind == types.Int && to.Kind == types.Float:
		return values.NewFloat(float64(v.Int)), nil

	case to.Kind == types.String && (from.Kind == types.Int || from.Kind == types.Float || from.Kind == types.Boolean || from.Kind == types.File):
		return values.NewString(values.Render(v)), nil

	case from.Kind == types.String && to.Kind == types.File:
		return values.NewFile(v.Str), nil

	case from.Kind == types.String && to.Kind == types.Directory:
		return values.NewDirectory(v.Str), nil

	case from.Kind == types.Array && to.Kind == types.Array:
		out := make([]values.Value, len(v.Arr))
		for i, e := range v.Arr {
			ce, err := Coerce(e, to.Item)
			if err != nil {
				return values.Value{}, err
			}
			out[i] = ce
		}
		return values.NewArray(to.Item, to.Nonempty, out), nil

	case from.Kind == types.Map && to.Kind == types.Map:
		m := values.NewOrderedMap()
		if v.M != nil {
			ks, vs := v.M.Pairs()
			for i := range ks {
				ck, err := Coerce(ks[i], to.Key)
				if err != nil {
					return values.Value{}, err
				}
				cv, err := Coerce(vs[i], to.Value)
				if err != nil {
					return values.Value{}, err
				}
				m.Put(ck, cv)
			}
		}
		return values.NewMap(to.Key, to.Value, m), nil

	case from.Kind == types.Pair && to.Kind == types.Pair:
		l, err := Coerce(*v.PL, to.Left)
		if err != nil {
			return values.Value{}, err
		}
		r, err := Coerce(*v.PR, to.Right)
		if err != nil {
			return values.Value{}, err
		}
		return values.NewPair(l, r), nil

	case from.Kind == types.StructInstance && to.Kind == types.StructInstance:
		fields := make([]values.Field, len(to.Members))
		for i, m := range to.Members {
			fv, ok := v.Member(m.Name)
			if !ok {
				return values.Value{}, errs.New(errs.KindEval, errs.Pos{}, "struct %s missing member %q", to.Name, m.Name)
			}
			cv, err := Coerce(fv, m.Type)
			if err != nil {
				return values.Value{}, err
			}
			fields[i] = values.Field{Name: m.Name, Value: cv}
		}
		return values.Value{Type: to, Fields: fields}, nil

	case from.Kind == types.Object && to.Kind == types.StructInstance:
		fields := make([]values.Field, len(to.Members))
		for i, m := range to.Members {
			fv, ok := v.Member(m.Name)
			if !ok {
				return values.Value{}, errs.New(errs.KindEval, errs.Pos{}, "object missing member %q for struct %s", m.Name, to.Name)
			}
			cv, err := Coerce(fv, m.Type)
			if err != nil {
				return values.Value{}, err
			}
			fields[i] = values.Field{Name: m.Name, Value: cv}
		}
		return values.Value{Type: to, Fields: fields}, nil

	case from.Kind == types.Object && to.Kind == types.Map:
		m := values.NewOrderedMap()
		for _, f := range v.Fields {
			cv, err := Coerce(f.Value, to.Value)
			if err != nil {
				return values.Value{}, err
			}
			m.Put(values.NewString(f.Name), cv)
		}
		return values.NewMap(to.Key, to.Value, m), nil

	default:
		return v, nil
	}
}
