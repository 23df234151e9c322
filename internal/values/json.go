package values

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/types"
)

// FromJSON decodes a raw JSON value into a Value of the given declared type,
// per spec.md §4.B. Missing optional inputs stay unset (callers skip the key
// entirely rather than calling this with nil); a JSON `null` maps to an
// absent optional. Missing required inputs are the caller's concern (see
// BindInputs) and surface as InputError there.
func FromJSON(raw json.RawMessage, t *types.Type, pos errs.Pos) (Value, error) {
	if raw == nil || string(raw) == "null" {
		if !t.Optional {
			return Value{}, errs.New(errs.KindInput, pos, "null provided for required type %s", t)
		}
		return Absent(t), nil
	}

	switch t.Kind {
	case types.Boolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected Boolean at %s", pos)
		}
		return tagOptional(NewBool(b), t), nil

	case types.Int:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected Int at %s", pos)
		}
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return Value{}, errs.New(errs.KindInput, pos, "expected Int, got %s", n.String())
		}
		return tagOptional(NewInt(i), t), nil

	case types.Float:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected Float at %s", pos)
		}
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return Value{}, errs.New(errs.KindInput, pos, "expected Float, got %s", n.String())
		}
		return tagOptional(NewFloat(f), t), nil

	case types.String:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected String at %s", pos)
		}
		return tagOptional(NewString(s), t), nil

	case types.File:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected File (string) at %s", pos)
		}
		return tagOptional(NewFile(s), t), nil

	case types.Directory:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected Directory (string) at %s", pos)
		}
		return tagOptional(NewDirectory(s), t), nil

	case types.Array:
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected Array at %s", pos)
		}
		if t.Nonempty && len(elems) == 0 {
			return Value{}, errs.New(errs.KindInput, pos, "empty array provided for Array[_]+ type %s", t)
		}
		vs := make([]Value, len(elems))
		for i, e := range elems {
			v, err := FromJSON(e, t.Item, pos)
			if err != nil {
				return Value{}, err
			}
			vs[i] = v
		}
		return tagOptional(NewArray(t.Item, t.Nonempty, vs), t), nil

	case types.Map:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected Map (object) at %s", pos)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewOrderedMap()
		for _, k := range keys {
			kv, err := coerceMapKey(k, t.Key)
			if err != nil {
				return Value{}, err
			}
			vv, err := FromJSON(obj[k], t.Value, pos)
			if err != nil {
				return Value{}, err
			}
			m.Put(kv, vv)
		}
		return tagOptional(NewMap(t.Key, t.Value, m), t), nil

	case types.Pair:
		var obj struct {
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, `expected Pair ({"left":...,"right":...}) at %s`, pos)
		}
		l, err := FromJSON(obj.Left, t.Left, pos)
		if err != nil {
			return Value{}, err
		}
		r, err := FromJSON(obj.Right, t.Right, pos)
		if err != nil {
			return Value{}, err
		}
		return tagOptional(NewPair(l, r), t), nil

	case types.StructInstance:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected Struct %s (object) at %s", t.Name, pos)
		}
		fields := make([]Field, 0, len(t.Members))
		for _, m := range t.Members {
			raw, present := obj[m.Name]
			if !present {
				if !m.Type.Optional {
					return Value{}, errs.New(errs.KindInput, pos, "missing required member %q of struct %s", m.Name, t.Name)
				}
				fields = append(fields, Field{Name: m.Name, Value: Absent(m.Type)})
				continue
			}
			v, err := FromJSON(raw, m.Type, pos)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Name: m.Name, Value: v})
		}
		return tagOptional(NewStruct(t.Name, fields, t.Members), t), nil

	case types.Object:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Value{}, errs.Wrap(errs.KindInput, err, "expected Object at %s", pos)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			v, err := inferJSON(obj[k], pos)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Name: k, Value: v})
		}
		return Value{Type: types.Prim(types.Object), Fields: fields}, nil

	default:
		return Value{}, errs.New(errs.KindInput, pos, "unsupported input type %s", t)
	}
}

func tagOptional(v Value, t *types.Type) Value {
	if t.Optional {
		v.Type = v.Type.AsOptional()
	}
	return v
}

func coerceMapKey(k string, keyType *types.Type) (Value, error) {
	switch keyType.Kind {
	case types.Int:
		i, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return Value{}, errs.New(errs.KindInput, errs.Pos{}, "map key %q is not a valid Int", k)
		}
		return NewInt(i), nil
	case types.String, types.File, types.Directory:
		return NewString(k), nil
	default:
		return NewString(k), nil
	}
}

// ParseJSON decodes arbitrary JSON text into a Value with inferred typing
// (used by stdlib's read_json, where the target WDL type is Any).
func ParseJSON(raw json.RawMessage) (Value, error) {
	return inferJSON(raw, errs.Pos{})
}

// inferJSON decodes an untyped JSON value, inferring its type from the JSON:
// objects become Object values, arrays Array[Any], scalars their primitive
// type and null an absent value (used for Object inputs / read_json results).
func inferJSON(raw json.RawMessage, pos errs.Pos) (Value, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Value{}, errs.Wrap(errs.KindInput, err, "invalid JSON at %s", pos)
	}
	switch p := probe.(type) {
	case nil:
		return Absent(types.AnyT()), nil
	case bool:
		return NewBool(p), nil
	case json.Number:
		if i, err := p.Int64(); err == nil {
			return NewInt(i), nil
		}
		f, _ := p.Float64()
		return NewFloat(f), nil
	case float64:
		if f := p; f == float64(int64(f)) {
			return NewInt(int64(f)), nil
		}
		return NewFloat(p), nil
	case string:
		return NewString(p), nil
	case []any:
		elems := make([]Value, len(p))
		for i, e := range p {
			eb, _ := json.Marshal(e)
			v, err := inferJSON(eb, pos)
			if err != nil {
				return Value{}, err
			}
			elems[i] = v
		}
		return NewArray(types.AnyT(), false, elems), nil
	case map[string]any:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			vb, _ := json.Marshal(p[k])
			v, err := inferJSON(vb, pos)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Name: k, Value: v})
		}
		return Value{Type: types.Prim(types.Object), Fields: fields}, nil
	default:
		return Value{}, errs.New(errs.KindInput, pos, "unrepresentable JSON value")
	}
}

// ToJSON encodes a Value as JSON, following the output-rendering rules of
// spec.md §4.B: File/Directory render as their resolved path string, absent
// optionals render as null.
func ToJSON(v Value) (any, error) {
	if v.Absent {
		return nil, nil
	}
	if v.Type == nil {
		return nil, fmt.Errorf("untyped value")
	}
	switch v.Type.Kind {
	case types.Boolean:
		return v.Bool, nil
	case types.Int:
		return v.Int, nil
	case types.Float:
		return v.Float, nil
	case types.String:
		return v.Str, nil
	case types.File, types.Directory:
		return v.File.Virtual, nil
	case types.Array:
		out := make([]any, len(v.Arr))
		for i, e := range v.Arr {
			jv, err := ToJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = jv
		}
		return out, nil
	case types.Map:
		out := map[string]any{}
		if v.M != nil {
			ks, vs := v.M.Pairs()
			for i, k := range ks {
				jv, err := ToJSON(vs[i])
				if err != nil {
					return nil, err
				}
				out[Render(k)] = jv
			}
		}
		return out, nil
	case types.Pair:
		l, err := ToJSON(*v.PL)
		if err != nil {
			return nil, err
		}
		r, err := ToJSON(*v.PR)
		if err != nil {
			return nil, err
		}
		return map[string]any{"left": l, "right": r}, nil
	case types.StructInstance, types.Object:
		out := map[string]any{}
		for _, f := range v.Fields {
			jv, err := ToJSON(f.Value)
			if err != nil {
				return nil, err
			}
			out[f.Name] = jv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot encode value of kind %s", v.Type.Kind)
	}
}

// NamespacedInputs decodes a raw "workflow_name.decl_name"-keyed input JSON
// document into a flat map from dotted name to Value, given each expected
// declaration's type. Declarations absent from raw and optional are bound
// to an absent value; absent and required produce an InputError collecting all such
// names (so a user sees every missing input at once, not one at a time).
func NamespacedInputs(raw map[string]json.RawMessage, decls map[string]*types.Type) (map[string]Value, error) {
	out := make(map[string]Value, len(decls))
	var missing []string
	for name, t := range decls {
		rv, present := raw[name]
		if !present {
			if t.Optional {
				out[name] = Absent(t)
				continue
			}
			missing = append(missing, name)
			continue
		}
		v, err := FromJSON(rv, t, errs.Pos{Source: name})
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errs.New(errs.KindInput, errs.Pos{}, "missing required input(s): %v", missing)
	}
	return out, nil
}

// QualifiedOutputs renders a flat map of dotted output name -> Value into
// the output JSON document (namespaced keys, spec.md §4.B/§6.4).
func QualifiedOutputs(outputs map[string]Value) (map[string]any, error) {
	out := make(map[string]any, len(outputs))
	for name, v := range outputs {
		jv, err := ToJSON(v)
		if err != nil {
			return nil, err
		}
		out[name] = jv
	}
	return out, nil
}
