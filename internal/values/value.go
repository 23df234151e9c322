// Package values implements runtime-tagged WDL values that mirror the type
// system one-to-one, plus JSON (de)serialization per spec.md §4.B.
package values

import (
	"fmt"
	"sort"

	"github.com/go-wdl/wdlrun/internal/types"
)

// FileHandle is the opaque, "virtualized" identifier a File/Directory value
// wraps. The runtime's PathMapper capability resolves it to a host or
// container path. Two handles compare equal iff they resolve to the same
// host-side inode or the same URI after download (Equal below approximates
// this with the resolved string form plus an optional content digest).
type FileHandle struct {
	// Virtual is the path or URI as known to the WDL program (may be a
	// container-relative path before staging, or a host path after).
	Virtual string
	// Digest, if known, is a content digest (sha256:...) used for identity
	// comparison independent of path string.
	Digest string
}

func (h FileHandle) Equal(o FileHandle) bool {
	if h.Digest != "" && o.Digest != "" {
		return h.Digest == o.Digest
	}
	return h.Virtual == o.Virtual
}

// Value is a runtime-tagged WDL value. Exactly one of the typed fields is
// meaningful, selected by Type.Kind; Optional values with Absent=true carry
// no payload.
type Value struct {
	Type   *types.Type
	Absent bool

	Bool   bool
	Int    int64
	Float  float64
	Str    string
	File   FileHandle

	Arr  []Value
	M    *OrderedMap
	PL   *Value // pair left
	PR   *Value // pair right
	// Struct/Object members, insertion ordered.
	Fields []Field
}

type Field struct {
	Name  string
	Value Value
}

// OrderedMap preserves insertion order of map keys (WDL map order is
// otherwise unspecified but round-tripping is easier when stable).
type OrderedMap struct {
	keys   []Value
	values []Value
}

func NewOrderedMap() *OrderedMap { return &OrderedMap{} }

func (m *OrderedMap) Put(k, v Value) {
	for i, ek := range m.keys {
		if Equal(ek, k) {
			m.values[i] = v
			return
		}
	}
	m.keys = append(m.keys, k)
	m.values = append(m.values, v)
}

func (m *OrderedMap) Get(k Value) (Value, bool) {
	for i, ek := range m.keys {
		if Equal(ek, k) {
			return m.values[i], true
		}
	}
	return Value{}, false
}

func (m *OrderedMap) Len() int { return len(m.keys) }

func (m *OrderedMap) Entries() []Field {
	out := make([]Field, len(m.keys))
	for i := range m.keys {
		out[i] = Field{Name: fmt.Sprint(m.keys[i].Str), Value: m.values[i]}
	}
	return out
}

func (m *OrderedMap) Pairs() ([]Value, []Value) { return m.keys, m.values }

// Sorted returns keys/values sorted by key string rendering, for
// deterministic canonicalization (call-cache digests, JSON output).
func (m *OrderedMap) Sorted() ([]Value, []Value) {
	type kv struct {
		k, v Value
		s    string
	}
	pairs := make([]kv, len(m.keys))
	for i := range m.keys {
		pairs[i] = kv{m.keys[i], m.values[i], Render(m.keys[i])}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].s < pairs[j].s })
	ks := make([]Value, len(pairs))
	vs := make([]Value, len(pairs))
	for i, p := range pairs {
		ks[i] = p.k
		vs[i] = p.v
	}
	return ks, vs
}

// Constructors. Each enforces its type tag.

func NewBool(b bool) Value   { return Value{Type: types.Prim(types.Boolean), Bool: b} }
func NewInt(i int64) Value   { return Value{Type: types.Prim(types.Int), Int: i} }
func NewFloat(f float64) Value { return Value{Type: types.Prim(types.Float), Float: f} }
func NewString(s string) Value { return Value{Type: types.Prim(types.String), Str: s} }
func NewFile(virtual string) Value {
	return Value{Type: types.Prim(types.File), File: FileHandle{Virtual: virtual}}
}
func NewDirectory(virtual string) Value {
	return Value{Type: types.Prim(types.Directory), File: FileHandle{Virtual: virtual}}
}

func Absent(t *types.Type) Value { return Value{Type: t.AsOptional(), Absent: true} }

func NewArray(item *types.Type, nonempty bool, elems []Value) Value {
	return Value{Type: types.NewArray(item, nonempty), Arr: elems}
}

func NewMap(key, value *types.Type, m *OrderedMap) Value {
	return Value{Type: types.NewMap(key, value), M: m}
}

func NewPair(left, right Value) Value {
	l, r := left, right
	return Value{Type: types.NewPair(left.Type, right.Type), PL: &l, PR: &r}
}

func NewStruct(name string, fields []Field, memberTypes []types.StructMember) Value {
	return Value{Type: types.NewStruct(name, memberTypes), Fields: fields}
}

// AsFloat numerically promotes an Int value into a Float, materializing a
// new Float per spec.md §4.B. Non-numeric values are returned unchanged.
func AsFloat(v Value) Value {
	if v.Type != nil && v.Type.Kind == types.Int {
		nv := NewFloat(float64(v.Int))
		if v.Type.Optional {
			nv.Type = nv.Type.AsOptional()
		}
		return nv
	}
	return v
}

// Field lookup for struct/object values.
func (v Value) Member(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Equal compares two values for value equality (used by OrderedMap key
// lookups and the == / != operators). File handles compare by
// FileHandle.Equal.
func Equal(a, b Value) bool {
	if a.Absent != b.Absent {
		return false
	}
	if a.Absent {
		return true
	}
	if a.Type == nil || b.Type == nil {
		return false
	}
	switch a.Type.Kind {
	case types.Boolean:
		return a.Bool == b.Bool
	case types.Int:
		if b.Type.Kind == types.Float {
			return float64(a.Int) == b.Float
		}
		return a.Int == b.Int
	case types.Float:
		if b.Type.Kind == types.Int {
			return a.Float == float64(b.Int)
		}
		return a.Float == b.Float
	case types.String:
		return a.Str == b.Str
	case types.File, types.Directory:
		return a.File.Equal(b.File)
	case types.Array:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !Equal(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	case types.Map:
		if a.M == nil || b.M == nil {
			return a.M == b.M
		}
		if a.M.Len() != b.M.Len() {
			return false
		}
		ak, av := a.M.Sorted()
		bk, bv := b.M.Sorted()
		for i := range ak {
			if !Equal(ak[i], bk[i]) || !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case types.Pair:
		return Equal(*a.PL, *b.PL) && Equal(*a.PR, *b.PR)
	case types.StructInstance, types.Object:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for _, f := range a.Fields {
			ov, ok := b.Member(f.Name)
			if !ok || !Equal(f.Value, ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Render produces a human/debug string form (not the WDL string-coercion
// rule, which lives in eval for interpolation purposes).
func Render(v Value) string {
	if v.Absent {
		return "null"
	}
	if v.Type == nil {
		return "<untyped>"
	}
	switch v.Type.Kind {
	case types.Boolean:
		return fmt.Sprintf("%t", v.Bool)
	case types.Int:
		return fmt.Sprintf("%d", v.Int)
	case types.Float:
		return fmt.Sprintf("%g", v.Float)
	case types.String, types.File, types.Directory:
		if v.Type.Kind == types.String {
			return v.Str
		}
		return v.File.Virtual
	case types.Array:
		s := "["
		for i, e := range v.Arr {
			if i > 0 {
				s += ", "
			}
			s += Render(e)
		}
		return s + "]"
	case types.Map:
		s := "{"
		if v.M != nil {
			ks, vs := v.M.Pairs()
			for i := range ks {
				if i > 0 {
					s += ", "
				}
				s += Render(ks[i]) + ": " + Render(vs[i])
			}
		}
		return s + "}"
	case types.Pair:
		return fmt.Sprintf("(%s, %s)", Render(*v.PL), Render(*v.PR))
	case types.StructInstance, types.Object:
		s := "{"
		for i, f := range v.Fields {
			if i > 0 {
				s += ", "
			}
			s += f.Name + ": " + Render(f.Value)
		}
		return s + "}"
	}
	return "?"
}
