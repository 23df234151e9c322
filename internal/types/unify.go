package types

import "fmt"

// Unify computes the least upper bound of a slice of types, used for array/
// map/pair literal inference. Fails when no common type exists.
func Unify(ts []*Type) (*Type, error) {
	if len(ts) == 0 {
		return AnyT(), nil
	}
	result := ts[0]
	for _, t := range ts[1:] {
		merged, err := unify2(result, t)
		if err != nil {
			return nil, err
		}
		result = merged
	}
	return result, nil
}

func unify2(a, b *Type) (*Type, error) {
	if IsAny(a) {
		return b, nil
	}
	if IsAny(b) {
		return a, nil
	}

	opt := a.Optional || b.Optional

	if Equal(a.AsRequired(), b.AsRequired()) {
		r := a.AsRequired()
		if opt {
			return r.AsOptional(), nil
		}
		return r, nil
	}

	// Int/Float widen to Float.
	if (a.Kind == Int && b.Kind == Float) || (a.Kind == Float && b.Kind == Int) {
		r := Prim(Float)
		if opt {
			r = r.AsOptional()
		}
		return r, nil
	}

	if a.Kind == Array && b.Kind == Array {
		item, err := unify2(a.Item, b.Item)
		if err != nil {
			return nil, fmt.Errorf("cannot unify array element types %s and %s", a.Item, b.Item)
		}
		r := NewArray(item, a.Nonempty && b.Nonempty)
		if opt {
			r = r.AsOptional()
		}
		return r, nil
	}

	if a.Kind == Map && b.Kind == Map {
		k, err := unify2(a.Key, b.Key)
		if err != nil {
			return nil, err
		}
		v, err := unify2(a.Value, b.Value)
		if err != nil {
			return nil, err
		}
		r := NewMap(k, v)
		if opt {
			r = r.AsOptional()
		}
		return r, nil
	}

	if a.Kind == Pair && b.Kind == Pair {
		l, err := unify2(a.Left, b.Left)
		if err != nil {
			return nil, err
		}
		ri, err := unify2(a.Right, b.Right)
		if err != nil {
			return nil, err
		}
		r := NewPair(l, ri)
		if opt {
			r = r.AsOptional()
		}
		return r, nil
	}

	// File/String widen to String per the coercion table (best common type
	// for mixed literals favors the less specific side).
	if (a.Kind == String && b.Kind == File) || (a.Kind == File && b.Kind == String) {
		r := Prim(String)
		if opt {
			r = r.AsOptional()
		}
		return r, nil
	}

	return nil, fmt.Errorf("no common type for %s and %s", a, b)
}

// CheckQuant implements spec.md §4.A's check_quant(from, to): reject T? -> T
// unless the quant-check has been relaxed by configuration.
func CheckQuant(from, to *Type, quant QuantCheck) bool {
	if !from.Optional || to.Optional {
		return true
	}
	return quant == QuantLax
}
