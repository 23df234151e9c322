package types

// Verdict is the outcome of a coercion check between a value's declared type
// and a slot's declared type, per spec.md §4.A.
type Verdict int

const (
	Ok Verdict = iota
	Warn
	Err
)

// WarnKind names why a coercion that is allowed still deserves a warning.
type WarnKind string

const (
	WarnNone           WarnKind = ""
	WarnStringCoercion WarnKind = "string-coercion"
	WarnFileCoercion   WarnKind = "file-coercion"
	WarnEmptyToNonempty WarnKind = "empty-to-nonempty"
)

// CoerceResult is the full verdict, including which warning fired.
type CoerceResult struct {
	Verdict Verdict
	Warn    WarnKind
	Reason  string
}

func ok() CoerceResult    { return CoerceResult{Verdict: Ok} }
func warn(k WarnKind) CoerceResult { return CoerceResult{Verdict: Warn, Warn: k} }
func fail(reason string) CoerceResult { return CoerceResult{Verdict: Err, Reason: reason} }

// QuantCheck controls whether T? -> T is rejected (the default) or allowed.
type QuantCheck bool

const (
	QuantStrict QuantCheck = true
	QuantLax    QuantCheck = false
)

// Coerce decides whether a value of type `from` may flow into a slot of type
// `to`, per spec.md §4.A's exact case list.
func Coerce(from, to *Type, quant QuantCheck) CoerceResult {
	if from == nil || to == nil {
		return fail("nil type")
	}
	if IsAny(from) || IsAny(to) {
		return ok()
	}

	// Quantifier check: T -> T? always fine. T? -> T needs explicit opt-in.
	if from.Optional && !to.Optional {
		if quant == QuantStrict {
			return CoerceResult{Verdict: Err, Reason: "cannot coerce optional to non-optional without selecting a value", Warn: ""}
		}
	}

	switch {
	// Identity (ignoring optional, handled above/below).
	case equalIgnoringOptional(from, to):
		return ok()

	// Numeric widening.
	case from.Kind == Int && to.Kind == Float:
		return ok()

	// Int|Float|Boolean|File -> String.
	case to.Kind == String && (from.Kind == Int || from.Kind == Float || from.Kind == Boolean || from.Kind == File):
		return warn(WarnStringCoercion)

	// String -> File / String -> Directory at slot boundaries.
	case from.Kind == String && (to.Kind == File || to.Kind == Directory):
		return warn(WarnFileCoercion)

	// Homogeneous container covariance.
	case from.Kind == Array && to.Kind == Array:
		inner := Coerce(from.Item, to.Item, quant)
		if inner.Verdict == Err {
			return fail("array element type mismatch: " + inner.Reason)
		}
		if to.Nonempty && !from.Nonempty {
			if inner.Verdict == Warn {
				return inner
			}
			return warn(WarnEmptyToNonempty)
		}
		return inner

	case from.Kind == Map && to.Kind == Map:
		k := Coerce(from.Key, to.Key, quant)
		v := Coerce(from.Value, to.Value, quant)
		if k.Verdict == Err {
			return fail("map key type mismatch: " + k.Reason)
		}
		if v.Verdict == Err {
			return fail("map value type mismatch: " + v.Reason)
		}
		if k.Verdict == Warn {
			return k
		}
		return v

	case from.Kind == Pair && to.Kind == Pair:
		l := Coerce(from.Left, to.Left, quant)
		r := Coerce(from.Right, to.Right, quant)
		if l.Verdict == Err {
			return fail("pair left type mismatch: " + l.Reason)
		}
		if r.Verdict == Err {
			return fail("pair right type mismatch: " + r.Reason)
		}
		if l.Verdict == Warn {
			return l
		}
		return r

	// Struct -> struct with identical member types.
	case from.Kind == StructInstance && to.Kind == StructInstance:
		if len(from.Members) != len(to.Members) {
			return fail("struct member count mismatch")
		}
		for i, m := range from.Members {
			om := to.Members[i]
			if m.Name != om.Name {
				return fail("struct member name mismatch: " + m.Name + " vs " + om.Name)
			}
			if inner := Coerce(m.Type, om.Type, quant); inner.Verdict == Err {
				return fail("struct member " + m.Name + ": " + inner.Reason)
			}
		}
		return ok()

	// Object-literal -> struct by name (Object carries no static member
	// list; membership is checked at eval time against the literal).
	case from.Kind == Object && to.Kind == StructInstance:
		return ok()

	case from.Kind == Object && to.Kind == Map:
		return ok()

	default:
		return fail("no coercion from " + from.String() + " to " + to.String())
	}
}

// Assignable is a convenience boolean wrapper around Coerce.
func Assignable(from, to *Type, quant QuantCheck) bool {
	return Coerce(from, to, quant).Verdict != Err
}
