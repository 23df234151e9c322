// Package env implements the persistent, immutable binding environment used
// by expression evaluation (spec.md §4.C). Frames share structure via a
// parent pointer so that forking an environment for a scatter iteration or a
// nested scope is O(1) and never mutates a sibling's bindings.
package env

import (
	"strings"

	"github.com/go-wdl/wdlrun/internal/values"
)

// Env is an immutable, persistent lookup chain: a local binding set plus a
// pointer to the enclosing frame. Binding a name never mutates an existing
// Env; it returns a new frame linked to the receiver.
type Env struct {
	parent *Env

	bindings map[string]Value

	// namespace/nsChild implement enter_namespace: lookups of "ns.rest"
	// delegate to nsChild.Lookup("rest"); everything else falls through to
	// parent as usual.
	namespace string
	nsChild   *Env
}

// Value is the value type Env binds names to.
type Value = values.Value

// Empty is the root environment with no bindings.
func Empty() *Env { return &Env{bindings: map[string]Value{}} }

// Bind returns a new frame with name bound to v, shadowing any outer
// binding of the same name. The receiver is untouched.
func (e *Env) Bind(name string, v Value) *Env {
	return &Env{parent: e, bindings: map[string]Value{name: v}}
}

// BindAll returns a new frame with every entry of m bound at once (a single
// frame, not a chain), used when binding an entire task/workflow's inputs.
func (e *Env) BindAll(m map[string]Value) *Env {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return &Env{parent: e, bindings: cp}
}

// EnterNamespace returns a new frame whose lookups for names under prefix
// "ns." resolve within the given child environment, while lookups that
// don't start with that prefix fall through to the parent. This models a
// call's private input/output scope nested inside its enclosing workflow
// scope (spec.md §4.C).
func (e *Env) EnterNamespace(ns string, child *Env) *Env {
	return &Env{parent: e, namespace: ns, nsChild: child}
}

// Lookup resolves a dotted name (e.g. "call_name.output_field" or a bare
// local name) by walking outward through the frame chain. Returns false if
// unbound anywhere in the chain.
func (e *Env) Lookup(dotted string) (Value, bool) {
	for f := e; f != nil; f = f.parent {
		if f.nsChild != nil {
			if rest, ok := stripNamespace(dotted, f.namespace); ok {
				if v, found := f.nsChild.Lookup(rest); found {
					return v, true
				}
				continue
			}
		}
		if v, ok := f.bindings[dotted]; ok {
			return v, true
		}
	}
	var zero Value
	return zero, false
}

func stripNamespace(dotted, ns string) (string, bool) {
	if ns == "" || dotted == ns {
		return "", false
	}
	prefix := ns + "."
	if strings.HasPrefix(dotted, prefix) {
		return strings.TrimPrefix(dotted, prefix), true
	}
	return "", false
}

// Names returns every bound name visible at this frame and outward,
// deduplicated by first occurrence. Used for "identifier already bound"
// collision checks during typechecking and for diagnostics.
func (e *Env) Names() []string {
	seen := map[string]bool{}
	var out []string
	for f := e; f != nil; f = f.parent {
		for k := range f.bindings {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
		if f.nsChild != nil {
			for _, k := range f.nsChild.Names() {
				full := f.namespace + "." + k
				if !seen[full] {
					seen[full] = true
					out = append(out, full)
				}
			}
		}
	}
	return out
}
