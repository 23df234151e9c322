// Package cliinput assembles a workflow's namespaced input JSON from the
// CLI input forms spec.md §6.1 describes: one or more `-i FILE.json`
// documents merged via JSON merge patch (RFC 7396), then positional
// NAME=VALUE / --empty / --none overrides layered on top, then decoded
// against the workflow's declared input types.
package cliinput

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Args is the parsed form of a `run`/`localize`/`zip` command's input
// arguments, before any type-aware interpretation.
type Args struct {
	Files   []string            // -i FILE.json, in the order given
	Assigns map[string][]string // NAME -> repeated VALUE (repeated NAME=… becomes an array)
	Empty   []string            // --empty NAME
	None    []string            // --none NAME
}

// ParseArgs splits a command's trailing input arguments into Files,
// Assigns, Empty and None per spec.md §6.1's input forms.
func ParseArgs(args []string) (*Args, error) {
	out := &Args{Assigns: map[string][]string{}}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-i" || a == "--input":
			i++
			if i >= len(args) {
				return nil, errs.New(errs.KindInput, errs.Pos{}, "%s requires a file argument", a)
			}
			out.Files = append(out.Files, args[i])
		case a == "--empty":
			i++
			if i >= len(args) {
				return nil, errs.New(errs.KindInput, errs.Pos{}, "--empty requires a NAME argument")
			}
			out.Empty = append(out.Empty, args[i])
		case a == "--none":
			i++
			if i >= len(args) {
				return nil, errs.New(errs.KindInput, errs.Pos{}, "--none requires a NAME argument")
			}
			out.None = append(out.None, args[i])
		case strings.Contains(a, "="):
			name, val, _ := strings.Cut(a, "=")
			out.Assigns[name] = append(out.Assigns[name], val)
		default:
			return nil, errs.New(errs.KindInput, errs.Pos{}, "unrecognized input argument %q", a)
		}
	}
	return out, nil
}

// DeclTypes returns every namespaced input key a program accepts: the
// workflow's own top-level inputs (`WF.DECL`, required exactly as declared)
// and, for every call reachable from the workflow body (including nested
// inside scatter/conditional sections), that call's task inputs addressed
// directly (`WF.CALL.INPUT`, always treated as optional since the call's
// own binding already supplies or requires the value — see DESIGN.md's
// Open Question on direct call-input override).
func DeclTypes(prog *ast.Program) map[string]*types.Type {
	wf := prog.Workflow
	out := make(map[string]*types.Type, len(wf.Inputs))
	for _, d := range wf.Inputs {
		out[wf.Name+"."+d.Name] = d.Type
	}

	var walk func(elems []ast.Element)
	walk = func(elems []ast.Element) {
		for _, e := range elems {
			switch {
			case e.Call != nil && e.Call.Task != nil:
				for _, d := range e.Call.Task.Inputs {
					out[wf.Name+"."+e.Call.Alias+"."+d.Name] = d.Type.AsOptional()
				}
			case e.Scatter != nil:
				walk(e.Scatter.Body)
			case e.Conditional != nil:
				walk(e.Conditional.Body)
			}
		}
	}
	walk(wf.Body)
	return out
}

// qualify prefixes a bare NAME with the workflow's own namespace; a NAME
// already containing a "." (an explicit WF.CALL.INPUT override) passes
// through unchanged.
func qualify(prog *ast.Program, name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return prog.Workflow.Name + "." + name
}

// Assemble merges a’s input files (in order, later files overriding
// earlier ones via RFC 7396 JSON merge patch) with a's positional
// Assigns/Empty/None overrides (applied last, so they win over every
// file), validates every resulting key against DeclTypes, and decodes the
// workflow's own required top-level inputs into runtime values.
//
// Call-level overrides (WF.CALL.INPUT keys) are accepted and type-checked
// but not yet threaded through to internal/director's call binding; see
// DESIGN.md.
func Assemble(prog *ast.Program, a *Args) (map[string]values.Value, error) {
	decls := DeclTypes(prog)

	merged := []byte("{}")
	for _, f := range a.Files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errs.Wrap(errs.KindFilesystem, err, "read input file %s", f)
		}
		merged, err = jsonpatch.MergePatch(merged, data)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "merge input file %s", f)
		}
	}

	overrides := map[string]json.RawMessage{}
	for name, vals := range a.Assigns {
		key := qualify(prog, name)
		t, ok := decls[key]
		if !ok {
			return nil, errs.New(errs.KindInput, errs.Pos{Source: key}, "unknown input %q", name)
		}
		raw, err := AssignJSON(vals, t)
		if err != nil {
			return nil, err
		}
		overrides[key] = raw
	}
	for _, name := range a.Empty {
		key := qualify(prog, name)
		if _, ok := decls[key]; !ok {
			return nil, errs.New(errs.KindInput, errs.Pos{Source: key}, "unknown input %q", name)
		}
		overrides[key] = json.RawMessage("[]")
	}
	for _, name := range a.None {
		key := qualify(prog, name)
		if _, ok := decls[key]; !ok {
			return nil, errs.New(errs.KindInput, errs.Pos{Source: key}, "unknown input %q", name)
		}
		overrides[key] = json.RawMessage("null")
	}
	if len(overrides) > 0 {
		ob, err := json.Marshal(overrides)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "encode input overrides")
		}
		merged, err = jsonpatch.MergePatch(merged, ob)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "apply input overrides")
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(merged, &raw); err != nil {
		return nil, errs.Wrap(errs.KindInput, err, "decode merged input document")
	}
	for key := range raw {
		if _, ok := decls[key]; !ok {
			return nil, errs.New(errs.KindInput, errs.Pos{Source: key}, "unknown input key %q", key)
		}
	}

	required := make(map[string]*types.Type, len(prog.Workflow.Inputs))
	for _, d := range prog.Workflow.Inputs {
		required[prog.Workflow.Name+"."+d.Name] = d.Type
	}
	return values.NamespacedInputs(raw, required)
}

// AssignJSON converts a positional NAME=VALUE assignment's repeated raw
// values into the JSON encoding FromJSON expects for t, exported so
// cmd/wdlrun's bare-task input path (which has no workflow namespace to
// qualify keys with, and so cannot reuse Assemble directly) can apply the
// same conversion.
func AssignJSON(vals []string, t *types.Type) (json.RawMessage, error) {
	if t.Kind == types.Array {
		elems := make([]json.RawMessage, len(vals))
		for i, v := range vals {
			e, err := ScalarJSON(v, t.Item)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return json.Marshal(elems)
	}
	if len(vals) != 1 {
		return nil, errs.New(errs.KindInput, errs.Pos{}, "%s is not an array type but was given %d values", t, len(vals))
	}
	return ScalarJSON(vals[0], t)
}

// ScalarJSON converts one CLI-supplied raw token into the JSON encoding
// FromJSON expects for t's kind (spec.md §6.1: "positional NAME=VALUE
// accepts integers, floats, booleans, strings, and file paths").
func ScalarJSON(raw string, t *types.Type) (json.RawMessage, error) {
	switch t.Kind {
	case types.Boolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "expected Boolean, got %q", raw)
		}
		return json.Marshal(b)
	case types.Int:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "expected Int, got %q", raw)
		}
		return json.Marshal(i)
	case types.Float:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errs.Wrap(errs.KindInput, err, "expected Float, got %q", raw)
		}
		return json.Marshal(f)
	default: // String, File, Directory — and Any, passed through as a string
		return json.Marshal(raw)
	}
}
