// Package stdlib implements WDL's standard library functions: the static
// signatures used by the typechecker and the runtime implementations used
// by the evaluator, per spec.md §4.G.
package stdlib

import (
	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// PathMapper is the capability stdlib needs from the runtime to resolve
// File/Directory handles to readable host paths and to stage new File
// outputs (write_lines, write_json, etc.) into the call's output
// directory. Kept as an interface so stdlib has no direct filesystem
// dependency; internal/task supplies the concrete implementation.
type PathMapper interface {
	// HostPath resolves a File/Directory handle to a locally readable path,
	// downloading it first if it is a remote URI (internal/download).
	HostPath(handle values.FileHandle) (string, error)
	// NewOutputFile allocates a fresh path under the call's output
	// directory for a stdlib function to write into (write_lines, etc.),
	// returning the handle that should be returned to WDL.
	NewOutputFile(name string) (values.FileHandle, string, error)
	// StdoutPath / StderrPath return the captured stream files for the
	// currently executing task's attempt.
	StdoutPath() (string, error)
	StderrPath() (string, error)
}

// Func is one registered function's runtime implementation.
type Func func(args []values.Value, pm PathMapper) (values.Value, error)

type entry struct {
	sig  ast.FuncSig
	impl Func
}

// Registry is the populated function table. Registries are built once at
// program start (cmd/wdlrun wiring) and then treated as read-only, matching
// spec.md §9's "registries over dynamic plugin discovery" redesign note.
type Registry struct {
	fns map[string]entry
}

func NewRegistry() *Registry { return &Registry{fns: map[string]entry{}} }

func (r *Registry) register(name string, sig ast.FuncSig, impl Func) {
	r.fns[name] = entry{sig: sig, impl: impl}
}

// Lookup implements ast.StdlibSignatures.
func (r *Registry) Lookup(name string) (ast.FuncSig, bool) {
	e, ok := r.fns[name]
	return e.sig, ok
}

// Call invokes the named function at runtime. Division/modulo by zero and
// any other evaluation-time failure surfaces as EvalError (spec.md §7).
func (r *Registry) Call(name string, pos errs.Pos, args []values.Value, pm PathMapper) (values.Value, error) {
	e, ok := r.fns[name]
	if !ok {
		return values.Value{}, errs.Typef(errs.NoSuchFunction, pos, "no such function %q", name)
	}
	v, err := e.impl(args, pm)
	if err != nil {
		if _, isErr := err.(*errs.Error); isErr {
			return values.Value{}, err
		}
		return values.Value{}, errs.Wrap(errs.KindEval, err, "%s", name)
	}
	return v, nil
}

func prim(k types.Kind) *types.Type { return types.Prim(k) }

func arr(item *types.Type) *types.Type        { return types.NewArray(item, false) }
func arrPlus(item *types.Type) *types.Type    { return types.NewArray(item, true) }
func mapT(k, v *types.Type) *types.Type       { return types.NewMap(k, v) }
