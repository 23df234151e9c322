package task

import (
	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/parser"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/types"
)

// RuntimeAttrs is the evaluated form of a task's runtime{} block (spec.md
// §4.J), with defaults filled in from the run's configuration.
type RuntimeAttrs struct {
	Docker        string
	CPU           float64
	MemoryBytes   int64
	MaxRetries    int
	Privileged    bool
	ReturnCodes   ReturnCodes
	CopyInputFiles bool
}

// ReturnCodes is the closed representation of runtime.returnCodes: either a
// single accepted code, a set of accepted codes, or "*" (any code succeeds).
type ReturnCodes struct {
	Any   bool
	Codes []int64
}

func (r ReturnCodes) Accepts(code int) bool {
	if r.Any {
		return true
	}
	if len(r.Codes) == 0 {
		return code == 0
	}
	for _, c := range r.Codes {
		if int(c) == code {
			return true
		}
	}
	return false
}

// Defaults configures the host-wide fallbacks applied when a runtime block
// omits an attribute (spec.md §6.2's "default docker image, CPU/memory
// limits").
type Defaults struct {
	DockerImage    string
	CPU            float64
	MemoryBytes    int64
	CopyInputFiles bool
}

// evalRuntime evaluates a task's runtime{} expressions against its bound
// environment, applying Defaults for anything left unset. pm is nil: the
// runtime block is evaluated before the attempt's work directory exists, so
// no PathMapper-backed stdlib call can resolve yet.
func evalRuntime(t *ast.Task, en *env.Env, ev *eval.Evaluator, d Defaults, pm stdlib.PathMapper) (RuntimeAttrs, error) {
	ra := RuntimeAttrs{
		Docker:         d.DockerImage,
		CPU:            d.CPU,
		MemoryBytes:    d.MemoryBytes,
		MaxRetries:     0,
		CopyInputFiles: d.CopyInputFiles,
		ReturnCodes:    ReturnCodes{},
	}

	if e, ok := t.Runtime["docker"]; ok {
		v, err := ev.Eval(e, en, pm)
		if err != nil {
			return ra, errs.Wrap(errs.KindEval, err, "runtime.docker")
		}
		ra.Docker = v.Str
	}
	if e, ok := t.Runtime["cpu"]; ok {
		v, err := ev.Eval(e, en, pm)
		if err != nil {
			return ra, errs.Wrap(errs.KindEval, err, "runtime.cpu")
		}
		if v.Type.Kind == types.Int {
			ra.CPU = float64(v.Int)
		} else {
			ra.CPU = v.Float
		}
	}
	if e, ok := t.Runtime["memory"]; ok {
		v, err := ev.Eval(e, en, pm)
		if err != nil {
			return ra, errs.Wrap(errs.KindEval, err, "runtime.memory")
		}
		bytes, err := ParseMemoryQuantity(v)
		if err != nil {
			return ra, err
		}
		ra.MemoryBytes = bytes
	}
	if e, ok := t.Runtime["maxRetries"]; ok {
		v, err := ev.Eval(e, en, pm)
		if err != nil {
			return ra, errs.Wrap(errs.KindEval, err, "runtime.maxRetries")
		}
		ra.MaxRetries = int(v.Int)
	} else if e, ok := t.Runtime["max_retries"]; ok {
		v, err := ev.Eval(e, en, pm)
		if err != nil {
			return ra, errs.Wrap(errs.KindEval, err, "runtime.maxRetries")
		}
		ra.MaxRetries = int(v.Int)
	}
	if e, ok := t.Runtime["privileged"]; ok {
		v, err := ev.Eval(e, en, pm)
		if err != nil {
			return ra, errs.Wrap(errs.KindEval, err, "runtime.privileged")
		}
		ra.Privileged = v.Bool
	}
	if e, ok := t.Runtime["returnCodes"]; ok {
		rc, err := evalReturnCodes(e, en, ev, pm)
		if err != nil {
			return ra, err
		}
		ra.ReturnCodes = rc
	} else if e, ok := t.Runtime["continueOnReturnCode"]; ok {
		rc, err := evalReturnCodes(e, en, ev, pm)
		if err != nil {
			return ra, err
		}
		ra.ReturnCodes = rc
	}
	return ra, nil
}

// evalReturnCodes accepts the three forms spec.md §4.J step 6 allows: the
// literal string "*", a single integer, or an array of integers.
func evalReturnCodes(e *parser.Expr, en *env.Env, ev *eval.Evaluator, pm stdlib.PathMapper) (ReturnCodes, error) {
	v, err := ev.Eval(e, en, pm)
	if err != nil {
		return ReturnCodes{}, errs.Wrap(errs.KindEval, err, "runtime.returnCodes")
	}
	switch v.Type.Kind {
	case types.String:
		if v.Str == "*" {
			return ReturnCodes{Any: true}, nil
		}
		return ReturnCodes{}, errs.New(errs.KindEval, e.Pos, "runtime.returnCodes: invalid string %q, expected \"*\"", v.Str)
	case types.Int:
		return ReturnCodes{Codes: []int64{v.Int}}, nil
	case types.Array:
		codes := make([]int64, len(v.Arr))
		for i, el := range v.Arr {
			codes[i] = el.Int
		}
		return ReturnCodes{Codes: codes}, nil
	}
	return ReturnCodes{}, errs.New(errs.KindEval, e.Pos, "runtime.returnCodes: unsupported value of type %s", v.Type)
}
