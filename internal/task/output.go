package task

import (
	"path/filepath"
	"strings"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// collectOutputs evaluates a task's output declarations against the
// post-execution environment (spec.md §4.J step 7), rejecting any File
// output that resolves outside the task's work directory.
func (r *Runner) collectOutputs(t *ast.Task, en *env.Env, paths *AttemptPaths) (map[string]values.Value, error) {
	work := paths.CWD
	out := make(map[string]values.Value, len(t.Outputs))
	for _, d := range t.Outputs {
		v, err := r.Evaluator.EvalDecl(d, en, paths)
		if err != nil {
			return nil, errs.Wrap(errs.KindTaskFailure, err, "output %s", d.Name)
		}
		if err := checkOutputPaths(d.Name, v, work); err != nil {
			return nil, err
		}
		en = en.Bind(d.Name, v)
		out[d.Name] = v
	}
	return out, nil
}

// checkOutputPaths enforces "File outputs must resolve to paths under the
// task's initial working directory" (spec.md §4.J step 7), recursing
// through arrays/pairs/structs the way stager.rewrite walks inputs.
func checkOutputPaths(name string, v values.Value, work string) error {
	if v.Type == nil || v.Absent {
		return nil
	}
	switch v.Type.Kind {
	case types.File, types.Directory:
		p := v.File.Virtual
		if !filepath.IsAbs(p) {
			return nil // relative to work dir by construction
		}
		if !strings.HasPrefix(p, work+string(filepath.Separator)) && p != work {
			return errs.New(errs.KindTaskFailure, errs.Pos{}, "output %s resolves to %s, outside the task's work directory %s", name, p, work)
		}
		return nil
	case types.Array:
		for _, el := range v.Arr {
			if err := checkOutputPaths(name, el, work); err != nil {
				return err
			}
		}
	case types.Pair:
		if err := checkOutputPaths(name, *v.PL, work); err != nil {
			return err
		}
		return checkOutputPaths(name, *v.PR, work)
	case types.StructInstance, types.Object:
		for _, f := range v.Fields {
			if err := checkOutputPaths(name, f.Value, work); err != nil {
				return err
			}
		}
	}
	return nil
}
