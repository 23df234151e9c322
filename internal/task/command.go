package task

import (
	"regexp"
	"strings"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/env"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/values"
)

// AssembleCommand evaluates a task's command template against the staged
// environment (spec.md §4.J step 4), producing the single script the
// backend executes. pm resolves any PathMapper-backed stdlib call a
// placeholder makes (write_lines, write_json, ...) against this attempt's
// work directory. placeholderRegex, if non-empty, is the optional security
// guard: every `~{expr}`/`${expr}` rendered value must match it or assembly
// fails with a CommandError.
func AssembleCommand(t *ast.Task, en *env.Env, ev *eval.Evaluator, pm stdlib.PathMapper, placeholderRegex string) (string, error) {
	var re *regexp.Regexp
	if placeholderRegex != "" {
		compiled, err := regexp.Compile(placeholderRegex)
		if err != nil {
			return "", errs.Wrap(errs.KindConfiguration, err, "invalid placeholder_regex %q", placeholderRegex)
		}
		re = compiled
	}

	var sb strings.Builder
	for _, part := range t.Command {
		if part.Expr == nil {
			sb.WriteString(part.Literal)
			continue
		}
		v, err := ev.Eval(part.Expr, en, pm)
		if err != nil {
			return "", errs.Wrap(errs.KindTaskFailure, err, "command placeholder at %s", part.Pos)
		}
		rendered := renderPlaceholder(v)
		if re != nil && !re.MatchString(rendered) {
			return "", errs.New(errs.KindTaskFailure, part.Pos, "command placeholder value %q fails placeholder_regex %q (CommandError)", rendered, placeholderRegex)
		}
		sb.WriteString(rendered)
	}
	return sb.String(), nil
}

// renderPlaceholder mirrors eval.evalInterpolated's null-becomes-empty rule
// (spec.md §4.B): an absent optional placeholder contributes nothing.
func renderPlaceholder(v values.Value) string {
	if v.Absent {
		return ""
	}
	return values.Render(v)
}
