package cliinput

import (
	"encoding/json"

	"github.com/go-wdl/wdlrun/internal/ast"
	"github.com/go-wdl/wdlrun/internal/types"
)

// InputTemplate renders a JSON skeleton of a workflow's top-level inputs
// (spec.md CLI §6.1 `input-template SOURCE`): one namespaced key per
// declaration, each set to a type-appropriate zero value, optionals set
// to null.
func InputTemplate(prog *ast.Program) ([]byte, error) {
	out := make(map[string]any, len(prog.Workflow.Inputs))
	for _, d := range prog.Workflow.Inputs {
		out[prog.Workflow.Name+"."+d.Name] = placeholder(d.Type)
	}
	return json.MarshalIndent(out, "", "  ")
}

func placeholder(t *types.Type) any {
	if t.Optional {
		return nil
	}
	switch t.Kind {
	case types.Boolean:
		return false
	case types.Int:
		return 0
	case types.Float:
		return 0.0
	case types.String, types.File, types.Directory:
		return ""
	case types.Array:
		if t.Nonempty {
			return []any{placeholder(t.Item)}
		}
		return []any{}
	case types.Map:
		return map[string]any{}
	case types.Pair:
		return map[string]any{"left": placeholder(t.Left), "right": placeholder(t.Right)}
	case types.StructInstance:
		fields := make(map[string]any, len(t.Members))
		for _, m := range t.Members {
			fields[m.Name] = placeholder(m.Type)
		}
		return fields
	default:
		return nil
	}
}
