package director

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/values"
)

// WriteOutputsJSON writes the run-level success artifact (spec.md §6.4:
// `{"outputs": {...}, "dir": RUNDIR}`).
func WriteOutputsJSON(path string, outputs map[string]values.Value, runDir string) error {
	rendered := make(map[string]any, len(outputs))
	for name, v := range outputs {
		jv, err := values.ToJSON(v)
		if err != nil {
			return errs.Wrap(errs.KindFilesystem, err, "render output %s", name)
		}
		rendered[name] = jv
	}
	doc := map[string]any{"outputs": rendered, "dir": runDir}
	return writeJSON(path, doc)
}

// ErrorDoc is the run-level failure artifact's shape (spec.md §6.4:
// `{"error": KIND, "pos": {...}, "cause": {...}}`).
type ErrorDoc struct {
	Error string         `json:"error"`
	Pos   *ErrorPos      `json:"pos,omitempty"`
	Cause map[string]any `json:"cause,omitempty"`
}

type ErrorPos struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// WriteErrorJSON renders a failed run's error into error.json, extracting
// the stable kind string and source position from an *errs.Error when
// possible.
func WriteErrorJSON(path string, err error) error {
	doc := ErrorDoc{Error: "RunFailure"}
	var e *errs.Error
	if errors.As(err, &e) {
		doc.Error = string(e.Kind)
		doc.Pos = &ErrorPos{Source: e.Pos.Source, Line: e.Pos.Line, Column: e.Pos.Column}
		doc.Cause = map[string]any{"message": e.Message}
	} else {
		doc.Cause = map[string]any{"message": err.Error()}
	}
	return writeJSON(path, doc)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "create %s", path)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "write %s", path)
	}
	return nil
}
