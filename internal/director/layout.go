// Package director implements the run director (spec.md §4.N/§6.3): for
// each invocation it creates the run directory, drives the workflow state
// machine (internal/state) by dispatching Ready Call instances to
// internal/task, resolves URI inputs through internal/download, consults
// internal/cache before and after each call, and writes the final
// outputs.json/error.json plus a rerun script.
package director

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-wdl/wdlrun/internal/errs"
)

// Layout is the materialized run directory of spec.md §6.3.
type Layout struct {
	Root string
}

// NewLayout creates RUNDIR and its fixed top-level children. If root is
// empty, RUNDIR is named by the current UTC timestamp under parent; otherwise root is used
// verbatim (the CLI's `--dir X/.`).
func NewLayout(parent, root string) (*Layout, error) {
	dir := root
	if dir == "" {
		dir = filepath.Join(parent, time.Now().UTC().Format("20060102-150405.000000"))
	}
	for _, sub := range []string{"", "wdl", "write_", "download"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errs.Wrap(errs.KindFilesystem, err, "create run directory %s", filepath.Join(dir, sub))
		}
	}
	return &Layout{Root: dir}, nil
}

func (l *Layout) WdlDir() string      { return filepath.Join(l.Root, "wdl") }
func (l *Layout) WriteDir() string    { return filepath.Join(l.Root, "write_") }
func (l *Layout) DownloadDir() string { return filepath.Join(l.Root, "download") }
func (l *Layout) OutDir() string      { return filepath.Join(l.Root, "out") }
func (l *Layout) LogPath(taskMode bool) string {
	if taskMode {
		return filepath.Join(l.Root, "task.log")
	}
	return filepath.Join(l.Root, "workflow.log")
}
func (l *Layout) OutputsJSON() string { return filepath.Join(l.Root, "outputs.json") }
func (l *Layout) ErrorJSON() string   { return filepath.Join(l.Root, "error.json") }
func (l *Layout) RerunScript() string { return filepath.Join(l.Root, "rerun") }

// CallDir returns the per-call directory, appending -IDX for a scattered
// call instance (spec.md §6.3 "call-NAME[-IDX]").
func (l *Layout) CallDir(name string, idx []int) string {
	dirName := "call-" + name
	for _, i := range idx {
		dirName += fmt.Sprintf("-%d", i)
	}
	return filepath.Join(l.Root, dirName)
}

// LinkLastRun maintains parent/_LAST -> the run directory (spec.md §6.3's
// convenience symlink), replacing any existing link.
func LinkLastRun(parent, runDir string) error {
	link := filepath.Join(parent, "_LAST")
	_ = os.Remove(link)
	rel, err := filepath.Rel(parent, runDir)
	if err != nil {
		rel = runDir
	}
	if err := os.Symlink(rel, link); err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "link %s", link)
	}
	return nil
}
