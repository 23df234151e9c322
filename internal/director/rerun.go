package director

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-wdl/wdlrun/internal/errs"
)

// WriteRerunScript writes a shell script that re-invokes the same source
// with the same inputs (spec.md §6.3 "rerun ... shell script to
// re-invoke with identical inputs").
func WriteRerunScript(l *Layout, exe, source string, args []string) error {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "exec %s run %s", shellQuote(exe), shellQuote(filepath.Join(l.WdlDir(), filepath.Base(source))))
	for _, a := range args {
		b.WriteString(" ")
		b.WriteString(shellQuote(a))
	}
	b.WriteString(" \"$@\"\n")
	if err := os.WriteFile(l.RerunScript(), []byte(b.String()), 0o755); err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "write rerun script")
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
