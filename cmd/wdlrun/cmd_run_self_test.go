package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-wdl/wdlrun/internal/director"
	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/task"
)

// selfTestWDL is spec.md §10 scenario E1's hello task verbatim: a single
// task whose output file content confirms the whole pipeline — parse,
// typecheck, admission, backend, staging, command assembly, output
// collection — works end-to-end against the configured backend.
const selfTestWDL = `version 1.0

task hello {
  input {
    String who
  }
  command {
    echo "Hello, ~{who}!" > m.txt
  }
  output {
    File m = "m.txt"
  }
}
`

var runSelfTestCmd = &cobra.Command{
	Use:   "run_self_test",
	Short: "execute a canned trivial workflow end-to-end",
	Args:  cobra.NoArgs,
	RunE:  runRunSelfTest,
}

func init() {
	rootCmd.AddCommand(runSelfTestCmd)
}

func runRunSelfTest(cmd *cobra.Command, args []string) error {
	dir, err := os.MkdirTemp("", "wdlrun-self-test-*")
	if err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "create scratch directory")
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, "hello.wdl")
	if err := os.WriteFile(source, []byte(selfTestWDL), 0o644); err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "write %s", source)
	}

	prog, err := loadProgram(source)
	if err != nil {
		return err
	}

	c, err := setupComponents(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Shutdown(cmd.Context())

	layout, err := director.NewLayout(dir, "")
	if err != nil {
		return err
	}
	runner := &task.Runner{
		Backend:   c.Backend,
		Admission: c.Admission,
		Evaluator: eval.New(stdlib.Default(), prog),
		Defaults:  c.Defaults,
		Logger:    c.Logger,
	}

	outputs, err := runBareTask(cmd.Context(), prog, "hello", []string{"who=Alyssa"}, nil, layout, runner)
	if err != nil {
		return errs.Wrap(errs.KindTaskFailure, err, "self-test run failed")
	}

	out, ok := outputs["m"]
	if !ok {
		return fmt.Errorf("self-test: output %q missing", "m")
	}
	local := out.File.Virtual
	if !filepath.IsAbs(local) {
		local = filepath.Join(layout.CallDir("hello", nil), "work", local)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "read self-test output %s", local)
	}
	want := "Hello, Alyssa!\n"
	if string(data) != want {
		return fmt.Errorf("self-test: output content mismatch: got %q, want %q", data, want)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "self-test passed")
	return nil
}
