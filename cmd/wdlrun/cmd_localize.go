package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-wdl/wdlrun/internal/cliinput"
	"github.com/go-wdl/wdlrun/internal/director"
	"github.com/go-wdl/wdlrun/internal/download"
	"github.com/go-wdl/wdlrun/internal/eval"
	"github.com/go-wdl/wdlrun/internal/stdlib"
	"github.com/go-wdl/wdlrun/internal/task"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

var localizeCmd = &cobra.Command{
	Use:   "localize SOURCE [INPUTS...]",
	Short: "pre-populate the download cache for a workflow's File/Directory inputs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLocalize,
}

func init() {
	localizeCmd.Flags().StringArrayP("input", "i", nil, "JSON input document (repeatable, later files win)")
	rootCmd.AddCommand(localizeCmd)
}

func runLocalize(cmd *cobra.Command, args []string) error {
	source := args[0]
	inputArgs := args[1:]
	files, _ := cmd.Flags().GetStringArray("input")

	prog, err := loadProgram(source)
	if err != nil {
		return err
	}

	c, err := setupComponents(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Shutdown(cmd.Context())
	if c.Download == nil {
		return fmt.Errorf("localize requires the download cache to be enabled")
	}

	cliArgs, err := cliinput.ParseArgs(append(files2Flags(files), inputArgs...))
	if err != nil {
		return err
	}
	in, err := cliinput.Assemble(prog, cliArgs)
	if err != nil {
		return err
	}

	layout, err := director.NewLayout(filepath.Dir(source), "")
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
	orch := &download.Orchestrator{Runner: runner, Cache: c.Download, RunDir: layout.DownloadDir()}
	n := 0
	for _, v := range in {
		m, err := localizeValue(cmd, orch, v)
		if err != nil {
			return err
		}
		n += m
	}
	fmt.Fprintf(cmd.OutOrStdout(), "localized %d file(s)/directorie(s)\n", n)
	return nil
}

// localizeValue walks v's structure and resolves every File/Directory
// handle it finds through orch, pre-populating the download cache so a
// later `run` can resolve them from cache instead of the network.
func localizeValue(cmd *cobra.Command, orch *download.Orchestrator, v values.Value) (int, error) {
	if v.Absent {
		return 0, nil
	}
	switch v.Type.Kind {
	case types.File, types.Directory:
		if v.File.Virtual == "" {
			return 0, nil
		}
		if _, err := orch.Resolve(cmd.Context(), v.File.Virtual); err != nil {
			return 0, err
		}
		return 1, nil
	case types.Array:
		n := 0
		for _, e := range v.Arr {
			m, err := localizeValue(cmd, orch, e)
			if err != nil {
				return n, err
			}
			n += m
		}
		return n, nil
	case types.Map:
		n := 0
		_, vals := v.M.Pairs()
		for _, e := range vals {
			m, err := localizeValue(cmd, orch, e)
			if err != nil {
				return n, err
			}
			n += m
		}
		return n, nil
	case types.Pair:
		n1, err := localizeValue(cmd, orch, *v.PL)
		if err != nil {
			return n1, err
		}
		n2, err := localizeValue(cmd, orch, *v.PR)
		if err != nil {
			return n1 + n2, err
		}
		return n1 + n2, nil
	case types.StructInstance:
		n := 0
		for _, f := range v.Fields {
			m, err := localizeValue(cmd, orch, f.Value)
			if err != nil {
				return n, err
			}
			n += m
		}
		return n, nil
	default:
		return 0, nil
	}
}
