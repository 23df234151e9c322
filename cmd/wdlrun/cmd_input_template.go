package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-wdl/wdlrun/internal/cliinput"
)

var inputTemplateCmd = &cobra.Command{
	Use:   "input-template SOURCE",
	Short: "print a JSON skeleton of a workflow's required inputs",
	Args:  cobra.ExactArgs(1),
	RunE:  runInputTemplate,
}

func init() {
	rootCmd.AddCommand(inputTemplateCmd)
}

func runInputTemplate(cmd *cobra.Command, args []string) error {
	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}
	out, err := cliinput.InputTemplate(prog)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
