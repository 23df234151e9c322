// Package main implements wdlrun's command-line entry point (spec.md
// §6.1). Command registration is split across cmd_*.go files the way the
// teacher's own `cmd/nerd` splits cobra subcommands across files; this one
// holds the root command, global flags, and exit-code handling.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-wdl/wdlrun/common/bootstrap"
	"github.com/go-wdl/wdlrun/common/logger"
	"github.com/go-wdl/wdlrun/internal/errs"
)

var (
	verbose bool
	envOverrides []string
)

var rootCmd = &cobra.Command{
	Use:   "wdlrun",
	Short: "wdlrun runs WDL workflows and tasks locally against a container backend",
	Long: `wdlrun parses, typechecks, and executes WDL (Workflow Description
Language) workflows and tasks against a local container backend (Docker,
Podman, Singularity, or udocker), without a server or database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		for _, kv := range envOverrides {
			k, v, ok := splitEnvOverride(kv)
			if !ok {
				return fmt.Errorf("--env expects KEY=VALUE or KEY, got %q", kv)
			}
			if err := os.Setenv(k, v); err != nil {
				return fmt.Errorf("set env override %s: %w", k, err)
			}
		}
		return nil
	},
}

func splitEnvOverride(kv string) (key, val string, ok bool) {
	for i, r := range kv {
		if r == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	if kv == "" {
		return "", "", false
	}
	return kv, "", true
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringArrayVar(&envOverrides, "env", nil, "set an environment variable (KEY=VALUE) before loading config, repeatable")
}

// setupComponents wraps bootstrap.Setup, escalating to debug-level logging
// when --verbose was passed (spec.md §6.1's `run ... [--verbose]`), so
// every subcommand picks up the flag the same way instead of each
// re-deriving a logger.
func setupComponents(ctx context.Context, opts ...bootstrap.Option) (*bootstrap.Components, error) {
	if verbose {
		opts = append(opts, bootstrap.WithCustomLogger(logger.New("debug", "")))
	}
	return bootstrap.Setup(ctx, opts...)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "wdlrun:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a failure to spec.md §6.1's exit codes: 0 success
// (never reached here), 2 for parse/type/input errors, or the task's own
// exit code on a TaskFailure, falling back to 1 for anything else.
func exitCodeFor(err error) int {
	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.KindSyntax, errs.KindLexical, errs.KindImport, errs.KindType, errs.KindInput:
			return 2
		case errs.KindTaskFailure:
			if e.ExitCode != 0 {
				return e.ExitCode
			}
			return 1
		case errs.KindInterrupted:
			return 130
		}
	}
	return 1
}
