package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-wdl/wdlrun/internal/errs"
)

// configureCmd interactively writes a user config file in spec.md §6.2's
// `PRODUCT__SECTION__KEY=VALUE` env-var convention, which common/config.Load
// reads back via os.Getenv. No pack dependency offers interactive terminal
// prompts, so this prompts over stdin/stdout with the standard library.
var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "interactively write a wdlrun config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

type configPrompt struct {
	key     string
	label   string
	def     string
}

func runConfigure(cmd *cobra.Command, args []string) error {
	prompts := []configPrompt{
		{"WDLRUN__BACKEND__KIND", "Container backend [docker|podman|singularity|udocker]", "docker"},
		{"WDLRUN__BACKEND__DEFAULT_IMAGE", "Default docker image", "ubuntu:latest"},
		{"WDLRUN__RESOURCES__CPU_CORES", "CPU cores available for admission", "4"},
		{"WDLRUN__RESOURCES__MEMORY_BYTES", "Memory bytes available for admission", "4294967296"},
		{"WDLRUN__CACHE__ENABLED", "Enable the call cache [true|false]", "false"},
		{"WDLRUN__CACHE__DIR", "Call cache directory", "$HOME/.wdlrun/cache"},
		{"WDLRUN__DOWNLOAD__ENABLED", "Enable the download cache [true|false]", "true"},
		{"WDLRUN__DOWNLOAD__DIR", "Download cache directory", "$HOME/.wdlrun/download"},
		{"WDLRUN__RUN__FAIL_FAST", "Fail fast on the first failed call [true|false]", "true"},
	}

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	lines := make([]string, 0, len(prompts))
	for _, p := range prompts {
		fmt.Fprintf(out, "%s [%s]: ", p.label, p.def)
		resp, _ := in.ReadString('\n')
		resp = strings.TrimSpace(resp)
		if resp == "" {
			resp = p.def
		}
		lines = append(lines, p.key+"="+resp)
	}

	path := configDestPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "create config directory")
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errs.Wrap(errs.KindFilesystem, err, "write config file %s", path)
	}
	fmt.Fprintf(out, "wrote %s\nsource it (or export these vars) before running wdlrun\n", path)
	return nil
}

func configDestPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".wdlrun", "config.env")
}
