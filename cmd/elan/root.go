package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// Version, Commit, and BuildDate are set via -ldflags at release build
// time, mirroring the teacher's cmd/invowk/root.go version variables.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Global flags shared by every subcommand, per spec.md §6's CLI surface.
var (
	verbose          bool
	quiet            bool
	assumeYes        bool
	noModifyPath     bool
	defaultToolchain string
)

var rootCmd = &cobra.Command{
	Use:   "elan",
	Short: "The Lean toolchain manager",
	Long: TitleStyle.Render("elan") + SubtitleStyle.Render(" - the Lean toolchain manager") + `

elan installs and manages Lean toolchains the way rustup manages Rust
toolchains: it resolves "stable"/"beta"/"nightly" channels and pinned
release tags to concrete installs, dispatches lean/lake/leanc/... to
whichever toolchain a directory's lean-toolchain file, leanpkg.toml, or
override selects, and keeps itself up to date.

` + SubtitleStyle.Render("Examples:") + `
  elan toolchain install stable   Install the stable channel
  elan toolchain default stable   Set the default toolchain
  elan show                       Show the active toolchain and why
  elan override set nightly       Pin this directory to nightly`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "assume yes to prompts")
	rootCmd.PersistentFlags().BoolVar(&noModifyPath, "no-modify-path", false, "don't modify shell profile files")
	rootCmd.PersistentFlags().StringVar(&defaultToolchain, "default-toolchain", "", "default toolchain to install alongside elan itself (elan-init only)")

	rootCmd.AddCommand(
		newShowCommand(),
		newToolchainCommand(),
		newOverrideCommand(),
		newUpdateCommand(),
		newRunCommand(),
		newWhichCommand(),
		newSelfCommand(),
		newCompletionCommand(),
	)
}

// getVersionString formats the version banner fang prints for
// `elan --version`.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the manager CLI. Called from main when argv[0] selects
// manager-command parsing rather than tool proxying.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitHandledError)
	}
}

// sinkFromFlags builds the CLI telemetry sink honoring --quiet.
func sinkFromFlags() *cliSink {
	return newCLISink(quiet)
}
