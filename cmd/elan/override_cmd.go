package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leanprover/elan/internal/override"
	"github.com/leanprover/elan/internal/store"
)

// newOverrideCommand builds `elan override {set|unset|list}`, grounded
// on original_source/src/elan-cli/override_command.rs. File named
// override_cmd.go (not override.go) to avoid shadowing the imported
// internal/override package name in file listings.
func newOverrideCommand() *cobra.Command {
	var path string

	setCmd := &cobra.Command{
		Use:   "set TOOLCHAIN",
		Short: "Pin a directory to a toolchain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			dir, err := resolveOverrideDir(path)
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			if _, parseErr := parseDescriptorArg(app, args[0]); parseErr != nil {
				return &ExitError{Code: exitHandledError, Err: parseErr}
			}
			if addErr := app.Settings.AddOverride(override.DirKey(dir), args[0]); addErr != nil {
				return &ExitError{Code: exitHandledError, Err: addErr}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "override for %s set to %s\n", dir, args[0])
			return nil
		},
	}
	setCmd.Flags().StringVar(&path, "path", "", "directory to override (default: current directory)")

	unsetCmd := &cobra.Command{
		Use:   "unset",
		Short: "Remove a directory's override",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			dir, err := resolveOverrideDir(path)
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			removed, removeErr := app.Settings.RemoveOverride(override.DirKey(dir))
			if removeErr != nil {
				return &ExitError{Code: exitHandledError, Err: removeErr}
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "override for %s removed\n", dir)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "no override set for %s\n", dir)
			}
			return nil
		},
	}
	unsetCmd.Flags().StringVar(&path, "path", "", "directory to clear (default: current directory)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all directory overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			overrides, listErr := app.Settings.ListOverrides()
			if listErr != nil {
				return &ExitError{Code: exitHandledError, Err: listErr}
			}
			for _, dir := range store.SortedOverrideKeys(overrides) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", dir, overrides[dir])
			}
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage directory-scoped toolchain overrides",
	}
	cmd.AddCommand(setCmd, unsetCmd, listCmd)
	return cmd
}

func resolveOverrideDir(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return os.Getwd()
}
