package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leanprover/elan/internal/selfupdate"
)

// newSelfCommand builds `elan self {update|uninstall}`, wiring
// internal/selfupdate's Check/Apply/Uninstall into the CLI. Grounded on
// original_source/src/elan-cli/self_update.rs's update/uninstall
// subcommands.
func newSelfCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "self",
		Short: "Manage the elan installation itself",
	}
	cmd.AddCommand(newSelfUpdateCommand(), newSelfUninstallCommand())
	return cmd
}

func newSelfUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update elan to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}

			check, checkErr := selfupdate.Check(cmd.Context(), app.Client, app.Layout, Version)
			if checkErr != nil {
				return &ExitError{Code: exitHandledError, Err: checkErr}
			}
			if !check.UpgradeAvailable {
				fmt.Fprintln(cmd.OutOrStdout(), check.Message)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updating elan %s -> %s\n", check.CurrentVersion, check.LatestVersion)
			if applyErr := selfupdate.Apply(cmd.Context(), app.Client, app.Layout, check.Release); applyErr != nil {
				return &ExitError{Code: exitHandledError, Err: applyErr}
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("elan updated to "+check.LatestVersion))
			return nil
		},
	}
}

func newSelfUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove elan and every toolchain it manages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			if !assumeYes {
				fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("this removes "+app.Layout.Root+" and every toolchain in it."))
				fmt.Fprintln(cmd.OutOrStdout(), "re-run with -y to confirm")
				return &ExitError{Code: exitHandledError}
			}
			if uninstallErr := selfupdate.Uninstall(app.Layout); uninstallErr != nil {
				return &ExitError{Code: exitHandledError, Err: uninstallErr}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "elan uninstalled")
			return nil
		},
	}
}
