package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leanprover/elan/internal/override"
)

// newShowCommand builds `elan show`: print every installed/linked
// toolchain plus the one the override ladder would pick for the
// current directory and why, mirroring original_source/src/elan-cli's
// show_tool_versions/show_toolchain.
func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show installed toolchains and the active selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}

			infos, err := app.Registry.List()
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no toolchains installed")
			}
			for _, info := range infos {
				marker := "  "
				if info.IsDefault {
					marker = "* "
				}
				if info.IsLinked {
					fmt.Fprintf(cmd.OutOrStdout(), "%s%s (linked -> %s)\n", marker, info.Identity, info.LinkPath)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", marker, info.Identity)
				}
			}

			cwd, err := os.Getwd()
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			desc, reason, err := override.Resolve(cwd, "", app.Settings, app.Settings, app.Layout.Toolchains)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("active toolchain: none selected"))
				return nil
			}
			origin, err := app.defaultOrigin()
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			identity, err := desc.Identity(origin)
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "active toolchain: %s\n", SuccessStyle.Render(identity))
			fmt.Fprintf(cmd.OutOrStdout(), "reason: %s\n", reasonDescription(reason))
			return nil
		},
	}
}

func reasonDescription(r override.Reason) string {
	switch r.Rung {
	case override.RungCLISelector:
		return "explicit selector '" + r.Detail + "'"
	case override.RungEnvironment:
		return "environment variable " + r.Detail
	case override.RungOverrideDB:
		return "directory override on " + r.Detail
	case override.RungToolchainFile:
		return r.Detail
	case override.RungLeanpkgFile:
		return r.Detail
	case override.RungInToolchainDirectory:
		return "inside toolchain directory " + r.Detail
	case override.RungSettingsDefault:
		return "default toolchain"
	default:
		return "unknown"
	}
}
