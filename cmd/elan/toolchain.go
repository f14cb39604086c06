package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leanprover/elan/internal/descriptor"
	"github.com/leanprover/elan/internal/store"
)

// newToolchainCommand builds `elan toolchain {install|uninstall|list|
// link|unlink|default}`, grounded on original_source/src/elan-cli/
// toolchain.rs's subcommand set. unlink is included alongside the
// abridged install/uninstall/list/link/default set since
// internal/toolchain.Registry already implements it and a linked
// toolchain has no other way to be removed.
func newToolchainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolchain",
		Short: "Manage installed toolchains",
	}
	cmd.AddCommand(
		newToolchainInstallCommand(),
		newToolchainUninstallCommand(),
		newToolchainListCommand(),
		newToolchainLinkCommand(),
		newToolchainUnlinkCommand(),
		newToolchainDefaultCommand(),
	)
	return cmd
}

func parseDescriptorArg(app *app, raw string) (descriptor.Descriptor, error) {
	origin, err := app.defaultOrigin()
	if err != nil {
		return descriptor.Descriptor{}, err
	}
	return descriptor.Parse(raw, origin, app.Settings)
}

func newToolchainInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install TOOLCHAIN...",
		Short: "Install one or more toolchains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			for _, raw := range args {
				desc, parseErr := parseDescriptorArg(app, raw)
				if parseErr != nil {
					return &ExitError{Code: exitHandledError, Err: parseErr}
				}
				identity, installErr := app.Registry.Install(cmd.Context(), desc)
				if installErr != nil {
					return &ExitError{Code: exitHandledError, Err: installErr}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s installed\n", identity)
			}
			return nil
		},
	}
}

func newToolchainUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall TOOLCHAIN...",
		Short: "Uninstall one or more toolchains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			for _, identity := range args {
				if uninstallErr := app.Registry.Uninstall(identity); uninstallErr != nil {
					return &ExitError{Code: exitHandledError, Err: uninstallErr}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s uninstalled\n", identity)
			}
			return nil
		},
	}
}

func newToolchainListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed and linked toolchains",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			infos, err := app.Registry.List()
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			for _, info := range infos {
				marker := " "
				if info.IsDefault {
					marker = "*"
				}
				if info.IsLinked {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (linked -> %s)\n", marker, info.Identity, info.LinkPath)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, info.Identity)
				}
			}
			return nil
		},
	}
}

func newToolchainLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link NAME PATH",
		Short: "Register a local directory as a named toolchain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			if linkErr := app.Registry.Link(args[0], args[1]); linkErr != nil {
				return &ExitError{Code: exitHandledError, Err: linkErr}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s linked -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func newToolchainUnlinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink NAME",
		Short: "Remove a linked toolchain registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			if unlinkErr := app.Registry.Unlink(args[0]); unlinkErr != nil {
				return &ExitError{Code: exitHandledError, Err: unlinkErr}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s unlinked\n", args[0])
			return nil
		},
	}
}

func newToolchainDefaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "default [TOOLCHAIN]",
		Short: "Show or set the default toolchain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			if len(args) == 0 {
				var current string
				if withErr := app.Settings.With(func(s store.Settings) error {
					current = s.DefaultToolchain
					return nil
				}); withErr != nil {
					return &ExitError{Code: exitHandledError, Err: withErr}
				}
				if current == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "no default toolchain set")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), current)
				}
				return nil
			}
			desc, parseErr := parseDescriptorArg(app, args[0])
			if parseErr != nil {
				return &ExitError{Code: exitHandledError, Err: parseErr}
			}
			identity, installErr := app.Registry.Install(cmd.Context(), desc)
			if installErr != nil {
				return &ExitError{Code: exitHandledError, Err: installErr}
			}
			if setErr := app.Registry.SetDefault(identity); setErr != nil {
				return &ExitError{Code: exitHandledError, Err: setErr}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "default toolchain set to %s\n", identity)
			return nil
		},
	}
}
