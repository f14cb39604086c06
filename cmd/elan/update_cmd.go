package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leanprover/elan/internal/descriptor"
)

// newUpdateCommand builds `elan update [TOOLCHAIN...]`: re-resolve and,
// if changed, reinstall one, many, or (with no arguments) every
// installed non-linked toolchain. Grounded on
// original_source/src/elan-cli's update_all_channels/update_from_dist.
func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update [TOOLCHAIN...]",
		Short: "Refresh one, many, or all toolchains",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}

			targets := args
			if len(targets) == 0 {
				infos, listErr := app.Registry.List()
				if listErr != nil {
					return &ExitError{Code: exitHandledError, Err: listErr}
				}
				for _, info := range infos {
					if !info.IsLinked {
						targets = append(targets, info.Identity)
					}
				}
			}

			for _, raw := range targets {
				desc, parseErr := parseDescriptorArg(app, raw)
				if parseErr != nil {
					return &ExitError{Code: exitHandledError, Err: parseErr}
				}
				if desc.Kind == descriptor.Versioned || desc.Kind == descriptor.Remote {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is pinned to a fixed tag; skipping\n", raw)
					continue
				}
				identity, updateErr := app.Registry.Update(cmd.Context(), desc)
				if updateErr != nil {
					return &ExitError{Code: exitHandledError, Err: updateErr}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s up to date\n", identity)
			}
			return nil
		},
	}
}
