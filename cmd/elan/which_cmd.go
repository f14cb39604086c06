package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leanprover/elan/internal/override"
	"github.com/leanprover/elan/internal/platform"
)

// newWhichCommand builds `elan which PROGRAM`: resolve PROGRAM through
// the same override ladder the proxy dispatcher uses and print the
// absolute path elan would exec, without running it. Grounded on
// original_source/src/elan/toolchain.rs's binary_file, a supplemental
// feature the abridged spec surface names directly.
func newWhichCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "which PROGRAM",
		Short: "Show the resolved path for a proxied program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}

			cwd, err := os.Getwd()
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			desc, _, resolveErr := override.Resolve(cwd, "", app.Settings, app.Settings, app.Layout.Toolchains)
			if resolveErr != nil {
				return &ExitError{Code: exitHandledError, Err: resolveErr}
			}
			origin, originErr := app.defaultOrigin()
			if originErr != nil {
				return &ExitError{Code: exitHandledError, Err: originErr}
			}
			identity, identErr := desc.Identity(origin)
			if identErr != nil {
				return &ExitError{Code: exitHandledError, Err: identErr}
			}

			root := app.Layout.ToolchainDir(identity)
			if linkPath, isLinked, linkErr := app.Settings.LinkPath(identity); linkErr == nil && isLinked {
				root = linkPath
			}
			binPath := filepath.Join(root, "bin", args[0]+platform.ExeSuffix())
			if _, statErr := os.Stat(binPath); statErr != nil {
				return &ExitError{Code: exitHandledError, Err: fmt.Errorf("%s has no binary named %s", identity, args[0])}
			}
			fmt.Fprintln(cmd.OutOrStdout(), binPath)
			return nil
		},
	}
}
