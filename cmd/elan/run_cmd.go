package main

import (
	"github.com/spf13/cobra"

	"github.com/leanprover/elan/internal/proxy"
)

// newRunCommand builds `elan run TOOLCHAIN PROGRAM [ARGS...]`: execute
// PROGRAM under a specific toolchain for one invocation, bypassing the
// override ladder entirely. Grounded on
// original_source/src/elan-cli/run_command.rs.
func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "run TOOLCHAIN PROGRAM [ARGS...]",
		Short:              "Run a program under a specific toolchain",
		Args:               cobra.MinimumNArgs(2),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(sinkFromFlags())
			if err != nil {
				return &ExitError{Code: exitHandledError, Err: err}
			}
			desc, parseErr := parseDescriptorArg(app, args[0])
			if parseErr != nil {
				return &ExitError{Code: exitHandledError, Err: parseErr}
			}
			origin, originErr := app.defaultOrigin()
			if originErr != nil {
				return &ExitError{Code: exitHandledError, Err: originErr}
			}
			identity, identErr := desc.Identity(origin)
			if identErr != nil {
				return &ExitError{Code: exitHandledError, Err: identErr}
			}
			if _, installErr := app.Registry.Install(cmd.Context(), desc); installErr != nil {
				return &ExitError{Code: exitHandledError, Err: installErr}
			}

			dispatcher := &proxy.Dispatcher{
				Layout:      app.Layout,
				Settings:    app.Settings,
				Registry:    app.Registry,
				Sink:        app.Sink,
				AutoInstall: false,
			}
			runErr := dispatcher.RunAs(cmd.Context(), identity, args[1], args[2:])
			if runErr != nil {
				return &ExitError{Code: exitHandledError, Err: runErr}
			}
			return nil
		},
	}
}
