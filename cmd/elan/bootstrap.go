package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/leanprover/elan/internal/selfupdate"
	"github.com/leanprover/elan/internal/store"
)

// runBootstrapInstaller is the elan-init entrypoint: a first-run install
// with its own small flag set rather than the full cobra command tree,
// mirroring original_source/src/elan-cli's separate bin/elan-init.rs
// binary (here just a different argv[0] branch of the same executable,
// per spec.md §4.9).
func runBootstrapInstaller(argv []string) {
	fs := flag.NewFlagSet("elan-init", flag.ExitOnError)
	defaultToolchain := fs.String("default-toolchain", "", "default toolchain to install, or \"none\"")
	noModify := fs.Bool("no-modify-path", false, "don't modify shell profile files")
	yes := fs.Bool("y", false, "don't prompt for confirmation")
	quietFlag := fs.Bool("q", false, "suppress non-error output")
	if err := fs.Parse(argv); err != nil {
		os.Exit(exitHandledError)
	}

	layout, err := store.Resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("elan-init: "+err.Error()))
		os.Exit(exitHandledError)
	}

	sink := newCLISink(*quietFlag)

	if !*yes {
		fmt.Fprintf(os.Stderr, "this will install elan into %s and modify your shell profile unless --no-modify-path is given.\ncontinue? [y/N] ", layout.Root)
		var reply string
		_, _ = fmt.Scanln(&reply)
		if reply != "y" && reply != "Y" {
			fmt.Fprintln(os.Stderr, "aborted")
			os.Exit(exitHandledError)
		}
	}

	opts := selfupdate.InstallOpts{
		DefaultToolchain: *defaultToolchain,
		NoModifyPath:     *noModify,
		NoPrompt:         *yes,
	}
	if err := selfupdate.Install(context.Background(), layout, opts, sink); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("elan-init: "+err.Error()))
		os.Exit(exitHandledError)
	}
}
