// Command elan is the Lean toolchain manager: a single binary that acts
// as the manager itself (argv[0] "elan"), the bootstrap installer
// (argv[0] "elan-init"), and a transparent proxy for every Lean tool
// name it manages (lean, lake, leanc, ...). Grounded on
// original_source/src/elan-cli's three-way split between bin/elan.rs,
// bin/elan-init.rs, and proxy_mode.rs, collapsed into one argv[0]
// dispatch the way the original's proxy shims already do at the
// filesystem level.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leanprover/elan/internal/platform"
	"github.com/leanprover/elan/internal/proxy"
	"github.com/leanprover/elan/internal/selfupdate"
	"github.com/leanprover/elan/internal/store"
)

func main() {
	name := strings.TrimSuffix(filepath.Base(os.Args[0]), platform.ExeSuffix())

	switch {
	case name == "elan-init":
		runBootstrapInstaller(os.Args[1:])
	case proxy.IsManagerName(name):
		consumePendingUpdate()
		pruneTmp()
		Execute()
	default:
		runProxied(name, os.Args[1:])
	}
}

// consumePendingUpdate finishes a Windows self-update that had to stage
// its replacement binary on the previous invocation (the running
// executable couldn't be overwritten while it was still mapped into
// memory). A no-op on platforms where replaceBinary always completes the
// rename immediately. Best-effort: a failure here is logged to stderr
// but never blocks the command the user actually invoked.
func consumePendingUpdate() {
	layout, err := store.Resolve()
	if err != nil {
		return
	}
	if err := selfupdate.ConsumePendingUpdate(layout); err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("elan: finishing pending self-update: "+err.Error()))
	}
}

// pruneTmp clears Layout.Tmp's staging area on manager startup (C1's
// temp/tmp lifecycle ownership), so a crash mid-install never leaves a
// stale staging directory or lock file behind indefinitely. Only the
// manager entrypoint prunes it — a proxied tool invocation runs far more
// often and concurrently with manager-driven installs, so pruning there
// would risk deleting another in-flight install's staging directory or
// lock file out from under it. Best-effort, like consumePendingUpdate.
func pruneTmp() {
	layout, err := store.Resolve()
	if err != nil {
		return
	}
	if err := layout.PruneTmp(); err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("elan: pruning tmp directory: "+err.Error()))
	}
}

// runProxied dispatches a proxied tool invocation (C8) and never returns
// on unix, matching syscall.Exec's own contract; on Windows it returns
// after calling os.Exit itself once the child has finished.
func runProxied(tool string, args []string) {
	layout, err := store.Resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("elan: "+err.Error()))
		os.Exit(exitHandledError)
	}

	sink := newCLISink(os.Getenv("ELAN_QUIET") != "")
	app, err := newApp(sink)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("elan: "+err.Error()))
		os.Exit(exitHandledError)
	}

	dispatcher := &proxy.Dispatcher{
		Layout:      layout,
		Settings:    app.Settings,
		Registry:    app.Registry,
		Sink:        sink,
		AutoInstall: true,
	}

	if err := dispatcher.Run(context.Background(), tool, args); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("elan: "+err.Error()))
		os.Exit(exitHandledError)
	}
}
