package selfupdate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/leanprover/elan/internal/descriptor"
	"github.com/leanprover/elan/internal/dist"
	"github.com/leanprover/elan/internal/platform"
	"github.com/leanprover/elan/internal/store"
	"github.com/leanprover/elan/internal/telemetry"
	"github.com/leanprover/elan/internal/toolchain"
)

// InstallOpts configures the bootstrap install, matching the flags
// setup_mode.rs exposes on elan-init: --default-toolchain,
// --no-modify-path, -y.
type InstallOpts struct {
	// DefaultToolchain is the channel or tag installed and set as the
	// default, or "none" to skip. Empty means "stable".
	DefaultToolchain string

	// NoModifyPath disables the shell-profile PATH edit.
	NoModifyPath bool

	// NoPrompt skips interactive confirmation (the -y flag); Install
	// never itself prompts — the caller (cmd/elan) is responsible for
	// any interactive confirmation before calling Install.
	NoPrompt bool
}

// Install performs the first-run bootstrap: create the store layout,
// copy the running executable into bin/elan plus its proxied-tool shims,
// optionally install a default toolchain, write the env/env.ps1
// snippets, and optionally add a PATH-modifying line to the user's shell
// profile. Mirrors self_update.rs's install() minus its interactive
// prompting, which belongs to the CLI layer.
func Install(ctx context.Context, layout store.Layout, opts InstallOpts, sink telemetry.Sink) error {
	if sink == nil {
		sink = telemetry.Noop{}
	}

	if warning := WarnExistingLean(); warning != "" {
		sink.Warn(warning)
	}

	if err := layout.EnsureDirs(); err != nil {
		return err
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving running executable: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("resolving symlinks for %s: %w", execPath, err)
	}

	if err := InstallShims(layout, execPath); err != nil {
		return err
	}

	if err := layout.WriteEnvScripts(); err != nil {
		return fmt.Errorf("writing env scripts: %w", err)
	}

	settings := store.NewSettingsFile(layout.SettingsPath)

	target := strings.TrimSpace(opts.DefaultToolchain)
	if target == "" {
		target = "stable"
	}
	if target != "none" {
		sink.Installing(target)
		reg := toolchain.New(layout, settings, dist.NewClient())
		reg.Sink = sink
		var origin string
		if err := settings.With(func(s store.Settings) error {
			origin = s.DefaultOrigin
			return nil
		}); err != nil {
			return err
		}
		desc, parseErr := descriptor.Parse(target, origin, settings)
		if parseErr != nil {
			return fmt.Errorf("parsing default toolchain %q: %w", target, parseErr)
		}
		identity, installErr := reg.Install(ctx, desc)
		if installErr != nil {
			return fmt.Errorf("installing default toolchain %q: %w", target, installErr)
		}
		if err := reg.SetDefault(identity); err != nil {
			return fmt.Errorf("setting default toolchain: %w", err)
		}
		sink.Installed(identity)
	}

	if !opts.NoModifyPath {
		if err := AddEnvSourceToProfiles(layout); err != nil {
			return fmt.Errorf("updating shell profile: %w", err)
		}
	}

	sink.Info("elan is installed at " + layout.Root)
	return nil
}

// WarnExistingLean reports a warning string if a `lean` binary already
// exists on PATH outside of layout — mirrors check_existence_of_lean_in_path,
// but only ever warns; it never blocks installation, since spec.md §4.9
// only calls for a warning, not a hard stop.
func WarnExistingLean() string {
	path, err := exec.LookPath("lean" + platform.ExeSuffix())
	if err != nil {
		return ""
	}
	return fmt.Sprintf("found an existing 'lean' on PATH at %s; it will be shadowed by elan's shims once PATH is updated", path)
}
