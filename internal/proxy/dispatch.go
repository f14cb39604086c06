// Package proxy implements the proxy dispatcher (C8): the logic run
// when the elan binary is invoked under a proxied tool name (lean,
// lake, leanc, ...) rather than as the manager itself. Grounded on
// original_source/src/elan-cli/proxy_mode.rs (argv inspection, +tag
// stripping, override-notice gating) and
// original_source/src/elan/toolchain.rs's create_command/set_env/
// set_path (PATH re-prefixing, LEAN_RECURSION_COUNT guard, the
// Windows extension-less-script special case).
package proxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leanprover/elan/internal/descriptor"
	"github.com/leanprover/elan/internal/override"
	"github.com/leanprover/elan/internal/platform"
	"github.com/leanprover/elan/internal/store"
	"github.com/leanprover/elan/internal/telemetry"
	"github.com/leanprover/elan/internal/toolchain"
)

// ManagerNames are the argv[0] basenames that select manager-command
// parsing instead of tool proxying.
var ManagerNames = []string{"elan", "elan-init"}

// IsManagerName reports whether name (an argv[0] basename, extension
// stripped) should be parsed as a manager command.
func IsManagerName(name string) bool {
	name = strings.TrimSuffix(name, platform.ExeSuffix())
	for _, m := range ManagerNames {
		if name == m {
			return true
		}
	}
	return false
}

// recursionCountMax bounds LEAN_RECURSION_COUNT, mirroring
// env_var::LEAN_RECURSION_COUNT_MAX in the original implementation —
// a guard against a toolchain's own binary shadowing itself via PATH
// and causing the proxy to exec itself indefinitely.
const recursionCountMax = 5

// ErrToolNotInToolchain is returned when the resolved toolchain has no
// binary for the requested tool name.
var ErrToolNotInToolchain = errors.New("tool not found in toolchain")

// Dispatcher resolves and execs proxied tool invocations.
type Dispatcher struct {
	Layout   store.Layout
	Settings *store.SettingsFile
	Registry *toolchain.Registry
	Sink     telemetry.Sink

	// AutoInstall controls whether an explicitly-selected (+tag) but
	// not-yet-installed toolchain is installed on demand.
	AutoInstall bool
}

func (d *Dispatcher) sink() telemetry.Sink {
	if d.Sink == nil {
		return telemetry.Noop{}
	}
	return d.Sink
}

// Run resolves the toolchain for tool (the proxied binary's basename,
// e.g. "lean" or "lake"), installs it if needed and permitted, and execs
// it with args. On unix this call never returns on success (the process
// image is replaced); on Windows it returns after the child exits,
// having already called os.Exit with the child's status.
func (d *Dispatcher) Run(ctx context.Context, tool string, argv1Plus []string) error {
	var selector string
	args := argv1Plus
	if len(argv1Plus) > 0 && strings.HasPrefix(argv1Plus[0], "+") {
		selector = argv1Plus[0][1:]
		args = argv1Plus[1:]
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	desc, reason, err := override.Resolve(cwd, selector, d.Settings, d.Settings, d.Layout.Toolchains)
	if err != nil {
		return err
	}

	identity, installErr := d.resolveIdentity(ctx, desc, selector != "")
	if installErr != nil {
		return installErr
	}

	d.notifyUsing(identity, reason)

	binPath, binDir, err := d.binaryPath(identity, tool)
	if err != nil {
		return err
	}

	return execTool(binPath, tool, args, identity, binDir)
}

// RunAs execs tool under an already-resolved identity, bypassing the
// override ladder entirely — used by `elan run TOOLCHAIN PROGRAM` (C8's
// run-under-a-specific-toolchain mode), which always names its toolchain
// explicitly and has no notion of an ambient override.
func (d *Dispatcher) RunAs(ctx context.Context, identity, tool string, args []string) error {
	binPath, binDir, err := d.binaryPath(identity, tool)
	if err != nil {
		return err
	}
	return execTool(binPath, tool, args, identity, binDir)
}

// resolveIdentity turns desc into an installed identity, installing it
// when explicit is true and AutoInstall allows it. A descriptor reached
// via the override ladder's implicit rungs (env, override DB,
// lean-toolchain, leanpkg.toml, settings default) is never silently
// auto-installed — only an explicit `+tag` selector may trigger an
// install from the proxy path, matching spec.md §4.8's "respecting the
// auto-install policy for explicit selectors" clause.
func (d *Dispatcher) resolveIdentity(ctx context.Context, desc descriptor.Descriptor, explicit bool) (string, error) {
	origin, err := defaultOrigin(d.Settings)
	if err != nil {
		return "", err
	}
	identity, err := desc.Identity(origin)
	if err != nil {
		return "", err
	}

	if desc.Kind == descriptor.Linked {
		return identity, nil
	}
	if _, statErr := os.Stat(d.Layout.ToolchainDir(identity)); statErr == nil {
		return identity, nil
	}

	if explicit && d.AutoInstall {
		return d.Registry.Install(ctx, desc)
	}
	return "", fmt.Errorf("%w: %s", toolchain.ErrNotInstalled, identity)
}

func defaultOrigin(settings *store.SettingsFile) (string, error) {
	var origin string
	err := settings.With(func(s store.Settings) error {
		origin = s.DefaultOrigin
		return nil
	})
	return origin, err
}

// notifyUsing posts a Using notification, suppressing the override-DB
// variant when ELAN_NO_OVERRIDE_NOTICE is set — spec.md's supplemental
// feature grounded on proxy_mode.rs's own note! gating.
func (d *Dispatcher) notifyUsing(identity string, reason override.Reason) {
	if reason.Rung == override.RungOverrideDB && os.Getenv("ELAN_NO_OVERRIDE_NOTICE") != "" {
		return
	}
	d.sink().Using(identity, reasonText(reason))
}

func reasonText(r override.Reason) string {
	switch r.Rung {
	case override.RungCLISelector:
		return "explicit selector '" + r.Detail + "'"
	case override.RungEnvironment:
		return r.Detail
	case override.RungOverrideDB:
		return "override set on '" + r.Detail + "'"
	case override.RungToolchainFile:
		return "'" + r.Detail + "'"
	case override.RungLeanpkgFile:
		return "'" + r.Detail + "'"
	case override.RungInToolchainDirectory:
		return "inside '" + r.Detail + "'"
	case override.RungSettingsDefault:
		return "default toolchain"
	default:
		return ""
	}
}

// binaryPath resolves the toolchain's own copy of tool, falling back to
// a PATH lookup (bounded by recursionCountMax, like the original) when
// the toolchain itself doesn't ship that binary — e.g. a linked
// toolchain whose bin/ doesn't include every proxied name.
func (d *Dispatcher) binaryPath(identity, tool string) (path, binDir string, err error) {
	linkPath, isLinked, lookupErr := d.Settings.LinkPath(identity)
	if lookupErr != nil {
		return "", "", lookupErr
	}

	var root string
	if isLinked {
		root = linkPath
	} else {
		root = d.Layout.ToolchainDir(identity)
	}
	binDir = filepath.Join(root, "bin")

	candidate := filepath.Join(binDir, tool+platform.ExeSuffix())
	if fi, statErr := os.Stat(candidate); statErr == nil && !fi.IsDir() {
		return candidate, binDir, nil
	}

	if recursionCount() > recursionCountMax-1 {
		return "", "", fmt.Errorf("%w: %s", ErrToolNotInToolchain, tool)
	}

	found, lookErr := exec.LookPath(tool)
	if lookErr != nil {
		return "", "", fmt.Errorf("%w: %s", ErrToolNotInToolchain, tool)
	}
	return found, binDir, nil
}

func recursionCount() int {
	n, err := strconv.Atoi(os.Getenv("LEAN_RECURSION_COUNT"))
	if err != nil {
		return 0
	}
	return n
}
