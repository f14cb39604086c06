// Package selfupdate implements the self installer/updater (C9): the
// bootstrap install performed when the binary is invoked as elan-init,
// the in-place self-update performed by `elan self update`, and the
// self-uninstall performed by `elan self uninstall`. Grounded on
// original_source/src/elan-cli/self_update.rs and setup_mode.rs, adapted
// to Go's process and filesystem model in the manner of the teacher's own
// internal/selfupdate package (github.go-style release client reused from
// internal/dist, download-to-temp-then-rename discipline, checksum
// verification before any binary is trusted).
package selfupdate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/leanprover/elan/internal/platform"
	"github.com/leanprover/elan/internal/store"
)

// ProxiedTools lists the argv[0] names, besides "elan" itself, that get a
// shim copy in bin/ — mirrors TOOLS in self_update.rs.
var ProxiedTools = []string{
	"lean",
	"leanpkg",
	"leanchecker",
	"leanc",
	"leanmake",
	"lake",
}

// InstallShims copies execPath to bin/elan and to a shim under each
// proxied tool name. Shims are real file copies, not symlinks or hard
// links: spec.md §4.9 calls for "real copies, not symlinks, to keep
// argv[0] meaningful", a stronger requirement than the original
// implementation's hardlink-with-symlink-fallback (hardlinks share the
// same inode and so would report the same argv[0] as readlink/getattr
// would show it, but the proxy dispatcher here only ever inspects
// os.Args[0] as passed in by the OS loader, not the inode — copying is
// simplest and matches the letter of spec.md).
func InstallShims(layout store.Layout, execPath string) error {
	if err := os.MkdirAll(layout.Bin, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}

	elanPath := filepath.Join(layout.Bin, "elan"+platform.ExeSuffix())
	if err := copyExecutable(execPath, elanPath); err != nil {
		return fmt.Errorf("installing elan binary: %w", err)
	}

	for _, tool := range ProxiedTools {
		shimPath := filepath.Join(layout.Bin, tool+platform.ExeSuffix())
		if err := copyExecutable(elanPath, shimPath); err != nil {
			return fmt.Errorf("installing %s shim: %w", tool, err)
		}
	}
	return nil
}

// copyExecutable copies src to dst, removing dst first — matching
// install_bins's comment that even on Linux you can't just copy a new
// binary over a running one in place; it must be unlinked first — and
// marks the result executable.
func copyExecutable(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("removing existing %s: %w", dst, err)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return os.Chmod(dst, 0o755)
}
