package selfupdate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leanprover/elan/internal/platform"
	"github.com/leanprover/elan/internal/store"
)

// Uninstall removes the entire store (toolchains, downloads, settings,
// shims) and any shell-profile lines added during Install. Linked
// toolchains are untouched: their source directories live outside the
// store entirely (descriptor.Linked resolves through Settings.Links to
// an arbitrary external path), so deleting the store only removes the
// registration, never the directory it points at — satisfying spec.md
// §4.9's "preserves linked toolchain source directories" without special
// casing, the same way the original implementation's directory-skip loop
// does by construction.
func Uninstall(layout store.Layout) error {
	elanPath := filepath.Join(layout.Bin, "elan"+platform.ExeSuffix())
	if _, err := os.Stat(elanPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotSelfInstalled, layout.Root)
	}

	if err := RemoveEnvSourceFromProfiles(layout); err != nil {
		return fmt.Errorf("reverting shell profile changes: %w", err)
	}

	if err := os.RemoveAll(layout.Root); err != nil {
		return fmt.Errorf("removing %s: %w", layout.Root, err)
	}
	return nil
}
