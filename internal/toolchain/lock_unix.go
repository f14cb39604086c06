//go:build unix

package toolchain

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lock holds a blocking advisory flock on a per-identity lock file,
// serializing registry operations against the same toolchain while
// letting operations on distinct identities proceed concurrently —
// spec.md §4.6's "per-identity on-disk lock" requirement. Grounded on
// invowk-invowk/internal/runtime/run_lock_linux.go's flock pattern,
// generalized from one well-known path to one lock file per identity.
type lock struct {
	file *os.File
}

// acquireLock opens (or creates) the lock file at path and blocks until
// an exclusive (or, if shared is true, shared) flock is granted.
func acquireLock(path string, shared bool) (*lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	how := unix.LOCK_EX
	if shared {
		how = unix.LOCK_SH
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &lock{file: f}, nil
}

// release unlocks and closes the lock file. Safe to call on a nil lock.
func (l *lock) release() {
	if l == nil || l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}
