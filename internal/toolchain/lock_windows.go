//go:build windows

package toolchain

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// lock is the Windows counterpart of the unix flock-based lock, using
// LockFileEx over the whole file as the exclusive/shared primitive.
// Grounded on the same per-identity locking requirement in spec.md §4.6;
// the teacher's own locking code (run_lock_linux.go) has no Windows
// sibling to adapt from, so this follows golang.org/x/sys/windows's own
// documented LockFileEx usage pattern directly.
type lock struct {
	file *os.File
}

func acquireLock(path string, shared bool) (*lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	var flags uint32
	if !shared {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}

	ol := new(windows.Overlapped)
	const reserved = 0
	const lenLow, lenHigh = 1, 0
	if err := windows.LockFileEx(windows.Handle(f.Fd()), flags, reserved, lenLow, lenHigh, ol); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("LockFileEx %s: %w", path, err)
	}

	return &lock{file: f}, nil
}

func (l *lock) release() {
	if l == nil || l.file == nil {
		return
	}
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, ol)
	_ = l.file.Close()
	l.file = nil
}
