// Package store resolves the on-disk layout of the elan home directory
// (C1) and persists user settings within it (C10). Grounded on
// original_source/src/elan/config.rs's Cfg::from_env (directory
// resolution) and original_source/src/elan/settings.rs (the Settings
// model and its TOML shape), adapted to Go using
// github.com/pelletier/go-toml/v2 in place of the Rust toml crate.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/leanprover/elan/internal/issue"
	"github.com/leanprover/elan/internal/platform"
)

// Layout holds the resolved paths that make up one elan home directory.
// All paths are descended from Root, computed once at startup per
// spec.md §2.
type Layout struct {
	Root           string // $ELAN_HOME, or ~/.elan by default
	Bin            string // Root/bin — proxy shims (elan, lean, lake, ...)
	Toolchains     string // Root/toolchains — one subdir per installed identity
	UpdateHashes   string // Root/update-hashes — per-identity remote-state fingerprints
	Downloads      string // Root/downloads — content-addressed download cache
	Tmp            string // Root/tmp — staging area for in-progress installs
	SettingsPath   string // Root/settings.toml
	EnvScriptUnix  string // Root/env — POSIX shell snippet adding Bin to PATH
	EnvScriptPosh  string // Root/env.ps1 — PowerShell equivalent
}

// Resolve computes the Layout for the current process: $ELAN_HOME if set,
// otherwise "<home>/.elan" following the original implementation's
// default. It does not create any directories; call EnsureDirs for that.
func Resolve() (Layout, error) {
	root := os.Getenv("ELAN_HOME")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Layout{}, fmt.Errorf("resolving elan home: %w", err)
		}
		root = filepath.Join(home, ".elan")
	}
	return layoutFor(root), nil
}

func layoutFor(root string) Layout {
	return Layout{
		Root:          root,
		Bin:           filepath.Join(root, "bin"),
		Toolchains:    filepath.Join(root, "toolchains"),
		UpdateHashes:  filepath.Join(root, "update-hashes"),
		Downloads:     filepath.Join(root, "downloads"),
		Tmp:           filepath.Join(root, "tmp"),
		SettingsPath:  filepath.Join(root, "settings.toml"),
		EnvScriptUnix: filepath.Join(root, "env"),
		EnvScriptPosh: filepath.Join(root, "env.ps1"),
	}
}

// ToolchainDir returns the install directory for a given resolved
// identity.
func (l Layout) ToolchainDir(identity string) string {
	return filepath.Join(l.Toolchains, identity)
}

// UpdateHashPath returns the path of the remote-state fingerprint file
// for a given identity, used by the resolver (C3) to skip re-downloading
// a channel that hasn't changed upstream.
func (l Layout) UpdateHashPath(identity string) string {
	return filepath.Join(l.UpdateHashes, identity)
}

// LockPath returns the path of the advisory lock file for a given
// identity. The toolchain registry holds it exclusively while it
// installs, updates or uninstalls that identity; proxy dispatch takes no
// lock.
func (l Layout) LockPath(identity string) string {
	return filepath.Join(l.Tmp, identity+".lock")
}

// EnsureDirs creates every directory in the layout that must exist before
// elan can operate, mirroring ensure_dir_exists calls scattered through
// config.rs's Cfg::from_env and get_toolchain.
func (l Layout) EnsureDirs() error {
	dirs := []string{l.Root, l.Bin, l.Toolchains, l.UpdateHashes, l.Downloads, l.Tmp}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return issue.NewErrorContext().
				WithOperation("create elan directory").
				WithResource(d).
				WithSuggestion("Check that the parent directory is writable").
				Wrap(err).
				BuildError()
		}
	}
	return nil
}

// PruneTmp removes every entry left under Tmp from a prior run, then
// recreates Tmp itself. elan owns Tmp's entire lifecycle (staging
// directories for in-progress extracts, lock files, partial downloads)
// and nothing under it is ever meant to survive a process exit, so a
// leftover entry only ever means a prior run crashed or was killed
// mid-operation; it is safe to discard on the next startup.
func (l Layout) PruneTmp() error {
	if err := os.RemoveAll(l.Tmp); err != nil {
		return issue.NewErrorContext().
			WithOperation("prune tmp directory").
			WithResource(l.Tmp).
			WithSuggestion("Check that the directory is writable").
			Wrap(err).
			BuildError()
	}
	return os.MkdirAll(l.Tmp, 0o755)
}

// EnvScriptPath returns the PATH-setup script appropriate for the host
// shell family: env.ps1 on Windows, env otherwise.
func (l Layout) EnvScriptPath() string {
	if runtime.GOOS == platform.Windows {
		return l.EnvScriptPosh
	}
	return l.EnvScriptUnix
}

// WriteEnvScripts (re)writes both the POSIX and PowerShell PATH-setup
// snippets. elan's own installer sources env into the user's shell rc
// file; unlike rustup-style managers nothing else depends on its exact
// contents, so both are always written for portability between shells on
// the same machine.
func (l Layout) WriteEnvScripts() error {
	posix := fmt.Sprintf("#!/bin/sh\ncase \":${PATH}:\" in\n  *:\"%s\":*) ;;\n  *) export PATH=\"%s:$PATH\" ;;\nesac\n", l.Bin, l.Bin)
	if err := writeFileAtomic(l.EnvScriptUnix, []byte(posix), 0o644); err != nil {
		return err
	}
	posh := fmt.Sprintf("$binDir = \"%s\"\nif ($env:PATH -split \";\" -notcontains $binDir) {\n  $env:PATH = \"$binDir;\" + $env:PATH\n}\n", l.Bin)
	return writeFileAtomic(l.EnvScriptPosh, []byte(posh), 0o644)
}

// writeFileAtomic writes data to a sibling temp file, syncs it, then
// renames it over path — the same staged-write discipline
// internal/selfupdate uses for binary replacement, applied here to
// settings and env-script writes so a crash mid-write never leaves a
// truncated file behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".elan-write-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into place %s: %w", path, err)
	}
	return nil
}
