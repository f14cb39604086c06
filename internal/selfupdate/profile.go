package selfupdate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/leanprover/elan/internal/platform"
	"github.com/leanprover/elan/internal/store"
)

// candidateProfiles returns the shell rc files do_add_to_path /
// do_remove_from_path would edit on unix: ~/.profile always, plus
// ~/.zprofile (or $ZDOTDIR/.zprofile) when $SHELL mentions zsh, plus an
// existing ~/.bash_profile (only if it already exists — creating one
// would stop .profile from being read, per the original's own comment).
func candidateProfiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	var profiles []string
	profiles = append(profiles, filepath.Join(home, ".profile"))

	if shell := os.Getenv("SHELL"); strings.Contains(shell, "zsh") {
		zdotdir := os.Getenv("ZDOTDIR")
		if zdotdir == "" {
			zdotdir = home
		}
		profiles = append(profiles, filepath.Join(zdotdir, ".zprofile"))
	}

	bashProfile := filepath.Join(home, ".bash_profile")
	if _, statErr := os.Stat(bashProfile); statErr == nil {
		profiles = append(profiles, bashProfile)
	}

	return profiles
}

// sourceLine is the line appended to a shell profile, matching
// shell_export_string's own prepend-to-PATH convention so a
// system-installed lean doesn't shadow the toolchain elan selects.
func sourceLine(layout store.Layout) string {
	return fmt.Sprintf(". \"%s\"", layout.EnvScriptUnix)
}

// AddEnvSourceToProfiles appends a line sourcing the env script to every
// candidate profile that doesn't already contain it. A no-op on Windows,
// where PATH is a registry value rather than a shell rc file (spec.md's
// Windows self-install path is out of scope for this port beyond writing
// env.ps1 itself — see DESIGN.md).
func AddEnvSourceToProfiles(layout store.Layout) error {
	if runtime.GOOS == platform.Windows {
		return nil
	}
	line := sourceLine(layout)
	for _, profile := range candidateProfiles() {
		if err := appendIfMissing(profile, line); err != nil {
			return fmt.Errorf("updating %s: %w", profile, err)
		}
	}
	return nil
}

// RemoveEnvSourceFromProfiles deletes the previously-added source line
// from every candidate profile, leaving the rest of the file untouched —
// the uninstall-time counterpart of AddEnvSourceToProfiles.
func RemoveEnvSourceFromProfiles(layout store.Layout) error {
	line := sourceLine(layout)
	for _, profile := range candidateProfiles() {
		if err := removeLine(profile, line); err != nil {
			return fmt.Errorf("updating %s: %w", profile, err)
		}
	}
	return nil
}

func appendIfMissing(path, line string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(existing), line) {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = fmt.Fprintf(f, "\n%s\n", line)
	return err
}

func removeLine(path, line string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	kept := make([]string, 0, len(lines))
	changed := false
	for _, l := range lines {
		if strings.TrimSpace(l) == strings.TrimSpace(line) {
			changed = true
			continue
		}
		kept = append(kept, l)
	}
	if !changed {
		return nil
	}
	return os.WriteFile(path, []byte(strings.Join(kept, "\n")), 0o644)
}
