package selfupdate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddAndRemoveEnvSourceFromProfiles_RoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SHELL", "/bin/bash")
	t.Setenv("ZDOTDIR", "")

	root := t.TempDir()
	layout := testLayout(root)
	layout.EnvScriptUnix = filepath.Join(root, "env")

	if err := AddEnvSourceToProfiles(layout); err != nil {
		t.Fatalf("AddEnvSourceToProfiles: %v", err)
	}

	profile := filepath.Join(home, ".profile")
	data, err := os.ReadFile(profile)
	if err != nil {
		t.Fatalf("reading .profile: %v", err)
	}
	if !strings.Contains(string(data), layout.EnvScriptUnix) {
		t.Fatalf(".profile = %q, want it to contain %q", data, layout.EnvScriptUnix)
	}

	// Calling Add again must not duplicate the line.
	if err := AddEnvSourceToProfiles(layout); err != nil {
		t.Fatalf("second AddEnvSourceToProfiles: %v", err)
	}
	data, err = os.ReadFile(profile)
	if err != nil {
		t.Fatalf("reading .profile: %v", err)
	}
	if strings.Count(string(data), layout.EnvScriptUnix) != 1 {
		t.Fatalf(".profile contains %d copies of the source line, want 1:\n%s", strings.Count(string(data), layout.EnvScriptUnix), data)
	}

	if err := RemoveEnvSourceFromProfiles(layout); err != nil {
		t.Fatalf("RemoveEnvSourceFromProfiles: %v", err)
	}
	data, err = os.ReadFile(profile)
	if err != nil {
		t.Fatalf("reading .profile after removal: %v", err)
	}
	if strings.Contains(string(data), layout.EnvScriptUnix) {
		t.Fatalf(".profile still contains the source line after removal:\n%s", data)
	}
}

func TestCandidateProfiles_IncludesZprofileForZsh(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SHELL", "/usr/bin/zsh")
	t.Setenv("ZDOTDIR", "")

	profiles := candidateProfiles()
	found := false
	for _, p := range profiles {
		if p == filepath.Join(home, ".zprofile") {
			found = true
		}
	}
	if !found {
		t.Errorf("candidateProfiles() = %v, want .zprofile included for a zsh $SHELL", profiles)
	}
}
