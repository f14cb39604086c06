package main

import (
	"os"
	"testing"
)

func TestResolveOverrideDirExplicitPath(t *testing.T) {
	t.Parallel()

	dir, err := resolveOverrideDir("/some/explicit/path")
	if err != nil {
		t.Fatalf("resolveOverrideDir: %v", err)
	}
	if dir != "/some/explicit/path" {
		t.Fatalf("resolveOverrideDir = %q, want the path unchanged", dir)
	}
}

func TestResolveOverrideDirDefaultsToCwd(t *testing.T) {
	t.Parallel()

	want, err := os.Getwd()
	if err != nil {
		t.Fatalf("os.Getwd: %v", err)
	}
	got, err := resolveOverrideDir("")
	if err != nil {
		t.Fatalf("resolveOverrideDir: %v", err)
	}
	if got != want {
		t.Fatalf("resolveOverrideDir(\"\") = %q, want %q", got, want)
	}
}
