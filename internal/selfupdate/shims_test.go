package selfupdate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanprover/elan/internal/store"
)

func TestInstallShims_CopiesElanAndEveryProxiedTool(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	layout := testLayout(root)

	execPath := filepath.Join(root, "source-elan")
	if err := os.WriteFile(execPath, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("writing fake executable: %v", err)
	}

	if err := InstallShims(layout, execPath); err != nil {
		t.Fatalf("InstallShims: %v", err)
	}

	elanPath := filepath.Join(layout.Bin, "elan")
	if _, err := os.Stat(elanPath); err != nil {
		t.Fatalf("bin/elan not created: %v", err)
	}

	for _, tool := range ProxiedTools {
		shimPath := filepath.Join(layout.Bin, tool)
		info, err := os.Stat(shimPath)
		if err != nil {
			t.Fatalf("shim %s not created: %v", tool, err)
		}
		if info.Mode()&0o111 == 0 {
			t.Errorf("shim %s is not executable: mode %v", tool, info.Mode())
		}
	}
}

func TestInstallShims_ReplacesExistingShim(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	layout := testLayout(root)
	if err := os.MkdirAll(layout.Bin, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}

	stalePath := filepath.Join(layout.Bin, "lean")
	if err := os.WriteFile(stalePath, []byte("stale"), 0o755); err != nil {
		t.Fatalf("seeding stale shim: %v", err)
	}

	execPath := filepath.Join(root, "source-elan")
	if err := os.WriteFile(execPath, []byte("fresh"), 0o755); err != nil {
		t.Fatalf("writing fake executable: %v", err)
	}

	if err := InstallShims(layout, execPath); err != nil {
		t.Fatalf("InstallShims: %v", err)
	}

	got, err := os.ReadFile(stalePath)
	if err != nil {
		t.Fatalf("reading replaced shim: %v", err)
	}
	if string(got) != "fresh" {
		t.Errorf("lean shim = %q, want the fresh binary's content", got)
	}
}

func testLayout(root string) store.Layout {
	return store.Layout{
		Root:       root,
		Bin:        filepath.Join(root, "bin"),
		Toolchains: filepath.Join(root, "toolchains"),
		Downloads:  filepath.Join(root, "downloads"),
		Tmp:        filepath.Join(root, "tmp"),
	}
}
