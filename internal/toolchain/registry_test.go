package toolchain

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanprover/elan/internal/descriptor"
	"github.com/leanprover/elan/internal/dist"
	"github.com/leanprover/elan/internal/store"
)

func writeAssetArchive(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() { _ = f.Close() }()
	gz := gzip.NewWriter(f)
	defer func() { _ = gz.Close() }()
	tw := tar.NewWriter(gz)
	defer func() { _ = tw.Close() }()

	contents := "#!/bin/sh\necho lean\n"
	hdr := &tar.Header{Name: "lean4/bin/lean", Mode: 0o755, Size: int64(len(contents))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write([]byte(contents)); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

// newTestRegistry wires a Registry against an httptest server that
// serves one release ("v4.9.0", the channel-selected "stable" release)
// with a single platform-matching asset, backed by a real tar.gz on
// disk so Install exercises the full download+extract path.
func newTestRegistry(t *testing.T) (*Registry, store.Layout) {
	t.Helper()

	root := t.TempDir()
	archiveDir := t.TempDir()
	archivePath := filepath.Join(archiveDir, "lean-v4.9.0-x86_64-linux.tar.gz")
	writeAssetArchive(t, archivePath)

	mux := http.NewServeMux()
	var assetURL string
	mux.HandleFunc("/repos/leanprover/lean4/releases", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"tag_name":   "v4.9.0",
				"prerelease": false,
				"assets": []map[string]any{
					{"name": "lean-v4.9.0-x86_64-linux.tar.gz", "browser_download_url": assetURL},
					{"name": "lean-v4.9.0-aarch64-darwin.tar.gz", "browser_download_url": assetURL},
				},
			},
		})
	})
	mux.HandleFunc("/assets/lean-v4.9.0-x86_64-linux.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archivePath)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	assetURL = srv.URL + "/assets/lean-v4.9.0-x86_64-linux.tar.gz"

	t.Setenv("ELAN_HOME", root)
	layout, err := store.Resolve()
	if err != nil {
		t.Fatalf("store.Resolve: %v", err)
	}
	if err := layout.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	settings := store.NewSettingsFile(layout.SettingsPath)
	client := dist.NewClient(dist.WithBaseURL(srv.URL))

	reg := New(layout, settings, client)
	reg.HTTP = srv.Client()
	return reg, layout
}

func TestSelectChannel(t *testing.T) {
	t.Parallel()

	releases := []dist.Release{
		{TagName: "v4.9.0", Prerelease: false},
		{TagName: "v4.10.0-rc1", Prerelease: true},
		{TagName: "nightly-2023-06-27", Prerelease: false},
	}

	stable, err := selectChannel(releases, "stable")
	if err != nil || stable.TagName != "v4.9.0" {
		t.Fatalf("selectChannel(stable) = %v, %v, want v4.9.0", stable, err)
	}

	beta, err := selectChannel(releases, "beta")
	if err != nil || beta.TagName != "v4.10.0-rc1" {
		t.Fatalf("selectChannel(beta) = %v, %v, want v4.10.0-rc1", beta, err)
	}

	nightly, err := selectChannel(releases, "nightly")
	if err != nil || nightly.TagName != "nightly-2023-06-27" {
		t.Fatalf("selectChannel(nightly) = %v, %v, want nightly-2023-06-27", nightly, err)
	}
}

func TestSelectChannelNoMatch(t *testing.T) {
	t.Parallel()

	_, err := selectChannel([]dist.Release{{TagName: "v1.0.0", Prerelease: true}}, "stable")
	if err == nil {
		t.Fatal("selectChannel(stable) with only a prerelease available succeeded, want ErrNoChannelRelease")
	}
}

func TestRegistryInstallAndList(t *testing.T) {
	reg, layout := newTestRegistry(t)
	_ = layout

	desc := descriptor.Descriptor{Kind: descriptor.Symbolic, Channel: "stable"}
	identity, err := reg.Install(context.Background(), desc)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if identity != "stable" {
		t.Fatalf("identity = %q, want stable", identity)
	}

	if _, err := os.Stat(filepath.Join(reg.Layout.ToolchainDir(identity), "bin", "lean")); err != nil {
		t.Fatalf("installed toolchain missing bin/lean: %v", err)
	}

	// Installing again should be idempotent and not re-download.
	identity2, err := reg.Install(context.Background(), desc)
	if err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if identity2 != identity {
		t.Fatalf("second Install identity = %q, want %q", identity2, identity)
	}

	infos, err := reg.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].Identity != "stable" {
		t.Fatalf("List = %+v, want one entry for stable", infos)
	}

	if err := reg.SetDefault("stable"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	infos, err = reg.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !infos[0].IsDefault {
		t.Fatal("List after SetDefault did not mark stable as default")
	}
}

func TestRegistryUninstall(t *testing.T) {
	reg, _ := newTestRegistry(t)

	desc := descriptor.Descriptor{Kind: descriptor.Symbolic, Channel: "stable"}
	identity, err := reg.Install(context.Background(), desc)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := reg.Uninstall(identity); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(reg.Layout.ToolchainDir(identity)); !os.IsNotExist(err) {
		t.Fatal("toolchain directory still present after Uninstall")
	}

	if err := reg.Uninstall(identity); err == nil {
		t.Fatal("Uninstall on an already-removed identity succeeded, want ErrNotInstalled")
	}
}

func TestRegistryLinkAndUnlink(t *testing.T) {
	reg, _ := newTestRegistry(t)

	srcDir := t.TempDir()
	if err := reg.Link("my-dev-build", srcDir); err != nil {
		t.Fatalf("Link: %v", err)
	}

	infos, err := reg.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, info := range infos {
		if info.Identity == "my-dev-build" && info.IsLinked {
			found = true
		}
	}
	if !found {
		t.Fatalf("List = %+v, want a linked entry for my-dev-build", infos)
	}

	if err := reg.Uninstall("my-dev-build"); !errors.Is(err, ErrLinked) {
		t.Fatalf("Uninstall on a linked toolchain = %v, want ErrLinked", err)
	}

	if err := reg.Unlink("my-dev-build"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := reg.Unlink("my-dev-build"); err == nil {
		t.Fatal("Unlink on an already-unlinked name succeeded, want ErrNotInstalled")
	}
}
