package dist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSelectAssetPrefersZstOverGzOverZip(t *testing.T) {
	t.Parallel()

	release := &Release{
		TagName: "v4.9.0",
		Assets: []Asset{
			{Name: "lean-v4.9.0-x86_64-linux.zip"},
			{Name: "lean-v4.9.0-x86_64-linux.tar.gz"},
			{Name: "lean-v4.9.0-x86_64-linux.tar.zst"},
			{Name: "lean-v4.9.0-aarch64-darwin.tar.zst"},
		},
	}

	asset, err := SelectAsset(release, "x86_64-linux")
	if err != nil {
		t.Fatalf("SelectAsset: %v", err)
	}
	if asset.Name != "lean-v4.9.0-x86_64-linux.tar.zst" {
		t.Fatalf("SelectAsset = %q, want the .tar.zst asset", asset.Name)
	}
}

func TestSelectAssetFallsBackToGz(t *testing.T) {
	t.Parallel()

	release := &Release{
		TagName: "v4.9.0",
		Assets: []Asset{
			{Name: "lean-v4.9.0-x86_64-linux.tar.gz"},
			{Name: "lean-v4.9.0-x86_64-linux.zip"},
		},
	}
	asset, err := SelectAsset(release, "x86_64-linux")
	if err != nil {
		t.Fatalf("SelectAsset: %v", err)
	}
	if asset.Name != "lean-v4.9.0-x86_64-linux.tar.gz" {
		t.Fatalf("SelectAsset = %q, want the .tar.gz asset", asset.Name)
	}
}

func TestSelectAssetNoMatch(t *testing.T) {
	t.Parallel()

	release := &Release{TagName: "v4.9.0", Assets: []Asset{{Name: "lean-v4.9.0-aarch64-darwin.tar.gz"}}}
	_, err := SelectAsset(release, "x86_64-linux")
	if err == nil {
		t.Fatal("SelectAsset with no matching triple succeeded, want ErrNoCompatibleAsset")
	}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := NewClient(WithBaseURL(srv.URL))
	return client, srv.Close
}

func TestClientGetReleaseByTag(t *testing.T) {
	t.Parallel()

	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tag_name": "v4.9.0",
			"name":     "v4.9.0",
			"assets":   []any{},
		})
	})
	defer closeFn()

	release, err := client.GetReleaseByTag(context.Background(), "leanprover/lean4", "v4.9.0")
	if err != nil {
		t.Fatalf("GetReleaseByTag: %v", err)
	}
	if release.TagName != "v4.9.0" {
		t.Fatalf("TagName = %q, want v4.9.0", release.TagName)
	}
}

func TestClientGetReleaseByTagNotFound(t *testing.T) {
	t.Parallel()

	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeFn()

	_, err := client.GetReleaseByTag(context.Background(), "leanprover/lean4", "v0.0.0-missing")
	if err == nil {
		t.Fatal("GetReleaseByTag for a missing tag succeeded, want an error")
	}
}

func TestClientListReleases(t *testing.T) {
	t.Parallel()

	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"tag_name": "v4.9.0", "prerelease": false},
			{"tag_name": "v4.10.0-rc1", "prerelease": true},
		})
	})
	defer closeFn()

	releases, err := client.ListReleases(context.Background(), "leanprover/lean4")
	if err != nil {
		t.Fatalf("ListReleases: %v", err)
	}
	if len(releases) != 2 {
		t.Fatalf("len(releases) = %d, want 2", len(releases))
	}
}
