package dist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestCacheKeyIsStableAndURLDependent(t *testing.T) {
	t.Parallel()

	a := CacheKey("https://example.com/a.tar.gz")
	aAgain := CacheKey("https://example.com/a.tar.gz")
	b := CacheKey("https://example.com/b.tar.gz")

	if a != aAgain {
		t.Fatalf("CacheKey is not stable: %q vs %q", a, aAgain)
	}
	if a == b {
		t.Fatalf("CacheKey collided for two different URLs: %q", a)
	}
	if len(a) != 64 {
		t.Fatalf("len(CacheKey(...)) = %d, want 64 (hex sha256)", len(a))
	}
}

func TestDownloadFetchesAndCaches(t *testing.T) {
	t.Parallel()

	const body = "archive contents"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	tmpDir := t.TempDir()

	path, skipped, err := Download(context.Background(), srv.Client(), srv.URL, cacheDir, tmpDir, int64(len(body)), "", "", nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if skipped {
		t.Fatal("Download reported skipped on a fresh cache")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != body {
		t.Fatalf("downloaded content = %q, want %q", data, body)
	}
	if filepath.Dir(path) != cacheDir {
		t.Fatalf("Download wrote outside cacheDir: %q", path)
	}
}

func TestDownloadLeavesCachedFileReadOnly(t *testing.T) {
	t.Parallel()

	const body = "archive contents"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	tmpDir := t.TempDir()

	path, _, err := Download(context.Background(), srv.Client(), srv.URL, cacheDir, tmpDir, int64(len(body)), "", "", nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Mode().Perm()&0o222 != 0 {
		t.Fatalf("cached file mode = %v, want no write bits set", fi.Mode())
	}
}

func TestDownloadReplacesReadOnlyFileOnRedownload(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	tmpDir := t.TempDir()

	if _, _, err := Download(context.Background(), srv.Client(), srv.URL, cacheDir, tmpDir, 7, "", "tok-v1", nil); err != nil {
		t.Fatalf("first Download: %v", err)
	}
	// A changed token forces a real re-download even though the cached
	// file from the first call is now read-only.
	path, skipped, err := Download(context.Background(), srv.Client(), srv.URL, cacheDir, tmpDir, 7, "tok-v1", "tok-v2", nil)
	if err != nil {
		t.Fatalf("second Download: %v", err)
	}
	if skipped {
		t.Fatal("second Download with a changed token should not have been skipped")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat after re-download: %v", err)
	}
}

func TestDownloadSkipsWhenTokenMatchesAndCached(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	tmpDir := t.TempDir()

	_, _, err := Download(context.Background(), srv.Client(), srv.URL, cacheDir, tmpDir, 7, "", "tok-v1", nil)
	if err != nil {
		t.Fatalf("first Download: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d after first download, want 1", calls)
	}

	_, skipped, err := Download(context.Background(), srv.Client(), srv.URL, cacheDir, tmpDir, 7, "tok-v1", "tok-v1", nil)
	if err != nil {
		t.Fatalf("second Download: %v", err)
	}
	if !skipped {
		t.Fatal("second Download with a matching token should have been skipped")
	}
	if calls != 1 {
		t.Fatalf("calls = %d after a should-be-cached download, want 1", calls)
	}
}
