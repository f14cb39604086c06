package dist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leanprover/elan/internal/telemetry"
)

// ErrDownloadFailed is the sentinel behind every network/HTTP/truncation
// failure reported by Download, after retries are exhausted — spec.md
// §4.4's DownloadFailed{url, cause}.
var ErrDownloadFailed = errors.New("download failed")

const (
	maxRetries      = 5
	initialBackoff  = 500 * time.Millisecond
	maxBackoff      = 20 * time.Second
	downloadPerTick = 64 * 1024
)

// CacheKey derives the content-addressed filename used under downloads/
// for a given asset URL: the SHA-256 of the URL itself, since the final
// artifact's own hash isn't known until after it's fully fetched.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Download fetches url into cacheDir (normally Layout.Downloads), keyed
// by CacheKey(url), skipping the fetch entirely when a cached file
// already exists and cachedToken equals newToken (the resolver's
// update-token comparison from spec.md §4.4). It downloads into a
// sibling temp file in tmpDir and renames atomically into cacheDir only
// on full success, so a half-written file is never mistaken for a valid
// cache entry.
//
// Makes up to maxRetries attempts in total, with exponential backoff
// between them, on network errors, HTTP status >= 400, or a short read;
// the final failure is wrapped in ErrDownloadFailed.
func Download(ctx context.Context, client *http.Client, url, cacheDir, tmpDir string, size int64, cachedToken, newToken string, sink telemetry.Sink) (path string, skipped bool, err error) {
	if sink == nil {
		sink = telemetry.Noop{}
	}

	dest := filepath.Join(cacheDir, CacheKey(url))
	if cachedToken != "" && cachedToken == newToken {
		if _, statErr := os.Stat(dest); statErr == nil {
			return dest, true, nil
		}
	}

	sink.Downloading(url, size)

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(math.Min(float64(backoff*2), float64(maxBackoff)))
		}

		tmpPath, downloadErr := downloadOnce(ctx, client, url, tmpDir, size, sink)
		if downloadErr == nil {
			if renameErr := os.Rename(tmpPath, dest); renameErr != nil {
				_ = os.Remove(tmpPath)
				return "", false, fmt.Errorf("%w: renaming into cache: %v", ErrDownloadFailed, renameErr)
			}
			// spec.md invariant 5: archive files are read-only on disk
			// once written, so a cached entry can never be mistaken for
			// one a concurrent download is still writing to.
			if chmodErr := os.Chmod(dest, 0o444); chmodErr != nil {
				return "", false, fmt.Errorf("%w: marking cache entry read-only: %v", ErrDownloadFailed, chmodErr)
			}
			return dest, false, nil
		}
		lastErr = downloadErr
	}

	return "", false, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, lastErr)
}

// downloadOnce performs a single attempt, resuming via a Range header if
// a partial temp file from a prior attempt is found.
func downloadOnce(ctx context.Context, client *http.Client, url, tmpDir string, total int64, sink telemetry.Sink) (string, error) {
	tmpPath := filepath.Join(tmpDir, CacheKey(url)+".part")

	var done int64
	if fi, statErr := os.Stat(tmpPath); statErr == nil {
		done = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if done > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", done))
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var f *os.File
	switch resp.StatusCode {
	case http.StatusPartialContent:
		f, err = os.OpenFile(tmpPath, os.O_WRONLY|os.O_APPEND, 0o644)
	case http.StatusOK:
		done = 0
		f, err = os.Create(tmpPath)
	default:
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err != nil {
		return "", fmt.Errorf("opening temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, downloadPerTick)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return "", fmt.Errorf("writing temp file: %w", writeErr)
			}
			done += int64(n)
			sink.Progress(done, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("reading response body: %w", readErr)
		}
	}

	if total > 0 && done != total {
		return "", fmt.Errorf("truncated download: got %d of %d bytes", done, total)
	}
	return tmpPath, nil
}

// StreamAndExtract fetches url and feeds its body to extract through a
// bounded in-memory pipe, so extraction can begin before the download
// finishes — the background-worker-plus-extraction-worker producer/
// consumer pair spec.md §5 describes. It does not itself retry; callers
// that want retry-on-failure should call Download first and extract from
// the resulting file instead.
func StreamAndExtract(ctx context.Context, client *http.Client, url string, extract func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() { _ = pw.Close() }()
		_, copyErr := io.Copy(pw, resp.Body)
		if copyErr != nil {
			_ = pw.CloseWithError(copyErr)
			return copyErr
		}
		return nil
	})

	g.Go(func() error {
		defer func() { _ = pr.Close() }()
		return extract(pr)
	})

	go func() {
		<-gctx.Done()
		if gctx.Err() != nil {
			_ = pw.CloseWithError(gctx.Err())
			_ = pr.CloseWithError(gctx.Err())
		}
	}()

	return g.Wait()
}
