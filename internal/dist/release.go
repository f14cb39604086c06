// Package dist implements the release resolver (C3), the download cache
// (C4), and the archive extractor (C5). Grounded structurally on
// invowk-invowk/internal/selfupdate (github.go, checksum.go,
// selfupdate.go), generalized from a single hardcoded owner/repo to the
// arbitrary "origin" string a toolchain descriptor carries (spec.md §3),
// and on original_source/elan-dist/src/dist.rs for the asset-preference
// and "no compatible asset" semantics.
package dist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	defaultPerPage       = 30
	maxPages             = 10
	maxJSONResponseBytes = 10 << 20
)

// ErrReleaseNotFound is returned when a requested release tag does not
// exist for an origin.
var ErrReleaseNotFound = errors.New("release not found")

// ErrNoCompatibleAsset is returned when a release exists but none of its
// assets match the running platform triple, per spec.md §3's
// NoCompatibleAsset edge case.
var ErrNoCompatibleAsset = errors.New("no release asset matches this platform")

type (
	// RateLimitError is returned when the origin's API rate limit is
	// exhausted.
	RateLimitError struct {
		Limit     int
		Remaining int
		ResetAt   time.Time
	}

	// Release is one upstream release of an origin.
	Release struct {
		TagName    string
		Name       string
		Prerelease bool
		Draft      bool
		Assets     []Asset
		HTMLURL    string
		CreatedAt  string
	}

	// Asset is a single downloadable artifact attached to a Release.
	Asset struct {
		Name               string
		BrowserDownloadURL string
		Size               int64
		ContentType        string
	}

	githubRelease struct {
		TagName    string        `json:"tag_name"`
		Name       string        `json:"name"`
		Prerelease bool          `json:"prerelease"`
		Draft      bool          `json:"draft"`
		HTMLURL    string        `json:"html_url"`
		CreatedAt  string        `json:"created_at"`
		Assets     []githubAsset `json:"assets"`
	}

	githubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
		ContentType        string `json:"content_type"`
	}

	// Client queries a GitHub-API-compatible origin for release metadata
	// and downloads its assets. Unlike the teacher's GitHubClient, owner
	// and repo are derived per call from the descriptor's origin string
	// rather than fixed at construction, since a single elan install
	// resolves toolchains from many origins over its lifetime.
	Client struct {
		httpClient *http.Client
		baseURL    string
		token      string
		userAgent  string
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("origin API rate limit exceeded (%d remaining, resets at %s)",
		e.Remaining, e.ResetAt.UTC().Format("15:04 UTC"))
}

// HTTPClient returns the underlying *http.Client, for callers (like
// internal/selfupdate) that need to reuse its transport/proxy
// configuration for a raw GET outside the release-listing API, such as
// downloading an asset or its checksums.txt.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// WithHTTPClient sets a custom HTTP client, for tests and proxy configs.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBaseURL overrides the API base URL, primarily for test servers.
func WithBaseURL(base string) ClientOption {
	return func(cl *Client) { cl.baseURL = strings.TrimRight(base, "/") }
}

// WithToken sets a personal access token for authenticated requests
// against the origin's API (higher rate limit).
func WithToken(token string) ClientOption {
	return func(cl *Client) { cl.token = token }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) { cl.userAgent = ua }
}

// NewClient creates a Client with sensible defaults: the public GitHub
// API, http.DefaultClient, and a "elan/dev" user agent.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    "https://api.github.com",
		userAgent:  "elan/dev",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListReleases fetches every published (non-draft) release for origin
// (an "owner/repo" string), sorted by semantic version descending,
// following pagination up to maxPages. Prereleases are included — the
// channel-to-release policy that picks among them (stable vs. beta vs.
// nightly) belongs to the caller, mirroring
// original_source/src/elan/toolchain.rs's fetch_latest_release_tag,
// which likewise only ever discards drafts at the API layer.
func (c *Client) ListReleases(ctx context.Context, origin string) ([]Release, error) {
	owner, repo, err := splitOrigin(origin)
	if err != nil {
		return nil, err
	}

	pageURL := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", c.baseURL, owner, repo, defaultPerPage)

	var all []Release
	for page := 0; page < maxPages && pageURL != ""; page++ {
		resp, reqErr := c.doRequest(ctx, http.MethodGet, pageURL)
		if reqErr != nil {
			return nil, fmt.Errorf("listing releases for %s: %w", origin, reqErr)
		}

		if rlErr := checkRateLimit(resp); rlErr != nil {
			resp.Body.Close()
			return nil, rlErr
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("listing releases for %s: unexpected status %d", origin, resp.StatusCode)
		}

		releases, parseErr := parseReleases(io.LimitReader(resp.Body, maxJSONResponseBytes))
		resp.Body.Close()
		if parseErr != nil {
			return nil, fmt.Errorf("listing releases for %s: %w", origin, parseErr)
		}

		for i := range releases {
			if !releases[i].Draft {
				all = append(all, releases[i])
			}
		}

		pageURL = parseLinkHeader(resp.Header.Get("Link"))
	}

	sortReleasesBySemverDesc(all)
	return all, nil
}

// GetReleaseByTag fetches a single release by tag from origin. Returns
// ErrReleaseNotFound if the tag has no matching release.
func (c *Client) GetReleaseByTag(ctx context.Context, origin, tag string) (*Release, error) {
	owner, repo, err := splitOrigin(origin)
	if err != nil {
		return nil, err
	}

	tagURL := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", c.baseURL, owner, repo, url.PathEscape(tag))
	resp, err := c.doRequest(ctx, http.MethodGet, tagURL)
	if err != nil {
		return nil, fmt.Errorf("getting release %s/%s: %w", origin, tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkRateLimit(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrReleaseNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getting release %s/%s: unexpected status %d", origin, tag, resp.StatusCode)
	}

	var gr githubRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&gr); err != nil {
		return nil, fmt.Errorf("getting release %s/%s: decoding response: %w", origin, tag, err)
	}
	r := toRelease(gr)
	return &r, nil
}

// LatestStable fetches origin's releases and returns the first
// non-prerelease one in ListReleases' order, or ErrReleaseNotFound if
// there is none. The self-update check uses it; Symbolic channels are
// resolved by internal/toolchain from ListReleases directly.
func (c *Client) LatestStable(ctx context.Context, origin string) (*Release, error) {
	releases, err := c.ListReleases(ctx, origin)
	if err != nil {
		return nil, err
	}
	for i := range releases {
		if !releases[i].Prerelease {
			return &releases[i], nil
		}
	}
	return nil, ErrReleaseNotFound
}

// doRequest issues an HTTP request with the headers a GitHub-compatible
// API expects.
func (c *Client) doRequest(ctx context.Context, method, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)

	if c.token != "" && isGitHubHost(req.URL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func checkRateLimit(resp *http.Response) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return nil
	}
	rem, err := strconv.Atoi(remaining)
	if err != nil {
		return nil //nolint:nilerr // non-numeric header is non-fatal
	}
	if rem > 0 {
		return nil
	}
	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	resetUnix, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	return &RateLimitError{Limit: limit, Remaining: 0, ResetAt: time.Unix(resetUnix, 0)}
}

func parseReleases(body io.Reader) ([]Release, error) {
	var raw []githubRelease
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding releases: %w", err)
	}
	releases := make([]Release, 0, len(raw))
	for _, gr := range raw {
		releases = append(releases, toRelease(gr))
	}
	return releases, nil
}

func parseLinkHeader(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

func toRelease(gr githubRelease) Release {
	assets := make([]Asset, 0, len(gr.Assets))
	for _, ga := range gr.Assets {
		assets = append(assets, Asset(ga))
	}
	return Release{
		TagName:    gr.TagName,
		Name:       gr.Name,
		Prerelease: gr.Prerelease,
		Draft:      gr.Draft,
		Assets:     assets,
		HTMLURL:    gr.HTMLURL,
		CreatedAt:  gr.CreatedAt,
	}
}

func sortReleasesBySemverDesc(releases []Release) {
	slices.SortStableFunc(releases, func(a, b Release) int {
		av, bv := normalizeForSemver(a.TagName), normalizeForSemver(b.TagName)
		if semver.IsValid(av) && semver.IsValid(bv) {
			return semver.Compare(bv, av)
		}
		if semver.IsValid(av) {
			return -1
		}
		if semver.IsValid(bv) {
			return 1
		}
		return strings.Compare(b.TagName, a.TagName)
	})
}

func normalizeForSemver(tag string) string {
	if strings.HasPrefix(tag, "v") {
		return tag
	}
	return "v" + tag
}

func isGitHubHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	if strings.EqualFold(base.Host, "api.github.com") && strings.EqualFold(reqURL.Host, "github.com") {
		return true
	}
	return false
}

func splitOrigin(origin string) (owner, repo string, err error) {
	parts := strings.SplitN(origin, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed origin %q: expected \"owner/repo\"", origin)
	}
	return parts[0], parts[1], nil
}

// SelectAsset picks the best asset in a release for the given platform
// triple, preferring zstd over gzip over zip archives when more than one
// candidate matches — grounded on original_source/elan-dist/src/dist.rs's
// own compression-format preference order. Returns ErrNoCompatibleAsset
// if nothing matches the triple.
func SelectAsset(release *Release, triple string) (Asset, error) {
	var zst, gz, zipA *Asset
	for i := range release.Assets {
		a := &release.Assets[i]
		if !strings.Contains(a.Name, triple) {
			continue
		}
		switch {
		case strings.HasSuffix(a.Name, ".tar.zst"):
			zst = a
		case strings.HasSuffix(a.Name, ".tar.gz"), strings.HasSuffix(a.Name, ".tgz"):
			gz = a
		case strings.HasSuffix(a.Name, ".zip"):
			zipA = a
		}
	}
	switch {
	case zst != nil:
		return *zst, nil
	case gz != nil:
		return *gz, nil
	case zipA != nil:
		return *zipA, nil
	default:
		return Asset{}, fmt.Errorf("%w: no asset in release %s matches %s", ErrNoCompatibleAsset, release.TagName, triple)
	}
}
