package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/leanprover/elan/internal/dist"
	"github.com/leanprover/elan/internal/platform"
	"github.com/leanprover/elan/internal/store"
)

// defaultUpdateOrigin is the "owner/repo" elan queries for its own
// releases, overridable by ELAN_UPDATE_ROOT (an environment variable
// carried over from the original implementation, there a raw URL prefix;
// here an origin string reused by internal/dist.Client the same way a
// toolchain descriptor's Origin field is, since elan itself ships through
// the same GitHub-releases mechanism it manages for Lean toolchains).
const defaultUpdateOrigin = "leanprover/elan"

// ErrManagedInstall's text heads the Message Check reports (with a nil
// error and UpgradeAvailable false) when the running binary was
// installed by a package manager (Homebrew, go install) that should own
// upgrades instead of elan replacing its own binary underneath it.
var ErrManagedInstall = errors.New("elan was installed by a package manager; upgrade through it instead")

// ErrNotSelfInstalled is returned when bin/elan doesn't exist under the
// store, matching NotSelfInstalled in the original implementation's
// error enum — self-update and self-uninstall both require a prior
// bootstrap install.
var ErrNotSelfInstalled = errors.New("elan is not installed via elan-init; bin/elan not found")

// UpgradeCheck is the result of comparing the running version against
// the latest release for the update origin.
type UpgradeCheck struct {
	CurrentVersion   string
	LatestVersion    string
	Release          *dist.Release
	InstallMethod    InstallMethod
	UpgradeAvailable bool
	Message          string
}

func updateOrigin() string {
	if v := os.Getenv("ELAN_UPDATE_ROOT"); v != "" {
		return v
	}
	return defaultUpdateOrigin
}

// Check queries the update origin's releases and compares the newest
// stable tag against currentVersion. Managed installs (Homebrew, go
// install) short-circuit before any network call with a non-upgradable
// result whose Message carries ErrManagedInstall's text, mirroring self_update.rs's early-return for those install methods.
func Check(ctx context.Context, client *dist.Client, layout store.Layout, currentVersion string) (*UpgradeCheck, error) {
	execPath, err := resolveExecPath()
	if err != nil {
		return nil, err
	}
	method := DetectInstallMethod(execPath, layout.Bin)
	if method == InstallMethodHomebrew || method == InstallMethodGoInstall {
		return &UpgradeCheck{
			CurrentVersion: currentVersion,
			InstallMethod:  method,
			Message:        fmt.Sprintf("%v: detected %s install at %s", ErrManagedInstall, method, execPath),
		}, nil
	}

	release, err := client.LatestStable(ctx, updateOrigin())
	if err != nil {
		return nil, fmt.Errorf("checking for updates: %w", err)
	}

	current := normalizeVersion(currentVersion)
	latest := normalizeVersion(release.TagName)

	if semver.IsValid(current) && semver.IsValid(latest) && semver.Compare(current, latest) >= 0 {
		return &UpgradeCheck{
			CurrentVersion: currentVersion,
			LatestVersion:  release.TagName,
			InstallMethod:  method,
			Message:        "elan is already up to date",
		}, nil
	}

	return &UpgradeCheck{
		CurrentVersion:   currentVersion,
		LatestVersion:    release.TagName,
		Release:          release,
		InstallMethod:    method,
		UpgradeAvailable: true,
		Message:          fmt.Sprintf("elan %s is available (running %s)", release.TagName, currentVersion),
	}, nil
}

// Apply downloads release's asset for the running platform, verifies its
// checksum and that it actually runs, then replaces bin/elan and
// regenerates every proxied-tool shim. On unix the replacement is a
// single atomic os.Rename; on Windows, where a running executable's
// image can be locked against deletion, a failed direct rename falls
// back to staging the new binary at a sibling ".new" path and writing a
// ".pending-update" marker that the next `elan`/`elan-init` invocation
// consumes at startup (ConsumePendingUpdate) — a rename-on-next-boot
// analog of the original's MoveFileEx(MOVEFILE_DELAY_UNTIL_REBOOT), using
// only Go's standard library rather than a raw syscall bound by hand.
func Apply(ctx context.Context, client *dist.Client, layout store.Layout, release *dist.Release) error {
	asset, err := dist.SelectAsset(release, platform.Triple())
	if err != nil {
		return err
	}

	archivePath, _, err := dist.Download(ctx, client.HTTPClient(), asset.BrowserDownloadURL, layout.Downloads, layout.Tmp, asset.Size, "", "new", nil)
	if err != nil {
		return fmt.Errorf("downloading elan %s: %w", release.TagName, err)
	}
	defer func() { _ = os.Remove(archivePath) }()

	if checksumErr := verifyAgainstChecksums(ctx, client, release, asset, archivePath); checksumErr != nil {
		return checksumErr
	}

	format := dist.FormatFor(asset.Name)
	staging, err := os.MkdirTemp(layout.Tmp, "elan-selfupdate-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	newBinary, err := extractBinary(archivePath, format, staging)
	if err != nil {
		return fmt.Errorf("extracting elan binary: %w", err)
	}

	if err := os.Chmod(newBinary, 0o755); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := verifyRuns(newBinary); err != nil {
		return fmt.Errorf("downloaded binary failed to run: %w", err)
	}

	elanPath := filepath.Join(layout.Bin, "elan"+platform.ExeSuffix())
	if replaceErr := replaceBinary(newBinary, elanPath); replaceErr != nil {
		return replaceErr
	}

	return InstallShims(layout, elanPath)
}

func verifyAgainstChecksums(ctx context.Context, client *dist.Client, release *dist.Release, asset dist.Asset, archivePath string) error {
	var checksumsURL string
	for _, a := range release.Assets {
		if a.Name == "checksums.txt" {
			checksumsURL = a.BrowserDownloadURL
		}
	}
	if checksumsURL == "" {
		return nil // release predates checksums.txt publication; nothing to verify against
	}

	resp, err := client.HTTPClient().Get(checksumsURL) //nolint:noctx // short-lived metadata fetch alongside a ctx-bound download above
	if err != nil {
		return fmt.Errorf("downloading checksums: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	entries, err := dist.ParseChecksums(resp.Body)
	if err != nil {
		return fmt.Errorf("parsing checksums: %w", err)
	}
	expected, err := dist.FindChecksum(entries, asset.Name)
	if err != nil {
		return fmt.Errorf("finding checksum for %s: %w", asset.Name, err)
	}
	if err := dist.VerifyFile(archivePath, expected); err != nil {
		return fmt.Errorf("verifying elan archive: %w", err)
	}
	return nil
}

// extractBinary pulls the single "elan" executable out of archivePath
// into destDir, matching by base filename so both flat and
// nested-directory archive layouts work.
func extractBinary(archivePath string, format dist.Format, destDir string) (string, error) {
	finalDir := filepath.Join(destDir, "out")
	if err := dist.Extract(archivePath, format, destDir, finalDir, true); err != nil {
		return "", err
	}

	wantName := "elan" + platform.ExeSuffix()
	var found string
	err := filepath.WalkDir(finalDir, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		if d.Name() == wantName {
			found = p
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no %s binary found in extracted archive", wantName)
	}
	return found, nil
}

func verifyRuns(path string) error {
	out, err := exec.Command(path, "--version").Output() //nolint:gosec // path is our own freshly-downloaded elan binary
	if err != nil {
		return err
	}
	if !versionPattern.MatchString(string(out)) {
		return fmt.Errorf("unexpected --version output: %q", strings.TrimSpace(string(out)))
	}
	return nil
}

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// replaceBinary swaps newBinary into place at dst. On unix this is a
// single os.Rename, atomic as long as both paths share a filesystem
// (guaranteed: newBinary's staging dir is under the same store tree as
// dst). On Windows a locked dst (the common case, since dst is usually
// the very elan.exe currently executing self-update) can't be renamed
// over directly; in that case the new binary is staged at dst+".new" and
// a ".pending-update" marker is written so the next invocation completes
// the swap before doing anything else.
func replaceBinary(newBinary, dst string) error {
	if err := os.Rename(newBinary, dst); err == nil {
		return nil
	} else if runtime.GOOS != platform.Windows {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}

	staged := dst + ".new"
	if err := os.Rename(newBinary, staged); err != nil {
		return fmt.Errorf("staging replacement for %s: %w", dst, err)
	}
	marker := filepath.Join(filepath.Dir(dst), ".pending-update")
	if err := os.WriteFile(marker, []byte(filepath.Base(dst)), 0o644); err != nil {
		return fmt.Errorf("writing pending-update marker: %w", err)
	}
	return nil
}

// ConsumePendingUpdate completes a deferred Windows binary swap left
// behind by a prior replaceBinary call, if any. The manager CLI calls
// this once at startup before doing anything else, so a self-update that
// couldn't replace its own locked executable finishes on the next run
// instead.
func ConsumePendingUpdate(layout store.Layout) error {
	marker := filepath.Join(layout.Bin, ".pending-update")
	data, err := os.ReadFile(marker)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading pending-update marker: %w", err)
	}

	target := filepath.Join(layout.Bin, strings.TrimSpace(string(data)))
	staged := target + ".new"
	if _, statErr := os.Stat(staged); statErr == nil {
		if renameErr := os.Rename(staged, target); renameErr != nil {
			return fmt.Errorf("completing deferred update of %s: %w", target, renameErr)
		}
	}
	return os.Remove(marker)
}

func resolveExecPath() (string, error) {
	p, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("determining executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks for %s: %w", p, err)
	}
	return resolved, nil
}

func normalizeVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
