package selfupdate

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

const (
	homebrewMacARM   = "/opt/homebrew/"
	homebrewMacIntel = "/usr/local/Cellar/"
	homebrewLinux    = "/home/linuxbrew/.linuxbrew/"

	// modulePath confirms a GOPATH/bin binary really came from `go
	// install github.com/leanprover/elan/cmd/elan@...` rather than being
	// manually placed there.
	modulePath = "github.com/leanprover/elan"
)

// InstallMethod identifies how the running elan binary reached its
// current location. Script installs (the elan-init/bin/elan layout
// spec.md §4.9 describes) are the only method self-update acts on
// directly; Homebrew and go-install builds are expected to be upgraded
// through their own package manager instead, so Check and Apply defer to
// them rather than overwriting a file those tools track.
type InstallMethod int

const (
	InstallMethodUnknown InstallMethod = iota
	InstallMethodScript
	InstallMethodHomebrew
	InstallMethodGoInstall
)

func (m InstallMethod) String() string {
	switch m {
	case InstallMethodScript:
		return "script"
	case InstallMethodHomebrew:
		return "homebrew"
	case InstallMethodGoInstall:
		return "goinstall"
	default:
		return "unknown"
	}
}

//nolint:gochecknoglobals // test seam for debug.ReadBuildInfo
var readBuildInfo = debug.ReadBuildInfo

// DetectInstallMethod classifies execPath (the resolved path of the
// running elan binary). Adapted from the teacher's own detector: the
// script-install heuristic is relaxed from a fixed "~/.local/bin/" to
// "any path under the resolved store's bin/", since elan-init installs
// to $ELAN_HOME/bin (usually ~/.elan/bin) rather than a XDG-style
// location.
func DetectInstallMethod(execPath, elanHomeBin string) InstallMethod {
	switch {
	case strings.Contains(execPath, homebrewMacARM),
		strings.Contains(execPath, homebrewMacIntel),
		strings.Contains(execPath, homebrewLinux):
		return InstallMethodHomebrew
	case isInGOPATHBin(execPath) && hasElanModulePath():
		return InstallMethodGoInstall
	case elanHomeBin != "" && isWithinDir(execPath, elanHomeBin):
		return InstallMethodScript
	default:
		return InstallMethodUnknown
	}
}

func isInGOPATHBin(execPath string) bool {
	gopath := os.Getenv("GOPATH")
	if gopath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return false
		}
		gopath = filepath.Join(home, "go")
	}
	return isWithinDir(execPath, filepath.Join(gopath, "bin"))
}

func isWithinDir(path, dir string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(dir)
	return cleanPath == cleanDir || strings.HasPrefix(cleanPath, cleanDir+string(filepath.Separator))
}

func hasElanModulePath() bool {
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return false
	}
	return strings.Contains(info.Path, modulePath)
}
