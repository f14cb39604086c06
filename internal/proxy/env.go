package proxy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// buildEnv constructs the environment a proxied tool invocation runs
// with: PATH re-prefixed with binDir, LEAN_RECURSION_COUNT incremented,
// ELAN_TOOLCHAIN set to identity, and (DY)LD_LIBRARY_PATH removed —
// mirroring Toolchain::set_env/set_path in
// original_source/src/elan/toolchain.rs.
func buildEnv(identity, binDir string) []string {
	base := os.Environ()
	out := make([]string, 0, len(base)+2)

	for _, kv := range base {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		switch key {
		case "PATH", "LEAN_RECURSION_COUNT", "LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH", "ELAN_TOOLCHAIN":
			continue // replaced below
		default:
			out = append(out, kv)
		}
	}

	path := binDir + string(os.PathListSeparator) + os.Getenv("PATH")
	out = append(out,
		"PATH="+path,
		"LEAN_RECURSION_COUNT="+strconv.Itoa(recursionCount()+1),
		"ELAN_TOOLCHAIN="+identity,
	)
	return out
}

// needsShellInterpreter reports whether path has no file extension, the
// condition under which Windows can't exec it directly and the proxy
// must fall back to an embedded POSIX shell interpreter (spec.md §4.8).
func needsShellInterpreter(path string) bool {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '.':
			return false
		case '/', '\\':
			return true
		}
	}
	return true
}

func formatExecError(tool string, err error) error {
	return fmt.Errorf("running %s: %w", tool, err)
}
