//go:build unix

package proxy

import (
	"syscall"
)

// execTool replaces the current process image with path, matching
// rustup/elan's own use of exec() on unix so that the proxy leaves no
// wrapper process behind (signal delivery, job control, and exit codes
// all pass through untouched). Never returns on success.
func execTool(path, tool string, args []string, identity, binDir string) error {
	argv := append([]string{path}, args...)
	env := buildEnv(identity, binDir)
	err := syscall.Exec(path, argv, env)
	return formatExecError(tool, err)
}
