//go:build windows

package proxy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// execTool on Windows cannot replace the process image, so it spawns
// path as a child, waits for it, and exits with its status — the
// "spawn+wait+os.Exit" fallback spec.md §4.9 also uses for self-update's
// binary swap. Extension-less scripts (e.g. "leanc", which Windows
// cannot launch directly) are instead interpreted in-process by an
// embedded POSIX shell, grounded on the teacher's own use of
// mvdan.cc/sh/v3 as a "virtual runtime" for shell scripts.
func execTool(path, tool string, args []string, identity, binDir string) error {
	env := buildEnv(identity, binDir)

	if needsShellInterpreter(path) {
		return runViaShellInterpreter(path, args, env)
	}

	cmd := exec.Command(path, args...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		os.Exit(exitErr.ExitCode())
	}
	if runErr != nil {
		return formatExecError(tool, runErr)
	}
	os.Exit(0)
	return nil
}

func runViaShellInterpreter(path string, args []string, env []string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading script %s: %w", path, err)
	}

	f, err := syntax.NewParser().Parse(bytes.NewReader(src), path)
	if err != nil {
		return fmt.Errorf("parsing script %s: %w", path, err)
	}

	runner, err := interp.New(
		interp.Env(expand.ListEnviron(env...)),
		interp.Params(args...),
		interp.StdIO(os.Stdin, os.Stdout, os.Stderr),
	)
	if err != nil {
		return fmt.Errorf("creating shell interpreter: %w", err)
	}

	runErr := runner.Run(context.Background(), f)
	if status, ok := runErr.(interp.ExitStatus); ok {
		os.Exit(int(status))
	}
	if runErr != nil {
		os.Exit(1)
	}
	os.Exit(0)
	return nil
}
