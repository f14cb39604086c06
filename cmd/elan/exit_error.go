package main

import "fmt"

// ExitError signals a non-zero exit code from a RunE handler without
// calling os.Exit directly, so fang.Execute's own error-rendering path
// still runs first. Mirrors the teacher's cmd/invowk/exit_error.go,
// generalized from its fixed types.ExitCode enum to a plain int since
// elan's exit codes (spec.md §6: 0 success, 1 handled error, 101
// internal invariant failure) don't need a shared enum type elsewhere
// in the module.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

const (
	exitHandledError     = 1
	exitInvariantFailure = 101
)
