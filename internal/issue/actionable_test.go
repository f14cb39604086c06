package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorContextBuildErrorConcatenatesParts(t *testing.T) {
	t.Parallel()

	cause := errors.New("permission denied")
	err := NewErrorContext().
		WithOperation("install toolchain").
		WithResource("stable").
		Wrap(cause).
		BuildError()

	want := "failed to install toolchain: stable: permission denied"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestErrorContextBuildErrorWithoutOperationIsNil(t *testing.T) {
	t.Parallel()

	err := NewErrorContext().WithResource("x").BuildError()
	if err != nil {
		t.Fatalf("BuildError() with no operation = %v, want nil", err)
	}
}

func TestActionableErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying")
	err := NewErrorContext().WithOperation("op").Wrap(cause).BuildError()
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true via Unwrap")
	}
}

func TestActionableErrorFormatIncludesSuggestions(t *testing.T) {
	t.Parallel()

	err := NewErrorContext().
		WithOperation("parse descriptor").
		WithSuggestions("check for a typo", "see the docs").
		Build()

	formatted := err.Format(false)
	if !strings.Contains(formatted, "check for a typo") || !strings.Contains(formatted, "see the docs") {
		t.Fatalf("Format(false) = %q, want both suggestions present", formatted)
	}
	if strings.Contains(formatted, "Error chain") {
		t.Fatalf("Format(false) should not include the cause chain")
	}
}

func TestActionableErrorFormatVerboseIncludesChain(t *testing.T) {
	t.Parallel()

	root := errors.New("root cause")
	wrapped := fmtWrap(root)
	err := NewErrorContext().WithOperation("download").Wrap(wrapped).Build()

	formatted := err.Format(true)
	if !strings.Contains(formatted, "Error chain") {
		t.Fatalf("Format(true) = %q, want it to include the cause chain", formatted)
	}
	if !strings.Contains(formatted, "root cause") {
		t.Fatalf("Format(true) = %q, want the root cause message present", formatted)
	}
}

func TestActionableErrorHasSuggestions(t *testing.T) {
	t.Parallel()

	without := NewErrorContext().WithOperation("op").Build()
	if without.HasSuggestions() {
		t.Fatal("HasSuggestions() = true for an error with none")
	}

	with := NewErrorContext().WithOperation("op").WithSuggestion("fix it").Build()
	if !with.HasSuggestions() {
		t.Fatal("HasSuggestions() = false for an error with one")
	}
}

func fmtWrap(err error) error {
	return &wrapped{err}
}

type wrapped struct{ cause error }

func (w *wrapped) Error() string { return "wrapped: " + w.cause.Error() }
func (w *wrapped) Unwrap() error { return w.cause }
