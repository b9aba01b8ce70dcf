package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by VCS operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, vcs.ErrWorkspaceNotFound) {
//	    // workspace was never created for this sync
//	}
var (
	// ErrNotInVCS is returned when the given path is not inside a
	// repository.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the git binary is not installed
	// or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrRefExists is returned when attempting to create a reference that
	// already exists.
	ErrRefExists = errors.New("reference already exists")

	// ErrRefNotFound is returned when attempting to operate on a reference
	// that doesn't exist.
	ErrRefNotFound = errors.New("reference not found")

	// ErrWorkspaceNotFound is returned when attempting to operate on a
	// workspace that doesn't exist.
	ErrWorkspaceNotFound = errors.New("workspace not found")
)

// CommandError describes a failed VCS command, keeping the full tool output
// so callers can attach it to a tracker-issue comment for diagnosis.
type CommandError struct {
	// Args are the command arguments (excluding the binary name).
	Args []string

	// Stdout and Stderr are the captured command output.
	Stdout string
	Stderr string

	// Err is the underlying execution error.
	Err error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s failed: %v\n%s", strings.Join(e.Args, " "), e.Err, e.Diagnostic())
}

// Unwrap returns the underlying execution error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the combined tool output, suitable for inclusion in a
// human-readable failure report.
func (e *CommandError) Diagnostic() string {
	out := strings.TrimSpace(e.Stdout)
	errOut := strings.TrimSpace(e.Stderr)
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

// Diagnostic extracts the tool diagnostic from an error chain.
// Falls back to err.Error() when no CommandError is present.
func Diagnostic(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Diagnostic()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
