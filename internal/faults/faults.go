// Package faults defines the error taxonomy shared by every layer of the
// orchestrator.
//
// Four kinds exist and each is handled differently by the pipeline loop:
//
//   - UserInputError: the model, data source or user options are structurally
//     invalid. Aborts immediately, never retried.
//   - ConfigurationError: configuration violates an internal constraint.
//     Raised while building configs and pipelines, before anything runs.
//   - ExecutionFault: an external conversion or runtime call failed (non-zero
//     exit, crash, timeout). Recorded as a FAIL result, never aborts the loop.
//   - InternalFault: an invariant the orchestrator should have guaranteed was
//     broken. Aborts the whole run.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// UserInputError reports invalid user-supplied model, data or options.
type UserInputError struct {
	Msg string
}

func (e *UserInputError) Error() string { return e.Msg }

// UserInput builds a UserInputError from a format string.
func UserInput(format string, args ...any) error {
	return &UserInputError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports a configuration that violates an internal constraint.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// Configuration builds a ConfigurationError from a format string.
func Configuration(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// InternalFault reports a broken orchestrator invariant.
type InternalFault struct {
	Msg string
}

func (e *InternalFault) Error() string { return "internal error: " + e.Msg }

// Internal builds an InternalFault from a format string.
func Internal(format string, args ...any) error {
	return &InternalFault{Msg: fmt.Sprintf(format, args...)}
}

// ExecutionFault is the diagnostic payload of a failed external call.
type ExecutionFault struct {
	// Name identifies the boundary that failed, usually the command name.
	Name     string
	ExitCode int
	TimedOut bool
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecutionFault) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Name)
	switch {
	case e.TimedOut:
		b.WriteString(": timed out")
	case e.ExitCode != 0:
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if tail := lastLines(e.Stderr, 5); tail != "" {
		fmt.Fprintf(&b, "\nstderr:\n%s", tail)
	}
	return b.String()
}

func (e *ExecutionFault) Unwrap() error { return e.Err }

// IsUserInput reports whether err is, or wraps, a UserInputError.
func IsUserInput(err error) bool {
	var target *UserInputError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err is, or wraps, a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsInternal reports whether err is, or wraps, an InternalFault.
func IsInternal(err error) bool {
	var target *InternalFault
	return errors.As(err, &target)
}

// AsExecution returns the ExecutionFault wrapped in err, if any.
func AsExecution(err error) (*ExecutionFault, bool) {
	var target *ExecutionFault
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsFatal reports whether err must abort a pipeline run instead of being
// recorded as a failed command.
func IsFatal(err error) bool {
	return IsUserInput(err) || IsConfiguration(err) || IsInternal(err)
}

func lastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
