// Package errors provides typed error handling for the execd execution-context
// assembly pipeline.
//
// It mirrors the step-exit-code contract of the pipeline: every fallible
// operation carries both a coarse ErrorKind (for programmatic classification
// via errors.Is/errors.As) and, where applicable, the precise pipeline step
// that failed.
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline error.
type ErrorKind int

const (
	// ErrNotFound indicates a resource (unit, credential, path) was not found.
	ErrNotFound ErrorKind = iota
	// ErrAlreadyExists indicates a resource already exists.
	ErrAlreadyExists
	// ErrInvalidState indicates an operation was attempted in an invalid state.
	ErrInvalidState
	// ErrInvalidConfig indicates a malformed ExecContext/ExecParameters.
	ErrInvalidConfig
	// ErrPermission indicates a permission or missing-capability error.
	ErrPermission
	// ErrResource indicates a resource allocation or access error (fd table, memory).
	ErrResource
	// ErrNamespace indicates a namespace setup or join error.
	ErrNamespace
	// ErrCredential indicates a credential load/decrypt/publish error.
	ErrCredential
	// ErrDirectory indicates an exec-directory creation or migration error.
	ErrDirectory
	// ErrSeccomp indicates a seccomp filter compilation or install error.
	ErrSeccomp
	// ErrCapability indicates a capability set/drop error.
	ErrCapability
	// ErrIdentity indicates a user/group resolution error.
	ErrIdentity
	// ErrStep indicates a pipeline step failed; Step carries the exit code.
	ErrStep
	// ErrInternal indicates an internal error that should not occur.
	ErrInternal
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrInvalidState:
		return "invalid state"
	case ErrInvalidConfig:
		return "invalid config"
	case ErrPermission:
		return "permission denied"
	case ErrResource:
		return "resource error"
	case ErrNamespace:
		return "namespace error"
	case ErrCredential:
		return "credential error"
	case ErrDirectory:
		return "directory error"
	case ErrSeccomp:
		return "seccomp error"
	case ErrCapability:
		return "capability error"
	case ErrIdentity:
		return "identity error"
	case ErrStep:
		return "step error"
	case ErrInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// ExecError represents an error that occurred while assembling or applying
// an execution context.
type ExecError struct {
	// Op is the operation that failed (e.g. "resolve stdio", "apply seccomp").
	Op string
	// Unit is the unit id, if applicable.
	Unit string
	// Step is the pipeline step name, set only for errors originating in the
	// child pipeline (C9). Empty for parent-side errors.
	Step string
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind ErrorKind
	// Detail provides additional human-readable context.
	Detail string
}

// Error returns the error message.
func (e *ExecError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Unit != "" {
		msg = fmt.Sprintf("unit %s: ", e.Unit)
	}
	if e.Step != "" {
		msg += fmt.Sprintf("step %s: ", e.Step)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target.
// It matches if the target is an *ExecError with the same Kind, or if the
// underlying error matches.
func (e *ExecError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*ExecError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new ExecError with the given kind.
func New(kind ErrorKind, op string, detail string) *ExecError {
	return &ExecError{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps an error with pipeline context.
func Wrap(err error, kind ErrorKind, op string) *ExecError {
	return &ExecError{Op: op, Err: err, Kind: kind}
}

// WrapWithUnit wraps an error with unit-id context.
func WrapWithUnit(err error, kind ErrorKind, op string, unit string) *ExecError {
	return &ExecError{Op: op, Unit: unit, Err: err, Kind: kind}
}

// WrapStep wraps an error with the pipeline step that produced it.
func WrapStep(err error, step string, detail string) *ExecError {
	return &ExecError{Step: step, Err: err, Kind: ErrStep, Detail: detail}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind ErrorKind, op string, detail string) *ExecError {
	return &ExecError{Op: op, Err: err, Kind: kind, Detail: detail}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind ErrorKind) bool {
	var eerr *ExecError
	if errors.As(err, &eerr) {
		return eerr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is an ExecError.
func GetKind(err error) (ErrorKind, bool) {
	var eerr *ExecError
	if errors.As(err, &eerr) {
		return eerr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
