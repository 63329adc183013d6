// Package errors provides typed error handling for semian-go.
//
// This package defines domain-specific error types that enable callers to
// classify failures the way the Semian core distinguishes them: a
// configuration mistake, a timed-out blocking operation, a semaphore set
// that vanished out from under a process, a raw syscall failure, or an
// internal invariant violation. All errors support the standard
// errors.Is() and errors.As() functions for error inspection.
package errors

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrKindBadConfig indicates an invalid resource configuration
	// (conflicting tickets/quota, a timeout that can't be honored, a zero
	// initial ticket count).
	ErrKindBadConfig ErrorKind = iota
	// ErrKindTimeout indicates a blocking operation exceeded its deadline.
	ErrKindTimeout
	// ErrKindSemaphoreMissing indicates the semaphore set was removed
	// (EIDRM) while a process still held a reference to it.
	ErrKindSemaphoreMissing
	// ErrKindSyscall indicates a raw syscall failed with an errno that
	// higher layers did not map to one of the other kinds.
	ErrKindSyscall
	// ErrKindInternal indicates an unexpected invariant violation:
	// mutex init failure, PID init timeout, a state the core considers
	// unreachable.
	ErrKindInternal
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindBadConfig:
		return "bad config"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindSemaphoreMissing:
		return "semaphore missing"
	case ErrKindSyscall:
		return "syscall error"
	case ErrKindInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// SemianError represents an error surfaced by a semian-go resource operation.
type SemianError struct {
	// Op is the operation that failed (e.g. "acquire", "configure", "register").
	Op string
	// Resource is the resource name, if applicable.
	Resource string
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind ErrorKind
	// Detail provides additional human-readable context.
	Detail string
	// Syscall is the name of the failing syscall, set only for ErrKindSyscall.
	Syscall string
	// Errno is the raw errno, set only for ErrKindSyscall.
	Errno syscall.Errno
}

// Error returns the error message.
func (e *SemianError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Resource != "" {
		msg = fmt.Sprintf("resource %s: ", e.Resource)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	switch {
	case e.Kind == ErrKindSyscall && e.Syscall != "":
		msg += fmt.Sprintf("%s: %v", e.Syscall, e.Errno)
	case e.Detail != "":
		msg += e.Detail
	default:
		msg += e.Kind.String()
	}
	if e.Err != nil && e.Err != e.Errno {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SemianError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target.
// It matches if the target is a *SemianError with the same Kind, or if the
// underlying error matches.
func (e *SemianError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*SemianError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new SemianError of the given kind.
func New(kind ErrorKind, op string, detail string) *SemianError {
	return &SemianError{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps an error with operation context.
func Wrap(err error, kind ErrorKind, op string) *SemianError {
	return &SemianError{Op: op, Err: err, Kind: kind}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind ErrorKind, op string, detail string) *SemianError {
	return &SemianError{Op: op, Err: err, Kind: kind, Detail: detail}
}

// WrapWithResource wraps an error with resource context.
func WrapWithResource(err error, kind ErrorKind, op string, resource string) *SemianError {
	return &SemianError{Op: op, Resource: resource, Err: err, Kind: kind}
}

// WrapSyscall builds a SemianError for a failed syscall, mapping well-known
// errnos onto the kinds the spec requires (EAGAIN -> Timeout, EIDRM ->
// SemaphoreMissing); anything else stays ErrKindSyscall.
func WrapSyscall(name string, op string, resource string, errno syscall.Errno) *SemianError {
	switch errno {
	case syscall.EAGAIN:
		return &SemianError{Op: op, Resource: resource, Kind: ErrKindTimeout, Syscall: name, Errno: errno}
	case syscall.EIDRM:
		return &SemianError{Op: op, Resource: resource, Kind: ErrKindSemaphoreMissing, Syscall: name, Errno: errno}
	default:
		return &SemianError{Op: op, Resource: resource, Kind: ErrKindSyscall, Syscall: name, Errno: errno}
	}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind ErrorKind) bool {
	var serr *SemianError
	if errors.As(err, &serr) {
		return serr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is a SemianError.
func GetKind(err error) (ErrorKind, bool) {
	var serr *SemianError
	if errors.As(err, &serr) {
		return serr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
