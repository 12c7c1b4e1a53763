package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the engine.
type ErrorKind string

const (
	// KindPreflightBlocking aborts an invocation before any mutation.
	KindPreflightBlocking ErrorKind = "preflight_blocking"

	// KindAlreadyExists refuses to overwrite a live resource.
	KindAlreadyExists ErrorKind = "already_exists"

	// KindLockTimeout means the package manager lock was not released in time.
	KindLockTimeout ErrorKind = "lock_timeout"

	// KindDriverFailure is a failed external operation during execute.
	KindDriverFailure ErrorKind = "driver_failure"

	// KindConfirmationDeclined is the operator opting out of a destructive
	// sub-step. It is a successful no-op branch.
	KindConfirmationDeclined ErrorKind = "confirmation_declined"

	// KindNotFound means the referenced site or resource does not exist.
	KindNotFound ErrorKind = "not_found"

	// KindTimeout is a bounded wait other than the lock wait running out.
	KindTimeout ErrorKind = "timeout"

	// KindInvalid is a rejected request.
	KindInvalid ErrorKind = "invalid"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitBlocked       = 2
	ExitDriverFailure = 3
)

// Error is a classified engine error.
type Error struct {
	Kind    ErrorKind
	Step    string
	Message string
	Err     error

	// HolderPID and Path are set on lock timeouts when known.
	HolderPID int
	Path      string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = fmt.Sprintf("%s: %s", e.Step, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrPreflightBlocking    = &Error{Kind: KindPreflightBlocking}
	ErrAlreadyExists        = &Error{Kind: KindAlreadyExists}
	ErrLockTimeout          = &Error{Kind: KindLockTimeout}
	ErrDriverFailure        = &Error{Kind: KindDriverFailure}
	ErrConfirmationDeclined = &Error{Kind: KindConfirmationDeclined}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrInvalid              = &Error{Kind: KindInvalid}
)

// NewAlreadyExists creates an AlreadyExists error.
func NewAlreadyExists(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound creates a NotFound error.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewDriverFailure creates a DriverFailure error for step.
func NewDriverFailure(step, message string, err error) *Error {
	return &Error{Kind: KindDriverFailure, Step: step, Message: message, Err: err}
}

// NewLockTimeout creates a LockTimeout error. pid is 0 and path empty when
// the holder could not be identified.
func NewLockTimeout(pid int, path string, waited fmt.Stringer) *Error {
	msg := fmt.Sprintf("package manager lock still held after %s", waited)
	if pid > 0 {
		msg += fmt.Sprintf(" (pid %d", pid)
		if path != "" {
			msg += ", " + path
		}
		msg += ")"
	} else if path != "" {
		msg += " (" + path + ")"
	}
	return &Error{Kind: KindLockTimeout, Message: msg, HolderPID: pid, Path: path}
}

// NewPreflightBlocking creates a PreflightBlocking error listing the failed checks.
func NewPreflightBlocking(command string, failed []Finding) *Error {
	msg := fmt.Sprintf("%d blocking preflight check(s) failed for %s", len(failed), command)
	for _, f := range failed {
		msg += fmt.Sprintf("\n- %s: %s", f.Check, f.Remediation)
	}
	return &Error{Kind: KindPreflightBlocking, Message: msg}
}

// NewConfirmationDeclined records that prompt was answered no.
func NewConfirmationDeclined(prompt string) *Error {
	return &Error{Kind: KindConfirmationDeclined, Message: "declined: " + prompt}
}

// NewTimeout creates a Timeout error for a bounded wait.
func NewTimeout(step, message string, err error) *Error {
	return &Error{Kind: KindTimeout, Step: step, Message: message, Err: err}
}

// NewInvalid creates an Invalid error.
func NewInvalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindDriverFailure for unclassified errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDriverFailure
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindConfirmationDeclined:
		return ExitOK
	case KindPreflightBlocking, KindLockTimeout:
		return ExitBlocked
	case KindDriverFailure, KindAlreadyExists, KindTimeout:
		return ExitDriverFailure
	default:
		return ExitError
	}
}
