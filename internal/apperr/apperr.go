// Package apperr classifies errors the way §7 of the server contract requires:
// every interface (HTTP, WebSocket close code, CLI exit code) projects the
// same small set of kinds instead of pattern-matching error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven error classes surfaced across every interface.
type Kind int

const (
	// Internal is the zero value so a bare Error{} degrades safely to 500.
	Internal Kind = iota
	Unauthorized
	TargetMissing
	TargetGone
	SourceUnavailable
	NameConflict
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "Unauthorized"
	case TargetMissing:
		return "TargetMissing"
	case TargetGone:
		return "TargetGone"
	case SourceUnavailable:
		return "SourceUnavailable"
	case NameConflict:
		return "NameConflict"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "Internal"
	}
}

// Error is the single classified-error type used throughout the server core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error with no wrapped cause.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it as the cause.
func Wrap(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal if err is not
// (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus projects the error kind onto an HTTP status code per §7.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case Unauthorized:
		return 401
	case TargetMissing:
		return 404
	case TargetGone:
		return 404
	case SourceUnavailable:
		return 503
	case NameConflict:
		return 409
	case InvalidArgument:
		return 400
	default:
		return 500
	}
}

// WSCloseCode projects the error kind onto a terminal-WebSocket close code
// per §4.C/§6. Bridge-hub close codes (1008, 1012) are not derived from
// Kind and are set directly at their call sites.
func (e *Error) WSCloseCode() int {
	switch e.Kind {
	case Unauthorized:
		return 4401
	case TargetMissing:
		return 4404
	case TargetGone:
		return 4410
	default:
		return 1011
	}
}

// ExitCode projects the error kind onto a tmuxdeckctl process exit code per §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case TargetMissing, TargetGone:
		return 1
	case SourceUnavailable:
		return 2
	case InvalidArgument:
		return 64
	default:
		return 1
	}
}
