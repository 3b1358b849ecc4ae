// ABOUTME: Error taxonomy for command execution
// ABOUTME: Every failure carries a Kind and the single line shown to the invoker

package command

import (
	"errors"
	"fmt"
)

// Kind classifies a command failure.
type Kind int

const (
	Internal Kind = iota
	PermissionDenied
	UnknownCommand
	NoMatch
	AmbiguousMatch
	InvalidArgument
	ProtectedResource
	AlreadyInState
	UnknownService
	NotControlled
	SuperuserShielded
	NotConnected
)

var kindNames = map[Kind]string{
	Internal:          "internal",
	PermissionDenied:  "permission_denied",
	UnknownCommand:    "unknown_command",
	NoMatch:           "no_match",
	AmbiguousMatch:    "ambiguous_match",
	InvalidArgument:   "invalid_argument",
	ProtectedResource: "protected_resource",
	AlreadyInState:    "already_in_state",
	UnknownService:    "unknown_service",
	NotControlled:     "not_controlled",
	SuperuserShielded: "superuser_shielded",
	NotConnected:      "not_connected",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a command failure with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a user-facing message.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or Internal if err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Internal
}

// MessageOf returns the user-facing line for err.
func MessageOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "Something went wrong running that command."
}
