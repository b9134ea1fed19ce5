package cat

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every failure returned by this module wraps exactly one of
// these, so callers match with errors.Is.
var (
	ErrValueOutOfRange    = errors.New("value out of range")
	ErrMalformedField     = errors.New("malformed field")
	ErrVerbMismatch       = errors.New("verb mismatch")
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrUnsupportedValue   = errors.New("unsupported value")
	ErrTimeout            = errors.New("timeout")
	ErrSetNotConfirmed    = errors.New("set not confirmed")
	ErrClosed             = errors.New("closed")
	ErrRejected           = errors.New("command rejected by radio")
)

// Error carries the kind of a failure together with where it happened.
type Error struct {
	Kind     error  // one of the Err* kinds above
	Verb     string // verb of the command involved, if any
	Field    string // field name, for codec failures
	Attempts int    // write+read attempts made, for transport failures
	Detail   string
	Cause    error // underlying I/O error, if any
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Verb != "" {
		sb.WriteString(e.Verb)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.Error())
	if e.Field != "" {
		fmt.Fprintf(&sb, " (field %s)", e.Field)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&sb, " after %d attempt(s)", e.Attempts)
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the error kind wrapped by err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValueOutOfRange, ErrMalformedField, ErrVerbMismatch,
		ErrUnsupportedCommand, ErrUnsupportedValue, ErrTimeout,
		ErrSetNotConfirmed, ErrClosed, ErrRejected,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
