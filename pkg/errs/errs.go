// Package errs carries a small closed set of error kinds so callers can
// branch on failure class without matching message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: a requested record or page element does not exist.
	KindNotFound
	// KindInvalidArgument: caller supplied something unusable.
	KindInvalidArgument
	// KindUpstreamBlocked: the source actively refused us (403, bot wall).
	KindUpstreamBlocked
	// KindUpstreamUnavailable: network failure, timeout, or 5xx upstream.
	KindUpstreamUnavailable
	// KindParseFailure: document retrieved but not interpretable.
	KindParseFailure
	// KindPersistenceFailure: the store rejected or could not complete a write.
	KindPersistenceFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUpstreamBlocked:
		return "upstream_blocked"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindParseFailure:
		return "parse_failure"
	case KindPersistenceFailure:
		return "persistence_failure"
	default:
		return "unknown"
	}
}

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err (which may be nil) with a kind and message.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Newf builds a kinded error with a formatted message and no cause.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
