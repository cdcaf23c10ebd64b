// Package apperr classifies the user-facing errors returned by game services.
package apperr

import "errors"

// Kind is the class of a user-facing error.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPayment
	KindLimit
	KindUnavailable
)

// Error is a user-facing error with a fixed message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New creates an Error. Compare results with errors.Is.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Invalid(msg string) *Error      { return New(KindInvalid, msg) }
func NotFound(msg string) *Error     { return New(KindNotFound, msg) }
func Conflict(msg string) *Error     { return New(KindConflict, msg) }
func Forbidden(msg string) *Error    { return New(KindForbidden, msg) }
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }
func Limit(msg string) *Error        { return New(KindLimit, msg) }
func Payment(msg string) *Error      { return New(KindPayment, msg) }
func Unavailable(msg string) *Error  { return New(KindUnavailable, msg) }

// KindOf returns the kind of the first Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the user-facing message of err, or "" for internal errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return ""
}
