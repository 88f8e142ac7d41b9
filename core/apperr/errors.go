// Package apperr defines the error taxonomy shared by the incident core and its transports.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindAccessDenied      Kind = "access_denied"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindUnavailable       Kind = "unavailable"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func AccessDenied(code string) *Error {
	return New(KindAccessDenied, code, "access denied")
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func InvalidTransition(from, to string) *Error {
	return New(KindInvalidTransition, "incidents.invalid_transition", fmt.Sprintf("cannot change status from %s to %s", from, to))
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// Unavailable wraps a storage or transport failure. The cause is kept for logs only.
func Unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Code: "storage.unavailable", Message: "service temporarily unavailable", Err: err}
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return KindUnavailable
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
