package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, caller-visible classification of a failure.
type Kind string

const (
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidAmount     Kind = "invalid_amount"
	KindAlreadyRated      Kind = "already_rated"
	KindDuplicateIdentity Kind = "duplicate_identity"
	KindInvalidCredential Kind = "invalid_credential"
	KindValidation        Kind = "validation_error"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal_error"
)

// Sentinels for errors.Is checks.
var (
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid state transition"}
	ErrInvalidAmount     = &Error{Kind: KindInvalidAmount, Message: "invalid amount"}
	ErrAlreadyRated      = &Error{Kind: KindAlreadyRated, Message: "order already rated"}
	ErrDuplicateIdentity = &Error{Kind: KindDuplicateIdentity, Message: "identity already registered"}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential, Message: "invalid credential"}
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation error"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "concurrent modification"}
)

// FieldErrors maps a request field to every message it failed with.
type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Error is a business failure carrying its kind.
type Error struct {
	Kind    Kind
	Message string
	Fields  FieldErrors
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on kind so that New(KindNotFound, "order not found") satisfies
// errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation failure enumerating every failed field.
func Validation(fields FieldErrors) *Error {
	return &Error{Kind: KindValidation, Message: "Validation error", Fields: fields}
}

// KindOf returns the kind of err, or KindInternal for anything that is not
// a business error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthenticated, KindInvalidCredential:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindAlreadyRated, KindDuplicateIdentity, KindConflict:
		return http.StatusConflict
	case KindInvalidAmount, KindValidation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
