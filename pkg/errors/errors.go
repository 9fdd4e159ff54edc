package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failure categories surfaced to screens.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindNotSignedIn Kind = "not_signed_in"
	KindNotFound    Kind = "not_found"
	KindRemote      Kind = "remote"
	KindStorage     Kind = "storage"
	KindUnexpected  Kind = "unexpected"
)

// GenericMessage is shown for every unexpected failure.
const GenericMessage = "An unexpected error occurred"

// AppError is the error type every hook and store boundary returns.
type AppError struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// DisplayMessage is the text a user should see for this error.
func (e *AppError) DisplayMessage() string {
	if e.Kind == KindUnexpected || e.Message == "" {
		return GenericMessage
	}
	return e.Message
}

// HTTPStatus maps the kind onto a response status.
func (e *AppError) HTTPStatus() int {
	return StatusFor(e.Kind)
}

// ErrNotSignedIn is returned by data hooks when no user is present.
var ErrNotSignedIn = &AppError{Kind: KindNotSignedIn, Message: "You must be signed in"}

// Constructor functions for different error kinds

// NewValidation creates a validation error for a single form field.
func NewValidation(field, message string) error {
	return &AppError{Kind: KindValidation, Field: field, Message: message}
}

// NewAuth creates an authentication failure.
func NewAuth(message string, err error) error {
	return &AppError{Kind: KindAuth, Message: message, Err: err}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{Kind: KindNotFound, Message: message}
}

// NewRemote creates a failure reported by the remote data service.
func NewRemote(message string, err error) error {
	return &AppError{Kind: KindRemote, Message: message, Err: err}
}

// NewStorage creates an object storage failure.
func NewStorage(message string, err error) error {
	return &AppError{Kind: KindStorage, Message: message, Err: err}
}

// NewUnexpected creates an error whose details are never displayed.
func NewUnexpected(err error) error {
	return &AppError{Kind: KindUnexpected, Err: err}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Kind:    appErr.Kind,
			Field:   appErr.Field,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{Kind: KindUnexpected, Message: message, Err: err}
}

// Classify returns err as an *AppError, treating anything unknown as
// unexpected. A nil error classifies to nil.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Kind: KindUnexpected, Err: err}
}

// Normalize is Classify for callers that keep a plain error value.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	return Classify(err)
}

// KindOf reports the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if c := Classify(err); c != nil {
		return c.Kind
	}
	return ""
}

// DisplayMessage returns the user facing text for any error.
func DisplayMessage(err error) string {
	if c := Classify(err); c != nil {
		return c.DisplayMessage()
	}
	return ""
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuth, KindNotSignedIn:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRemote, KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Type checking functions

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAuth checks if an error is an authentication failure
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsNotSignedIn checks if an error was caused by a missing user
func IsNotSignedIn(err error) bool { return KindOf(err) == KindNotSignedIn }

// Is and As re-export the standard helpers so callers need one import.
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)
