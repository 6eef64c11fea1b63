package errdef

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

func NewForbidden(format string, a ...any) error {
	return forbidden{fmt.Errorf(format, a...)}
}

type forbidden struct{ error }

func IsForbidden(err error) bool {
	var e forbidden
	return errors.As(err, &e)
}

func NewBadRequest(format string, a ...any) error {
	return badRequest{fmt.Errorf(format, a...)}
}

type badRequest struct{ error }

func IsBadRequest(err error) bool {
	var e badRequest
	return errors.As(err, &e)
}

func NewDuplicated(format string, a ...any) error {
	return duplicated{fmt.Errorf(format, a...)}
}

type duplicated struct{ error }

func IsDuplicated(err error) bool {
	var e duplicated
	return errors.As(err, &e)
}

func NewUnauthorized(format string, a ...any) error {
	return unauthorized{fmt.Errorf(format, a...)}
}

type unauthorized struct{ error }

func IsUnauthorized(err error) bool {
	var e unauthorized
	return errors.As(err, &e)
}

// NewNotFound creates an error representing a resource that could not be found.
func NewNotFound(format string, a ...any) error {
	return notFound{fmt.Errorf(format, a...)}
}

type notFound struct{ error }

// IsNotFound returns true if err is an error representing a resource that could not be found and false otherwise.
func IsNotFound(err error) bool {
	var e notFound
	return errors.As(err, &e)
}

// NewConflict creates an error representing a conflicting state.
func NewConflict(format string, a ...any) error {
	return conflict{fmt.Errorf(format, a...)}
}

type conflict struct{ error }

// IsConflict returns true if err is an error representing a conflict and false otherwise.
func IsConflict(err error) bool {
	var e conflict
	return errors.As(err, &e)
}

func NewUnsupportedMediaType(format string, a ...any) error {
	return unsupportedMediaType{fmt.Errorf(format, a...)}
}

type unsupportedMediaType struct{ error }

func IsUnsupportedMediaType(err error) bool {
	var e unsupportedMediaType
	return errors.As(err, &e)
}

// NewNoHandlerFound creates an error representing a request type nobody registered a handler for.
// It is a programming error and never the caller's fault.
func NewNoHandlerFound(format string, a ...any) error {
	return noHandlerFound{fmt.Errorf(format, a...)}
}

type noHandlerFound struct{ error }

// IsNoHandlerFound returns true if err is an error representing a missing request handler.
func IsNoHandlerFound(err error) bool {
	var e noHandlerFound
	return errors.As(err, &e)
}

// NewUnavailable wraps cause into an error representing a storage or transport failure. The cause is
// kept for logging and errors.Is/As but is not part of the message shown to callers.
func NewUnavailable(cause error, format string, a ...any) error {
	return unavailable{message: fmt.Sprintf(format, a...), cause: cause}
}

type unavailable struct {
	message string
	cause   error
}

func (u unavailable) Error() string {
	return u.message
}

func (u unavailable) Unwrap() error {
	return u.cause
}

// IsUnavailable returns true if err is an error representing a retriable storage or transport failure.
func IsUnavailable(err error) bool {
	var e unavailable
	return errors.As(err, &e)
}

// Violations maps a field name to every rule it violated.
type Violations map[string][]string

// NewValidationFailed creates an error carrying all violations found on a request.
func NewValidationFailed(violations Violations) error {
	return ValidationFailed{Violations: violations}
}

// ValidationFailed is returned when a request violates one or more rules.
type ValidationFailed struct {
	Violations Violations
}

func (v ValidationFailed) Error() string {
	fields := make([]string, 0, len(v.Violations))
	for field := range v.Violations {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(v.Violations[field], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidationFailed returns true if err is an error representing failed request validation.
func IsValidationFailed(err error) bool {
	var e ValidationFailed
	return errors.As(err, &e)
}

// GetViolations returns the violations carried by err, if any.
func GetViolations(err error) (Violations, bool) {
	var e ValidationFailed
	if !errors.As(err, &e) {
		return nil, false
	}
	return e.Violations, true
}

// IsClassified returns true if err is one of the kinds defined in this package. Anything else is an
// unexpected failure.
func IsClassified(err error) bool {
	return IsForbidden(err) ||
		IsBadRequest(err) ||
		IsDuplicated(err) ||
		IsUnauthorized(err) ||
		IsNotFound(err) ||
		IsConflict(err) ||
		IsUnsupportedMediaType(err) ||
		IsNoHandlerFound(err) ||
		IsUnavailable(err) ||
		IsValidationFailed(err)
}
