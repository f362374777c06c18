package application

import (
	"errors"
	"sort"
)

var (
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is matched by every ConflictError.
	ErrConflict = errors.New("application: conflict")
	// ErrUnauthenticated is returned when no valid session backs a request.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrInvalidCode is returned when a one-time code is wrong, expired or exhausted.
	ErrInvalidCode = errors.New("application: invalid one-time code")
	// ErrDomainNotAllowed is returned for email addresses outside the allowed domain.
	ErrDomainNotAllowed = errors.New("application: email domain not allowed")
	// ErrAccountDisabled is returned when a disabled user tries to act.
	ErrAccountDisabled = errors.New("application: account disabled")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Message returns the first field message in field order, for single-line display.
func (v *ValidationError) Message() string {
	if !v.HasErrors() {
		return ""
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return v.FieldErrors[fields[0]]
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func newValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// ConflictKind names the occupancy rule a request ran into.
type ConflictKind string

const (
	// ConflictDesk means the desk is already taken for the slot.
	ConflictDesk ConflictKind = "desk"
	// ConflictUser means the user already holds a desk for the slot.
	ConflictUser ConflictKind = "user"
	// ConflictNotReleased means a named desk was requested without its owner releasing it.
	ConflictNotReleased ConflictKind = "not_released"
)

// ConflictError reports a data-dependent rejection the caller may resolve by
// choosing different parameters.
type ConflictError struct {
	Kind              ConflictKind
	Message           string
	WithReservationID string
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil {
		return ""
	}
	return "conflict: " + c.Message
}

// Is lets errors.Is match ErrConflict.
func (c *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
