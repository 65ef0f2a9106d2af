package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned by login for an unknown username and
	// for a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthorized is returned when a request has no valid session, when a
	// non-admin hits an admin route, and when an owned mutation affects no rows.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned by stores when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
)

// ValidationError – for invalid registration input.
// Supports errors.As.
//
// Field names the offending input and Reason is safe to show to the user.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// NewValidationError creates a new ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DuplicateError – for registrations that collide with an existing account.
// Supports errors.As and errors.Is.
//
// The message never says which unique field collided.
type DuplicateError struct{}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return "account already exists"
}

func (e *DuplicateError) Is(target error) bool {
	_, ok := target.(*DuplicateError)
	return ok
}

// ErrDuplicate can be used with errors.Is to detect a DuplicateError.
var ErrDuplicate = &DuplicateError{}

// NewDuplicateError creates a new DuplicateError.
func NewDuplicateError() error {
	return &DuplicateError{}
}

// TransientStoreError – for failures interacting with a persistence backend.
// Supports errors.As and errors.Unwrap.
//
// Will only be provided as a response from internal stores. The wrapped cause
// is for logs and must not reach the client.
type TransientStoreError struct {
	err error
}

// Error implements the error interface.
func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store error: %v", e.err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.err
}

// NewTransientStoreError creates a new TransientStoreError.
func NewTransientStoreError(err error) error {
	return &TransientStoreError{
		err: err,
	}
}
