package core

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

// AuthenticationError means the caller could not be identified:
// bad credentials, or an absent, unknown or expired session token.
// The message never tells which part of the credentials was wrong.
type AuthenticationError struct {
	msg string
}

func NewAuthenticationError(msg string) error {
	return &AuthenticationError{msg: msg}
}

func (err AuthenticationError) Error() string { return err.msg }

// AuthorizationError means the caller is authenticated but lacks the role or ownership required.
type AuthorizationError struct {
	msg string
}

func NewAuthorizationError(msg string) error {
	return &AuthorizationError{msg: msg}
}

func (err AuthorizationError) Error() string { return err.msg }

// ConflictError reports a write rejected by a uniqueness or reference constraint.
type ConflictError struct {
	Field string
	msg   string
}

func NewConflictError(field, msg string) error {
	return &ConflictError{Field: field, msg: msg}
}

func (err ConflictError) Error() string { return err.msg }

// StoreUnavailableError wraps a storage failure (connection refused, timeout..).
// Its cause is logged but never sent to clients.
type StoreUnavailableError struct {
	Err error
}

func NewStoreUnavailableError(err error) error {
	return &StoreUnavailableError{Err: err}
}

func (err StoreUnavailableError) Error() string {
	return "store unavailable: " + err.Err.Error()
}

func (err StoreUnavailableError) Unwrap() error { return err.Err }

func IsAuthenticationError(err error) bool {
	_, ok := errors.Cause(err).(*AuthenticationError)
	return ok
}

func IsAuthorizationError(err error) bool {
	_, ok := errors.Cause(err).(*AuthorizationError)
	return ok
}

func IsConflictError(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

// IsValidationError reports whether err is a *ValidationError or raw validator.ValidationErrors.
func IsValidationError(err error) bool {
	switch errors.Cause(err).(type) {
	case *ValidationError, validator.ValidationErrors:
		return true
	}
	return false
}

func IsStoreUnavailable(err error) bool {
	_, ok := errors.Cause(err).(*StoreUnavailableError)
	return ok
}
