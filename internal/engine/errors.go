package engine

import (
	"errors"
	"fmt"
)

// ReconcileError represents an error detected while reconciling a record.
//
// Reconcile errors include:
//   - Unknown type: the identifier names a type with no registered schema
//   - Invalid value: a raw value cannot be coerced to its declared kind
//
// ReconcileError includes structured fields for diagnostics.
type ReconcileError struct {
	// Code identifies the error category.
	Code ReconcileErrorCode

	// Message is a human-readable description.
	Message string

	// TypeName identifies the affected fixture type.
	TypeName string

	// Key identifies the affected record within the type.
	Key string

	// Attr identifies the attribute (for coercion errors).
	Attr string
}

// ReconcileErrorCode categorizes reconcile errors.
type ReconcileErrorCode string

const (
	// ErrCodeUnknownType indicates an identifier whose type has no schema.
	ErrCodeUnknownType ReconcileErrorCode = "UNKNOWN_TYPE"

	// ErrCodeInvalidValue indicates a raw value that failed coercion.
	ErrCodeInvalidValue ReconcileErrorCode = "INVALID_VALUE"
)

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	switch {
	case e.Attr != "":
		return fmt.Sprintf("%s: %s (record=%s:%s, attr=%s)", e.Code, e.Message, e.TypeName, e.Key, e.Attr)
	case e.Key != "":
		return fmt.Sprintf("%s: %s (record=%s:%s)", e.Code, e.Message, e.TypeName, e.Key)
	default:
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.TypeName)
	}
}

// IsUnknownType returns true if the error is an unknown-type error.
// Uses errors.As to handle wrapped errors.
func IsUnknownType(err error) bool {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownType
	}
	return false
}

// IsInvalidValue returns true if the error is a coercion error.
// Uses errors.As to handle wrapped errors.
func IsInvalidValue(err error) bool {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidValue
	}
	return false
}

// newUnknownTypeError creates a ReconcileError for a missing type schema.
func newUnknownTypeError(typeName, key string) *ReconcileError {
	return &ReconcileError{
		Code:     ErrCodeUnknownType,
		Message:  "no schema registered for type",
		TypeName: typeName,
		Key:      key,
	}
}

// newInvalidValueError creates a ReconcileError for a failed coercion.
func newInvalidValueError(typeName, key, attr string, cause error) *ReconcileError {
	return &ReconcileError{
		Code:     ErrCodeInvalidValue,
		Message:  cause.Error(),
		TypeName: typeName,
		Key:      key,
		Attr:     attr,
	}
}
