// Package errors provides custom error types for the formsync package
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodePathFailure       ErrorCode = "PATH_FAILURE"
	ErrCodeCloneFailure      ErrorCode = "CLONE_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeMergeFailure      ErrorCode = "MERGE_FAILURE"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
)

// Operation represents the type of formsync operation
type Operation string

const (
	OpRegister    Operation = "register"
	OpSetField    Operation = "set_field"
	OpMaterialize Operation = "materialize"
	OpValidate    Operation = "validate"
	OpMerge       Operation = "merge"
	OpResolve     Operation = "resolve"
	OpSubmit      Operation = "submit"
	OpReset       Operation = "reset"
	OpStore       Operation = "store"
	OpLoad        Operation = "load"
	OpClose       Operation = "close"
)

// FormError represents an error that occurred while keeping a form model
// synchronized, validated, or merged
type FormError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "scheduler", "materializer")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *FormError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *FormError) Unwrap() error {
	return e.Err
}

// NewCloneError creates a new FormError for a failed structural copy
func NewCloneError(op Operation, cause error) *FormError {
	return &FormError{
		Code:      ErrCodeCloneFailure,
		Op:        op,
		Component: "materializer",
		Err:       cause,
		Retryable: false,
	}
}

// NewValidationError creates a new validation-related FormError
func NewValidationError(op Operation, cause error) *FormError {
	return &FormError{
		Code:      ErrCodeValidationFailure,
		Op:        op,
		Component: "scheduler",
		Err:       cause,
		Retryable: false,
	}
}

// NewMergeError creates a new merge-related FormError
func NewMergeError(op Operation, cause error) *FormError {
	return &FormError{
		Code:      ErrCodeMergeFailure,
		Op:        op,
		Component: "reconciler",
		Err:       cause,
		Retryable: false,
	}
}

// NewStorageError creates a new storage-related FormError
func NewStorageError(op Operation, cause error) *FormError {
	return &FormError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// New creates a new FormError
func New(op Operation, err error) *FormError {
	return &FormError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new FormError with component information
func NewWithComponent(op Operation, component string, err error) *FormError {
	return &FormError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewRetryable creates a new retryable FormError
func NewRetryable(op Operation, err error) *FormError {
	return &FormError{
		Op:        op,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is a retryable FormError
func IsRetryable(err error) bool {
	var formErr *FormError
	if errors.As(err, &formErr) {
		return formErr.Retryable
	}
	return false
}
