package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestFormError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *FormError
		want string
	}{
		{
			name: "with component and code",
			err: &FormError{
				Op:        OpValidate,
				Component: "scheduler",
				Code:      ErrCodeValidationFailure,
				Err:       fmt.Errorf("routine rejected"),
			},
			want: "validate operation failed in scheduler component [VALIDATION_FAILURE]: routine rejected",
		},
		{
			name: "without component",
			err: &FormError{
				Op:  OpSubmit,
				Err: fmt.Errorf("boom"),
			},
			want: "submit operation failed: boom",
		},
		{
			name: "with component only",
			err: &FormError{
				Op:        OpStore,
				Component: "store",
				Err:       fmt.Errorf("disk full"),
			},
			want: "store operation failed in store component: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := New(OpMerge, cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the underlying cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() did not return the cause")
	}
}

func TestFormError_As(t *testing.T) {
	inner := NewValidationError(OpValidate, fmt.Errorf("bad value"))
	wrapped := fmt.Errorf("outer context: %w", inner)

	var formErr *FormError
	if !errors.As(wrapped, &formErr) {
		t.Fatalf("expected errors.As to unwrap to *FormError")
	}
	if formErr.Code != ErrCodeValidationFailure {
		t.Errorf("expected code %s, got %s", ErrCodeValidationFailure, formErr.Code)
	}
	if formErr.Component != "scheduler" {
		t.Errorf("expected component scheduler, got %s", formErr.Component)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewRetryable(OpStore, fmt.Errorf("transient"))) {
		t.Errorf("expected retryable error to be retryable")
	}
	if IsRetryable(NewValidationError(OpValidate, fmt.Errorf("permanent"))) {
		t.Errorf("validation errors must not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain error")) {
		t.Errorf("plain errors must not be retryable")
	}

	// Retryability survives wrapping.
	wrapped := fmt.Errorf("context: %w", NewStorageError(OpLoad, fmt.Errorf("locked")))
	if !IsRetryable(wrapped) {
		t.Errorf("expected wrapped storage error to be retryable")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *FormError
		code      ErrorCode
		component string
		retryable bool
	}{
		{"clone", NewCloneError(OpMaterialize, fmt.Errorf("chan")), ErrCodeCloneFailure, "materializer", false},
		{"validation", NewValidationError(OpValidate, fmt.Errorf("x")), ErrCodeValidationFailure, "scheduler", false},
		{"merge", NewMergeError(OpMerge, fmt.Errorf("x")), ErrCodeMergeFailure, "reconciler", false},
		{"storage", NewStorageError(OpStore, fmt.Errorf("x")), ErrCodeStorageFailure, "store", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.Component != tt.component {
				t.Errorf("component = %s, want %s", tt.err.Component, tt.component)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}
