package contentbase

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrNotFound", ErrNotFound, "document not found"},
		{"ErrConflict", ErrConflict, "concurrent modification detected"},
		{"ErrConsistency", ErrConsistency, "consistency mismatch"},
		{"ErrResourceExhausted", ErrResourceExhausted, "resource exhausted"},
		{"ErrInvalidConfig", ErrInvalidConfig, "invalid configuration"},
		{"ErrLockHeld", ErrLockHeld, "lock already held by another process"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.want {
				t.Errorf("error message = %q, want %q", tt.err.Error(), tt.want)
			}
		})
	}
}

func TestWithContext(t *testing.T) {
	baseErr := errors.New("base error")
	err := WithContext(baseErr, map[string]interface{}{
		"key":   "books/123",
		"value": 42,
	})

	var errWithCtx *ErrorWithContext
	if !errors.As(err, &errWithCtx) {
		t.Fatalf("expected ErrorWithContext, got %T", err)
	}
	if !errors.Is(err, baseErr) {
		t.Error("expected error to wrap base error")
	}
	if errWithCtx.Context["key"] != "books/123" {
		t.Errorf("context key = %v, want 'books/123'", errWithCtx.Context["key"])
	}

	if WithContext(nil, map[string]interface{}{"a": 1}) != nil {
		t.Error("WithContext(nil) should return nil")
	}
}

func TestErrorClassifiers(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", WithContext(ErrConsistency, nil))

	tests := []struct {
		name string
		fn   func(error) bool
		err  error
		want bool
	}{
		{"IsNotFound direct", IsNotFound, ErrNotFound, true},
		{"IsNotFound wrapped", IsNotFound, WithContext(ErrNotFound, nil), true},
		{"IsNotFound other", IsNotFound, errors.New("other"), false},
		{"IsNotFound nil", IsNotFound, nil, false},
		{"IsConflict conflict", IsConflict, ErrConflict, true},
		{"IsConflict exists", IsConflict, ErrAlreadyExists, true},
		{"IsConsistency wrapped twice", IsConsistency, wrapped, true},
		{"IsResourceExhausted", IsResourceExhausted, WithContext(ErrResourceExhausted, nil), true},
		{"IsRetryable conflict", IsRetryable, ErrConflict, true},
		{"IsRetryable not found", IsRetryable, ErrNotFound, false},
		{"IsPermanent consistency", IsPermanent, ErrConsistency, true},
		{"IsPermanent lock held", IsPermanent, ErrLockHeld, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
