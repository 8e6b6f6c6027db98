package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation with field",
			err:  ValidationError{Field: "key", Message: "is required"},
			want: "validation failed for field 'key': is required",
		},
		{
			name: "validation without field",
			err:  ValidationError{Message: "empty input"},
			want: "validation failed: empty input",
		},
		{
			name: "not found",
			err:  NotFoundError{Kind: "secret", ID: "abc"},
			want: "secret not found: abc",
		},
		{
			name: "forbidden with reason",
			err:  ForbiddenError{Subject: "u1", Action: "delete workspace", Reason: "owner role required"},
			want: "subject u1 is not allowed to delete workspace: owner role required",
		},
		{
			name: "conflict",
			err:  ConflictError{Message: "rotation already in progress"},
			want: "conflict: rotation already in progress",
		},
		{
			name: "invariant",
			err:  InvariantError{Message: "cannot remove the last admin"},
			want: "invariant violation: cannot remove the last admin",
		},
		{
			name: "external call status",
			err:  ExternalCallError{URL: "https://hook.example", StatusCode: 500},
			want: "external call to https://hook.example returned status 500",
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

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("loading schedule: %w", NotFoundError{Kind: "schedule", ID: "s1"})
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should match a wrapped NotFoundError")
	}
	if IsConflict(wrapped) {
		t.Error("IsConflict must not match a NotFoundError")
	}

	conflict := fmt.Errorf("start: %w", ConflictError{Message: "in progress"})
	if !IsConflict(conflict) {
		t.Error("IsConflict should match a wrapped ConflictError")
	}

	dec := DecryptionError{Err: fmt.Errorf("cipher: message authentication failed")}
	if !IsDecryption(dec) {
		t.Error("IsDecryption should match DecryptionError")
	}
	if !strings.Contains(dec.Error(), "decryption failed") {
		t.Errorf("unexpected message %q", dec.Error())
	}
}
