// Package errors defines the typed error taxonomy used across the secret
// lifecycle engine. Every failure path returns one of these types so callers
// can branch on error kind without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed input. The operation is
// aborted before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

// NotFoundError reports an unknown record id or key.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ForbiddenError reports a failed authorization gate. No partial side
// effects are allowed to precede it.
type ForbiddenError struct {
	Subject string
	Action  string
	Reason  string
}

func (e ForbiddenError) Error() string {
	msg := fmt.Sprintf("subject %s is not allowed to %s", e.Subject, e.Action)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// DecryptionError reports an envelope that failed authentication or could
// not be parsed. On read paths it is recovered per record, never batch-fatal.
type DecryptionError struct {
	Err error
}

func (e DecryptionError) Error() string {
	if e.Err != nil {
		return "decryption failed: " + e.Err.Error()
	}
	return "decryption failed"
}

func (e DecryptionError) Unwrap() error { return e.Err }

// ExternalCallError reports a webhook timeout or non-2xx response. It is
// recorded in the rotation log rather than propagated as fatal.
type ExternalCallError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e ExternalCallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("external call to %s returned status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("external call to %s failed: %v", e.URL, e.Err)
	}
	return "external call to " + e.URL + " failed"
}

func (e ExternalCallError) Unwrap() error { return e.Err }

// ConflictError reports a concurrent rotation attempt on the same schedule
// or a duplicate schedule creation.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return "conflict: " + e.Message
}

// InvariantError reports an operation that would break a structural
// invariant, such as removing the last admin of a team.
type InvariantError struct {
	Message string
}

func (e InvariantError) Error() string {
	return "invariant violation: " + e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	var target ForbiddenError
	return errors.As(err, &target)
}

// IsDecryption reports whether err is a DecryptionError.
func IsDecryption(err error) bool {
	var target DecryptionError
	return errors.As(err, &target)
}

// IsExternalCall reports whether err is an ExternalCallError.
func IsExternalCall(err error) bool {
	var target ExternalCallError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

// IsInvariant reports whether err is an InvariantError.
func IsInvariant(err error) bool {
	var target InvariantError
	return errors.As(err, &target)
}
