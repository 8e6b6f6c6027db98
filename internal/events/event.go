// Package events provides the audit and notification sink for lifecycle
// events. Emission is fire-and-forget: a failing channel never fails the
// operation that produced the event.
package events

import (
	"time"
)

// Type identifies a lifecycle event.
type Type string

const (
	// TypeSecretCreated indicates a secret was created.
	TypeSecretCreated Type = "secret.created"

	// TypeSecretUpdated indicates a secret value or metadata changed.
	TypeSecretUpdated Type = "secret.updated"

	// TypeSecretDeleted indicates a secret was hard-deleted.
	TypeSecretDeleted Type = "secret.deleted"

	// TypeRotationSuccess indicates a rotation completed successfully.
	TypeRotationSuccess Type = "rotation.success"

	// TypeRotationFailed indicates a rotation failed.
	TypeRotationFailed Type = "rotation.failed"

	// TypeRoleChanged indicates a team member's role changed or the member
	// was removed.
	TypeRoleChanged Type = "role.changed"
)

// Event is a lifecycle event emitted by the secret store, the rotation
// engine, or the membership manager.
type Event struct {
	// Type is the lifecycle event type.
	Type Type

	// SecretKey is the key of the secret involved, if any.
	SecretKey string

	// SecretID is the id of the secret involved, if any.
	SecretID string

	// ScheduleID is the rotation schedule involved, if any.
	ScheduleID string

	// ProjectID is the project the event belongs to.
	ProjectID string

	// Environment is the environment name (e.g. "production").
	Environment string

	// Actor is the authenticated subject that triggered the event, or
	// "scheduler" for timer-driven rotations.
	Actor string

	// Error contains the failure if the operation failed.
	Error error

	// Duration is how long the operation took, when meaningful.
	Duration time.Duration

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Metadata carries additional context (old role, new version, ...).
	Metadata map[string]string
}

// AllTypes returns every valid event type.
func AllTypes() []Type {
	return []Type{
		TypeSecretCreated,
		TypeSecretUpdated,
		TypeSecretDeleted,
		TypeRotationSuccess,
		TypeRotationFailed,
		TypeRoleChanged,
	}
}
