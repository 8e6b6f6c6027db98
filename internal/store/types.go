// Package store defines the record-level persistence capability the engine
// writes through. The interface supports only equality filters and
// descending-timestamp sorts; anything smarter belongs to the backing store.
package store

import "time"

// SecretRecord is the persisted shape of a secret. The value is stored as a
// serialized crypto envelope, never as plaintext.
type SecretRecord struct {
	ID          string
	Key         string
	Envelope    string
	Description string
	Environment string
	Type        string
	// Version is a monotonically increasing integer stored as a string for
	// wire compatibility with the original record shape.
	Version        string
	Permission     []string
	ExpiryDate     *time.Time
	RotationPolicy string
	ProjectID      string
	// BranchID is nil for project-global secrets.
	BranchID    *string
	UpdatedBy   string
	LastUpdated time.Time
}

// HistoryRecord is one append-only history entry for a secret. History rows
// live in their own table keyed by secret id rather than embedded in the
// secret record, so a single record never grows without bound.
type HistoryRecord struct {
	ID           string
	SecretID     string
	Version      string
	Value        string
	Description  string
	UpdatedBy    string
	UpdatedAt    time.Time
	ChangeReason string
}

// ScheduleRecord is the persisted rotation schedule. At most one exists per
// secret.
type ScheduleRecord struct {
	ID           string
	SecretID     string
	ProjectID    string
	Environment  string
	Frequency    string
	CustomDays   int
	Method       string
	WebhookURL   string
	Status       string
	NextRotation time.Time
	LastRotation *time.Time
	CreatedAt    time.Time
}

// Rotation log statuses.
const (
	RotationInProgress = "in-progress"
	RotationSuccess    = "success"
	RotationFailed     = "failed"
)

// RotationLogRecord is one append-only rotation attempt. It is never mutated
// except for the single in-progress -> success|failed transition.
type RotationLogRecord struct {
	ID          string
	ScheduleID  string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Membership graph records. These are owned by the external team/workspace
// management flows and consumed read-only by the role resolver, except for
// the team-member mutations that carry the last-admin invariant.

// WorkspaceRecord is the top tier of the organizational hierarchy.
type WorkspaceRecord struct {
	ID        string
	CreatedBy string
}

// TeamRecord belongs to a workspace.
type TeamRecord struct {
	ID          string
	WorkspaceID string
	CreatedBy   string
}

// Team membership statuses.
const (
	MemberActive  = "active"
	MemberPending = "pending"
)

// TeamUserRecord links a subject to a team with a role.
type TeamUserRecord struct {
	TeamID string
	UserID string
	Role   string
	Status string
}

// TeamProjectRecord links a team to a project.
type TeamProjectRecord struct {
	TeamID    string
	ProjectID string
}

// ProjectRecord is the bottom tier of the hierarchy.
type ProjectRecord struct {
	ID          string
	UserID      string
	WorkspaceID string
	IsBlocked   bool
}

// SecretFilter selects secrets by equality on its non-zero fields.
type SecretFilter struct {
	ID        string
	Key       string
	ProjectID string
	// BranchID filters on branch when set; BranchGlobal selects records with
	// a nil branch.
	BranchID     string
	BranchGlobal bool
	Environment  string
}
