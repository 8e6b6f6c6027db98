package store

import (
	"context"
	"time"
)

// Store is the full persistence capability the engine depends on. Both the
// in-memory reference implementation and the postgres implementation satisfy
// it.
type Store interface {
	SecretStore
	HistoryStore
	ScheduleStore
	RotationLogStore
	MembershipStore
}

// SecretStore persists secret records.
type SecretStore interface {
	// CreateSecret inserts a new record. Returns ConflictError when the
	// (key, projectID, branchID) triple already exists.
	CreateSecret(ctx context.Context, rec *SecretRecord) error

	// GetSecret returns the record by id, or NotFoundError.
	GetSecret(ctx context.Context, id string) (*SecretRecord, error)

	// FindSecrets returns records matching all non-zero filter fields.
	FindSecrets(ctx context.Context, filter SecretFilter) ([]*SecretRecord, error)

	// UpdateSecret replaces the record by id, or NotFoundError.
	UpdateSecret(ctx context.Context, rec *SecretRecord) error

	// DeleteSecret removes the record by id, or NotFoundError.
	DeleteSecret(ctx context.Context, id string) error
}

// HistoryStore persists the append-only secret history.
type HistoryStore interface {
	// AppendHistory inserts one history entry.
	AppendHistory(ctx context.Context, rec *HistoryRecord) error

	// HistoryForSecret returns entries newest-first.
	HistoryForSecret(ctx context.Context, secretID string) ([]*HistoryRecord, error)

	// DeleteHistoryForSecret removes all entries for a secret. Used only by
	// secret hard-delete.
	DeleteHistoryForSecret(ctx context.Context, secretID string) error
}

// ScheduleStore persists rotation schedules.
type ScheduleStore interface {
	// CreateSchedule inserts a new schedule. Returns ConflictError when the
	// secret already has one.
	CreateSchedule(ctx context.Context, rec *ScheduleRecord) error

	// GetSchedule returns the schedule by id, or NotFoundError.
	GetSchedule(ctx context.Context, id string) (*ScheduleRecord, error)

	// ScheduleForSecret returns the schedule attached to a secret, or
	// NotFoundError.
	ScheduleForSecret(ctx context.Context, secretID string) (*ScheduleRecord, error)

	// ListSchedules returns schedules, optionally filtered by project.
	ListSchedules(ctx context.Context, projectID string) ([]*ScheduleRecord, error)

	// DueSchedules returns active schedules with nextRotation <= now.
	DueSchedules(ctx context.Context, now time.Time) ([]*ScheduleRecord, error)

	// UpdateSchedule replaces the schedule by id, or NotFoundError.
	UpdateSchedule(ctx context.Context, rec *ScheduleRecord) error

	// DeleteSchedule removes the schedule by id, or NotFoundError. The
	// secret itself is untouched.
	DeleteSchedule(ctx context.Context, id string) error
}

// RotationLogStore persists rotation attempts.
type RotationLogStore interface {
	// StartRotation atomically appends an in-progress log entry for the
	// schedule iff no in-progress entry exists, returning ConflictError
	// otherwise. This is the serialization primitive that prevents two
	// rotations racing on the same secret's version counter.
	StartRotation(ctx context.Context, scheduleID string, startedAt time.Time) (*RotationLogRecord, error)

	// CompleteRotation transitions an in-progress entry to success or
	// failed, setting completedAt exactly once.
	CompleteRotation(ctx context.Context, logID, status string, completedAt time.Time, errMsg string) error

	// RotationLogs returns entries for a schedule newest-first, up to limit
	// (0 means no limit).
	RotationLogs(ctx context.Context, scheduleID string, limit int) ([]*RotationLogRecord, error)
}

// MembershipStore reads the organizational hierarchy and applies the two
// team-member mutations that the engine itself guards.
type MembershipStore interface {
	// Workspace returns a workspace by id, or NotFoundError.
	Workspace(ctx context.Context, id string) (*WorkspaceRecord, error)

	// TeamsInWorkspace returns all teams of a workspace.
	TeamsInWorkspace(ctx context.Context, workspaceID string) ([]*TeamRecord, error)

	// Team returns a team by id, or NotFoundError.
	Team(ctx context.Context, id string) (*TeamRecord, error)

	// TeamUser returns the membership row for (teamID, userID), or
	// NotFoundError.
	TeamUser(ctx context.Context, teamID, userID string) (*TeamUserRecord, error)

	// TeamUsers returns all membership rows of a team.
	TeamUsers(ctx context.Context, teamID string) ([]*TeamUserRecord, error)

	// TeamsForProject returns all teams linked to a project.
	TeamsForProject(ctx context.Context, projectID string) ([]*TeamRecord, error)

	// Project returns a project by id, or NotFoundError.
	Project(ctx context.Context, id string) (*ProjectRecord, error)

	// UpsertTeamUser inserts or replaces a membership row.
	UpsertTeamUser(ctx context.Context, rec *TeamUserRecord) error

	// DeleteTeamUser removes a membership row, or NotFoundError.
	DeleteTeamUser(ctx context.Context, teamID, userID string) error
}
