package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	kferrors "github.com/keyfold/keyfold/internal/errors"
)

// MemoryStore is the in-memory reference implementation of Store. It backs
// unit tests and single-process deployments. All records are copied on the
// way in and out so callers can never alias internal state.
type MemoryStore struct {
	mu sync.RWMutex

	secrets   map[string]*SecretRecord
	history   map[string][]*HistoryRecord // secretID -> newest first
	schedules map[string]*ScheduleRecord
	logs      map[string][]*RotationLogRecord // scheduleID -> newest first

	workspaces   map[string]*WorkspaceRecord
	teams        map[string]*TeamRecord
	teamUsers    map[string]*TeamUserRecord // teamID|userID
	teamProjects []*TeamProjectRecord
	projects     map[string]*ProjectRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets:    make(map[string]*SecretRecord),
		history:    make(map[string][]*HistoryRecord),
		schedules:  make(map[string]*ScheduleRecord),
		logs:       make(map[string][]*RotationLogRecord),
		workspaces: make(map[string]*WorkspaceRecord),
		teams:      make(map[string]*TeamRecord),
		teamUsers:  make(map[string]*TeamUserRecord),
		projects:   make(map[string]*ProjectRecord),
	}
}

func teamUserKey(teamID, userID string) string {
	return teamID + "|" + userID
}

func copySecret(rec *SecretRecord) *SecretRecord {
	c := *rec
	c.Permission = append([]string(nil), rec.Permission...)
	if rec.ExpiryDate != nil {
		t := *rec.ExpiryDate
		c.ExpiryDate = &t
	}
	if rec.BranchID != nil {
		b := *rec.BranchID
		c.BranchID = &b
	}
	return &c
}

func copySchedule(rec *ScheduleRecord) *ScheduleRecord {
	c := *rec
	if rec.LastRotation != nil {
		t := *rec.LastRotation
		c.LastRotation = &t
	}
	return &c
}

func copyLog(rec *RotationLogRecord) *RotationLogRecord {
	c := *rec
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// CreateSecret inserts a new secret record.
func (m *MemoryStore) CreateSecret(_ context.Context, rec *SecretRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	for _, existing := range m.secrets {
		if existing.Key == rec.Key && existing.ProjectID == rec.ProjectID && branchEqual(existing.BranchID, rec.BranchID) {
			return kferrors.ConflictError{Message: "secret key '" + rec.Key + "' already exists in this branch"}
		}
	}
	m.secrets[rec.ID] = copySecret(rec)
	return nil
}

func branchEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// GetSecret returns a secret record by id.
func (m *MemoryStore) GetSecret(_ context.Context, id string) (*SecretRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.secrets[id]
	if !ok {
		return nil, kferrors.NotFoundError{Kind: "secret", ID: id}
	}
	return copySecret(rec), nil
}

// FindSecrets returns records matching all non-zero filter fields, newest
// update first.
func (m *MemoryStore) FindSecrets(_ context.Context, filter SecretFilter) ([]*SecretRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*SecretRecord
	for _, rec := range m.secrets {
		if filter.ID != "" && rec.ID != filter.ID {
			continue
		}
		if filter.Key != "" && rec.Key != filter.Key {
			continue
		}
		if filter.ProjectID != "" && rec.ProjectID != filter.ProjectID {
			continue
		}
		if filter.BranchID != "" && (rec.BranchID == nil || *rec.BranchID != filter.BranchID) {
			continue
		}
		if filter.BranchGlobal && rec.BranchID != nil {
			continue
		}
		if filter.Environment != "" && rec.Environment != filter.Environment {
			continue
		}
		out = append(out, copySecret(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out, nil
}

// UpdateSecret replaces a secret record.
func (m *MemoryStore) UpdateSecret(_ context.Context, rec *SecretRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.secrets[rec.ID]; !ok {
		return kferrors.NotFoundError{Kind: "secret", ID: rec.ID}
	}
	m.secrets[rec.ID] = copySecret(rec)
	return nil
}

// DeleteSecret hard-deletes a secret record.
func (m *MemoryStore) DeleteSecret(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.secrets[id]; !ok {
		return kferrors.NotFoundError{Kind: "secret", ID: id}
	}
	delete(m.secrets, id)
	return nil
}

// AppendHistory prepends one history entry (newest first).
func (m *MemoryStore) AppendHistory(_ context.Context, rec *HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	c := *rec
	m.history[rec.SecretID] = append([]*HistoryRecord{&c}, m.history[rec.SecretID]...)
	return nil
}

// HistoryForSecret returns history entries newest first.
func (m *MemoryStore) HistoryForSecret(_ context.Context, secretID string) ([]*HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.history[secretID]
	out := make([]*HistoryRecord, len(entries))
	for i, e := range entries {
		c := *e
		out[i] = &c
	}
	return out, nil
}

// DeleteHistoryForSecret removes all history for a secret.
func (m *MemoryStore) DeleteHistoryForSecret(_ context.Context, secretID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.history, secretID)
	return nil
}

// CreateSchedule inserts a schedule, enforcing one per secret.
func (m *MemoryStore) CreateSchedule(_ context.Context, rec *ScheduleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	for _, existing := range m.schedules {
		if existing.SecretID == rec.SecretID {
			return kferrors.ConflictError{Message: "secret already has a rotation schedule"}
		}
	}
	m.schedules[rec.ID] = copySchedule(rec)
	return nil
}

// GetSchedule returns a schedule by id.
func (m *MemoryStore) GetSchedule(_ context.Context, id string) (*ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.schedules[id]
	if !ok {
		return nil, kferrors.NotFoundError{Kind: "schedule", ID: id}
	}
	return copySchedule(rec), nil
}

// ScheduleForSecret returns the schedule attached to a secret.
func (m *MemoryStore) ScheduleForSecret(_ context.Context, secretID string) (*ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.schedules {
		if rec.SecretID == secretID {
			return copySchedule(rec), nil
		}
	}
	return nil, kferrors.NotFoundError{Kind: "schedule", ID: "secret " + secretID}
}

// ListSchedules returns schedules, optionally filtered by project.
func (m *MemoryStore) ListSchedules(_ context.Context, projectID string) ([]*ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ScheduleRecord
	for _, rec := range m.schedules {
		if projectID != "" && rec.ProjectID != projectID {
			continue
		}
		out = append(out, copySchedule(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DueSchedules returns active schedules whose nextRotation is due.
func (m *MemoryStore) DueSchedules(_ context.Context, now time.Time) ([]*ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ScheduleRecord
	for _, rec := range m.schedules {
		if rec.Status == "active" && !rec.NextRotation.After(now) {
			out = append(out, copySchedule(rec))
		}
	}
	return out, nil
}

// UpdateSchedule replaces a schedule.
func (m *MemoryStore) UpdateSchedule(_ context.Context, rec *ScheduleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[rec.ID]; !ok {
		return kferrors.NotFoundError{Kind: "schedule", ID: rec.ID}
	}
	m.schedules[rec.ID] = copySchedule(rec)
	return nil
}

// DeleteSchedule removes a schedule.
func (m *MemoryStore) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[id]; !ok {
		return kferrors.NotFoundError{Kind: "schedule", ID: id}
	}
	delete(m.schedules, id)
	return nil
}

// StartRotation appends an in-progress log entry iff none exists for the
// schedule. The check and insert happen under one lock, which makes this the
// compare-and-swap the rotation engine relies on.
func (m *MemoryStore) StartRotation(_ context.Context, scheduleID string, startedAt time.Time) (*RotationLogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.logs[scheduleID] {
		if entry.Status == RotationInProgress {
			return nil, kferrors.ConflictError{Message: "rotation already in progress for schedule " + scheduleID}
		}
	}

	rec := &RotationLogRecord{
		ID:         uuid.NewString(),
		ScheduleID: scheduleID,
		Status:     RotationInProgress,
		StartedAt:  startedAt,
	}
	m.logs[scheduleID] = append([]*RotationLogRecord{rec}, m.logs[scheduleID]...)
	return copyLog(rec), nil
}

// CompleteRotation transitions an in-progress log entry exactly once.
func (m *MemoryStore) CompleteRotation(_ context.Context, logID, status string, completedAt time.Time, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status != RotationSuccess && status != RotationFailed {
		return kferrors.ValidationError{Field: "status", Message: "must be success or failed"}
	}

	for _, entries := range m.logs {
		for _, entry := range entries {
			if entry.ID != logID {
				continue
			}
			if entry.Status != RotationInProgress {
				return kferrors.ConflictError{Message: "rotation log " + logID + " already completed"}
			}
			entry.Status = status
			entry.CompletedAt = &completedAt
			entry.Error = errMsg
			return nil
		}
	}
	return kferrors.NotFoundError{Kind: "rotation log", ID: logID}
}

// RotationLogs returns log entries newest first.
func (m *MemoryStore) RotationLogs(_ context.Context, scheduleID string, limit int) ([]*RotationLogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.logs[scheduleID]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]*RotationLogRecord, len(entries))
	for i, e := range entries {
		out[i] = copyLog(e)
	}
	return out, nil
}

// Workspace returns a workspace by id.
func (m *MemoryStore) Workspace(_ context.Context, id string) (*WorkspaceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.workspaces[id]
	if !ok {
		return nil, kferrors.NotFoundError{Kind: "workspace", ID: id}
	}
	c := *rec
	return &c, nil
}

// TeamsInWorkspace returns all teams of a workspace.
func (m *MemoryStore) TeamsInWorkspace(_ context.Context, workspaceID string) ([]*TeamRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*TeamRecord
	for _, rec := range m.teams {
		if rec.WorkspaceID == workspaceID {
			c := *rec
			out = append(out, &c)
		}
	}
	return out, nil
}

// Team returns a team by id.
func (m *MemoryStore) Team(_ context.Context, id string) (*TeamRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.teams[id]
	if !ok {
		return nil, kferrors.NotFoundError{Kind: "team", ID: id}
	}
	c := *rec
	return &c, nil
}

// TeamUser returns one membership row.
func (m *MemoryStore) TeamUser(_ context.Context, teamID, userID string) (*TeamUserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.teamUsers[teamUserKey(teamID, userID)]
	if !ok {
		return nil, kferrors.NotFoundError{Kind: "team member", ID: userID}
	}
	c := *rec
	return &c, nil
}

// TeamUsers returns all membership rows of a team.
func (m *MemoryStore) TeamUsers(_ context.Context, teamID string) ([]*TeamUserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*TeamUserRecord
	for _, rec := range m.teamUsers {
		if rec.TeamID == teamID {
			c := *rec
			out = append(out, &c)
		}
	}
	return out, nil
}

// TeamsForProject returns teams linked to a project.
func (m *MemoryStore) TeamsForProject(_ context.Context, projectID string) ([]*TeamRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*TeamRecord
	for _, link := range m.teamProjects {
		if link.ProjectID != projectID {
			continue
		}
		if team, ok := m.teams[link.TeamID]; ok {
			c := *team
			out = append(out, &c)
		}
	}
	return out, nil
}

// Project returns a project by id.
func (m *MemoryStore) Project(_ context.Context, id string) (*ProjectRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.projects[id]
	if !ok {
		return nil, kferrors.NotFoundError{Kind: "project", ID: id}
	}
	c := *rec
	return &c, nil
}

// UpsertTeamUser inserts or replaces a membership row.
func (m *MemoryStore) UpsertTeamUser(_ context.Context, rec *TeamUserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *rec
	m.teamUsers[teamUserKey(rec.TeamID, rec.UserID)] = &c
	return nil
}

// DeleteTeamUser removes a membership row.
func (m *MemoryStore) DeleteTeamUser(_ context.Context, teamID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := teamUserKey(teamID, userID)
	if _, ok := m.teamUsers[key]; !ok {
		return kferrors.NotFoundError{Kind: "team member", ID: userID}
	}
	delete(m.teamUsers, key)
	return nil
}

// Seed helpers used by tests and the CLI's demo wiring.

// AddWorkspace inserts a workspace record.
func (m *MemoryStore) AddWorkspace(rec WorkspaceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces[rec.ID] = &rec
}

// AddTeam inserts a team record.
func (m *MemoryStore) AddTeam(rec TeamRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[rec.ID] = &rec
}

// AddTeamProject links a team to a project.
func (m *MemoryStore) AddTeamProject(rec TeamProjectRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teamProjects = append(m.teamProjects, &rec)
}

// AddProject inserts a project record.
func (m *MemoryStore) AddProject(rec ProjectRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[rec.ID] = &rec
}
