package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	kferrors "github.com/keyfold/keyfold/internal/errors"
)

// SQLStore implements Store on top of PostgreSQL.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore connects to PostgreSQL and verifies the connection.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctxWithTimeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an existing connection pool. Used by tests.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS secrets (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL,
			envelope TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			environment TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL,
			permission TEXT[] NOT NULL DEFAULT '{}',
			expiry_date TIMESTAMPTZ,
			rotation_policy TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL,
			branch_id TEXT,
			updated_by TEXT NOT NULL DEFAULT '',
			last_updated TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS secrets_key_scope
			ON secrets (key, project_id, COALESCE(branch_id, ''))`,
		`CREATE TABLE IF NOT EXISTS secret_history (
			id TEXT PRIMARY KEY,
			secret_id TEXT NOT NULL,
			version TEXT NOT NULL,
			value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL,
			change_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS rotation_schedules (
			id TEXT PRIMARY KEY,
			secret_id TEXT NOT NULL UNIQUE,
			project_id TEXT NOT NULL,
			environment TEXT NOT NULL DEFAULT '',
			frequency TEXT NOT NULL,
			custom_days INT NOT NULL DEFAULT 0,
			method TEXT NOT NULL,
			webhook_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			next_rotation TIMESTAMPTZ NOT NULL,
			last_rotation TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rotation_logs (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rotation_logs_single_inflight
			ON rotation_logs (schedule_id) WHERE status = 'in-progress'`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			id TEXT PRIMARY KEY,
			created_by TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			created_by TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS team_users (
			team_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			PRIMARY KEY (team_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS team_projects (
			team_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			PRIMARY KEY (team_id, project_id)
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			is_blocked BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// uniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const secretColumns = `id, key, envelope, description, environment, type, version,
	permission, expiry_date, rotation_policy, project_id, branch_id, updated_by, last_updated`

func scanSecret(row interface{ Scan(...any) error }) (*SecretRecord, error) {
	var rec SecretRecord
	var perm pq.StringArray
	var expiry sql.NullTime
	var branch sql.NullString
	err := row.Scan(&rec.ID, &rec.Key, &rec.Envelope, &rec.Description, &rec.Environment,
		&rec.Type, &rec.Version, &perm, &expiry, &rec.RotationPolicy, &rec.ProjectID,
		&branch, &rec.UpdatedBy, &rec.LastUpdated)
	if err != nil {
		return nil, err
	}
	rec.Permission = []string(perm)
	if expiry.Valid {
		t := expiry.Time
		rec.ExpiryDate = &t
	}
	if branch.Valid {
		b := branch.String
		rec.BranchID = &b
	}
	return &rec, nil
}

func (s *SQLStore) CreateSecret(ctx context.Context, rec *SecretRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO secrets (`+secretColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.ID, rec.Key, rec.Envelope, rec.Description, rec.Environment, rec.Type,
		rec.Version, pq.StringArray(rec.Permission), rec.ExpiryDate, rec.RotationPolicy,
		rec.ProjectID, rec.BranchID, rec.UpdatedBy, rec.LastUpdated)
	if uniqueViolation(err) {
		return kferrors.ConflictError{Message: "secret key '" + rec.Key + "' already exists in this branch"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert secret: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSecret(ctx context.Context, id string) (*SecretRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+secretColumns+` FROM secrets WHERE id = $1`, id)
	rec, err := scanSecret(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kferrors.NotFoundError{Kind: "secret", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load secret: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) FindSecrets(ctx context.Context, filter SecretFilter) ([]*SecretRecord, error) {
	query := `SELECT ` + secretColumns + ` FROM secrets WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ID != "" {
		query += ` AND id = ` + arg(filter.ID)
	}
	if filter.Key != "" {
		query += ` AND key = ` + arg(filter.Key)
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ` + arg(filter.ProjectID)
	}
	if filter.BranchID != "" {
		query += ` AND branch_id = ` + arg(filter.BranchID)
	}
	if filter.BranchGlobal {
		query += ` AND branch_id IS NULL`
	}
	if filter.Environment != "" {
		query += ` AND environment = ` + arg(filter.Environment)
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query secrets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*SecretRecord
	for rows.Next() {
		rec, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateSecret(ctx context.Context, rec *SecretRecord) error {
	res, err := s.db.ExecContext(ctx, `UPDATE secrets SET
		key = $2, envelope = $3, description = $4, environment = $5, type = $6,
		version = $7, permission = $8, expiry_date = $9, rotation_policy = $10,
		project_id = $11, branch_id = $12, updated_by = $13, last_updated = $14
		WHERE id = $1`,
		rec.ID, rec.Key, rec.Envelope, rec.Description, rec.Environment, rec.Type,
		rec.Version, pq.StringArray(rec.Permission), rec.ExpiryDate, rec.RotationPolicy,
		rec.ProjectID, rec.BranchID, rec.UpdatedBy, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}
	return requireRow(res, "secret", rec.ID)
}

func (s *SQLStore) DeleteSecret(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return requireRow(res, "secret", id)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read result: %w", err)
	}
	if n == 0 {
		return kferrors.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func (s *SQLStore) AppendHistory(ctx context.Context, rec *HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO secret_history
		(id, secret_id, version, value, description, updated_by, updated_at, change_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.SecretID, rec.Version, rec.Value, rec.Description,
		rec.UpdatedBy, rec.UpdatedAt, rec.ChangeReason)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

func (s *SQLStore) HistoryForSecret(ctx context.Context, secretID string) ([]*HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, secret_id, version, value, description,
		updated_by, updated_at, change_reason
		FROM secret_history WHERE secret_id = $1 ORDER BY updated_at DESC`, secretID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		err := rows.Scan(&rec.ID, &rec.SecretID, &rec.Version, &rec.Value,
			&rec.Description, &rec.UpdatedBy, &rec.UpdatedAt, &rec.ChangeReason)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteHistoryForSecret(ctx context.Context, secretID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secret_history WHERE secret_id = $1`, secretID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

const scheduleColumns = `id, secret_id, project_id, environment, frequency, custom_days,
	method, webhook_url, status, next_rotation, last_rotation, created_at`

func scanSchedule(row interface{ Scan(...any) error }) (*ScheduleRecord, error) {
	var rec ScheduleRecord
	var last sql.NullTime
	err := row.Scan(&rec.ID, &rec.SecretID, &rec.ProjectID, &rec.Environment,
		&rec.Frequency, &rec.CustomDays, &rec.Method, &rec.WebhookURL, &rec.Status,
		&rec.NextRotation, &last, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		rec.LastRotation = &t
	}
	return &rec, nil
}

func (s *SQLStore) CreateSchedule(ctx context.Context, rec *ScheduleRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO rotation_schedules (`+scheduleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.SecretID, rec.ProjectID, rec.Environment, rec.Frequency,
		rec.CustomDays, rec.Method, rec.WebhookURL, rec.Status, rec.NextRotation,
		rec.LastRotation, rec.CreatedAt)
	if uniqueViolation(err) {
		return kferrors.ConflictError{Message: "secret already has a rotation schedule"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSchedule(ctx context.Context, id string) (*ScheduleRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM rotation_schedules WHERE id = $1`, id)
	rec, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kferrors.NotFoundError{Kind: "schedule", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) ScheduleForSecret(ctx context.Context, secretID string) (*ScheduleRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM rotation_schedules WHERE secret_id = $1`, secretID)
	rec, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kferrors.NotFoundError{Kind: "schedule", ID: "secret " + secretID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) ListSchedules(ctx context.Context, projectID string) ([]*ScheduleRecord, error) {
	query := `SELECT ` + scheduleColumns + ` FROM rotation_schedules`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`
	return s.querySchedules(ctx, query, args...)
}

func (s *SQLStore) DueSchedules(ctx context.Context, now time.Time) ([]*ScheduleRecord, error) {
	return s.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM rotation_schedules
		WHERE status = 'active' AND next_rotation <= $1 ORDER BY next_rotation`, now)
}

func (s *SQLStore) querySchedules(ctx context.Context, query string, args ...any) ([]*ScheduleRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ScheduleRecord
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateSchedule(ctx context.Context, rec *ScheduleRecord) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rotation_schedules SET
		frequency = $2, custom_days = $3, method = $4, webhook_url = $5, status = $6,
		next_rotation = $7, last_rotation = $8
		WHERE id = $1`,
		rec.ID, rec.Frequency, rec.CustomDays, rec.Method, rec.WebhookURL,
		rec.Status, rec.NextRotation, rec.LastRotation)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return requireRow(res, "schedule", rec.ID)
}

func (s *SQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rotation_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return requireRow(res, "schedule", id)
}

// StartRotation inserts an in-progress log entry guarded by the partial
// unique index, so two concurrent attempts cannot both succeed.
func (s *SQLStore) StartRotation(ctx context.Context, scheduleID string, startedAt time.Time) (*RotationLogRecord, error) {
	rec := &RotationLogRecord{
		ID:         uuid.NewString(),
		ScheduleID: scheduleID,
		Status:     RotationInProgress,
		StartedAt:  startedAt,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO rotation_logs (id, schedule_id, status, started_at)
		VALUES ($1,$2,$3,$4)`, rec.ID, rec.ScheduleID, rec.Status, rec.StartedAt)
	if uniqueViolation(err) {
		return nil, kferrors.ConflictError{Message: "rotation already in progress for schedule " + scheduleID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start rotation log: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) CompleteRotation(ctx context.Context, logID, status string, completedAt time.Time, errMsg string) error {
	if status != RotationSuccess && status != RotationFailed {
		return kferrors.ValidationError{Field: "status", Message: "must be success or failed"}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE rotation_logs
		SET status = $2, completed_at = $3, error = $4
		WHERE id = $1 AND status = $5`,
		logID, status, completedAt, errMsg, RotationInProgress)
	if err != nil {
		return fmt.Errorf("failed to complete rotation log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read result: %w", err)
	}
	if n == 0 {
		return kferrors.ConflictError{Message: "rotation log " + logID + " already completed"}
	}
	return nil
}

func (s *SQLStore) RotationLogs(ctx context.Context, scheduleID string, limit int) ([]*RotationLogRecord, error) {
	query := `SELECT id, schedule_id, status, started_at, completed_at, error
		FROM rotation_logs WHERE schedule_id = $1 ORDER BY started_at DESC`
	args := []any{scheduleID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rotation logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*RotationLogRecord
	for rows.Next() {
		var rec RotationLogRecord
		var completed sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.ScheduleID, &rec.Status, &rec.StartedAt, &completed, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan rotation log: %w", err)
		}
		if completed.Valid {
			t := completed.Time
			rec.CompletedAt = &t
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) Workspace(ctx context.Context, id string) (*WorkspaceRecord, error) {
	var rec WorkspaceRecord
	err := s.db.QueryRowContext(ctx, `SELECT id, created_by FROM workspaces WHERE id = $1`, id).
		Scan(&rec.ID, &rec.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kferrors.NotFoundError{Kind: "workspace", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) Team(ctx context.Context, id string) (*TeamRecord, error) {
	var rec TeamRecord
	err := s.db.QueryRowContext(ctx, `SELECT id, workspace_id, created_by FROM teams WHERE id = $1`, id).
		Scan(&rec.ID, &rec.WorkspaceID, &rec.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kferrors.NotFoundError{Kind: "team", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load team: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) TeamsInWorkspace(ctx context.Context, workspaceID string) ([]*TeamRecord, error) {
	return s.queryTeams(ctx, `SELECT id, workspace_id, created_by FROM teams WHERE workspace_id = $1`, workspaceID)
}

func (s *SQLStore) TeamsForProject(ctx context.Context, projectID string) ([]*TeamRecord, error) {
	return s.queryTeams(ctx, `SELECT t.id, t.workspace_id, t.created_by FROM teams t
		JOIN team_projects tp ON tp.team_id = t.id WHERE tp.project_id = $1`, projectID)
}

func (s *SQLStore) queryTeams(ctx context.Context, query string, args ...any) ([]*TeamRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*TeamRecord
	for rows.Next() {
		var rec TeamRecord
		if err := rows.Scan(&rec.ID, &rec.WorkspaceID, &rec.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) TeamUser(ctx context.Context, teamID, userID string) (*TeamUserRecord, error) {
	var rec TeamUserRecord
	err := s.db.QueryRowContext(ctx, `SELECT team_id, user_id, role, status
		FROM team_users WHERE team_id = $1 AND user_id = $2`, teamID, userID).
		Scan(&rec.TeamID, &rec.UserID, &rec.Role, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kferrors.NotFoundError{Kind: "team member", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load team member: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) TeamUsers(ctx context.Context, teamID string) ([]*TeamUserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT team_id, user_id, role, status
		FROM team_users WHERE team_id = $1`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query team members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*TeamUserRecord
	for rows.Next() {
		var rec TeamUserRecord
		if err := rows.Scan(&rec.TeamID, &rec.UserID, &rec.Role, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) Project(ctx context.Context, id string) (*ProjectRecord, error) {
	var rec ProjectRecord
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, workspace_id, is_blocked
		FROM projects WHERE id = $1`, id).
		Scan(&rec.ID, &rec.UserID, &rec.WorkspaceID, &rec.IsBlocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kferrors.NotFoundError{Kind: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) UpsertTeamUser(ctx context.Context, rec *TeamUserRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO team_users (team_id, user_id, role, status)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = $3, status = $4`,
		rec.TeamID, rec.UserID, rec.Role, rec.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert team member: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteTeamUser(ctx context.Context, teamID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM team_users WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete team member: %w", err)
	}
	return requireRow(res, "team member", userID)
}
