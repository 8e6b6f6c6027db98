// Package rotation implements the rotation scheduler and executor. A
// schedule fires either from the periodic dispatcher or from a manual
// trigger; both paths funnel into the same engine.
package rotation

import (
	"context"
	"time"

	"github.com/keyfold/keyfold/internal/access"
	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/store"
)

// Frequency is how often a schedule fires.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyCustom    Frequency = "custom"
)

// ParseFrequency validates a frequency string from external input.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyCustom:
		return Frequency(s), nil
	}
	return "", kferrors.ValidationError{Field: "frequency", Message: "must be one of daily, weekly, monthly, quarterly, custom"}
}

// Method is how a new secret value is obtained.
type Method string

const (
	MethodManual       Method = "manual"
	MethodAutoGenerate Method = "auto-generate"
	MethodWebhook      Method = "webhook"
)

// ParseMethod validates a method string from external input.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodManual, MethodAutoGenerate, MethodWebhook:
		return Method(s), nil
	}
	return "", kferrors.ValidationError{Field: "method", Message: "must be one of manual, auto-generate, webhook"}
}

// Schedule status values.
const (
	StatusActive = "active"
	StatusPaused = "paused"
)

// Interval returns the rotation period for a frequency. Months and quarters
// use fixed 30 and 90 day periods.
func Interval(freq Frequency, customDays int) (time.Duration, error) {
	const day = 24 * time.Hour
	switch freq {
	case FrequencyDaily:
		return day, nil
	case FrequencyWeekly:
		return 7 * day, nil
	case FrequencyMonthly:
		return 30 * day, nil
	case FrequencyQuarterly:
		return 90 * day, nil
	case FrequencyCustom:
		if customDays <= 0 {
			return 0, kferrors.ValidationError{Field: "customDays", Message: "must be positive for custom frequency"}
		}
		return time.Duration(customDays) * day, nil
	}
	return 0, kferrors.ValidationError{Field: "frequency", Message: "unknown frequency '" + string(freq) + "'"}
}

// ScheduleStorage is the persistence surface schedule management needs.
type ScheduleStorage interface {
	store.SecretStore
	store.ScheduleStore
	store.RotationLogStore
}

// Schedules manages rotation schedule lifecycle: create, pause, resume,
// delete. At most one schedule exists per secret.
type Schedules struct {
	store   ScheduleStorage
	checker *access.Checker
	logger  *logging.Logger
}

// NewSchedules creates the schedule manager.
func NewSchedules(s ScheduleStorage, checker *access.Checker, logger *logging.Logger) *Schedules {
	return &Schedules{store: s, checker: checker, logger: logger}
}

// CreateInput carries the fields for a new schedule.
type CreateInput struct {
	SecretID   string
	Frequency  Frequency
	CustomDays int
	Method     Method
	WebhookURL string
}

// Create attaches a schedule to a secret. The first rotation is due one
// interval from now.
func (s *Schedules) Create(ctx context.Context, in CreateInput, actor string) (*store.ScheduleRecord, error) {
	if in.SecretID == "" {
		return nil, kferrors.ValidationError{Field: "secretId", Message: "is required"}
	}
	if _, err := ParseFrequency(string(in.Frequency)); err != nil {
		return nil, err
	}
	if _, err := ParseMethod(string(in.Method)); err != nil {
		return nil, err
	}
	if in.Method == MethodWebhook && in.WebhookURL == "" {
		return nil, kferrors.ValidationError{Field: "webhookUrl", Message: "is required for webhook method"}
	}
	if in.Method != MethodWebhook && in.WebhookURL != "" {
		return nil, kferrors.ValidationError{Field: "webhookUrl", Message: "only valid for webhook method"}
	}
	interval, err := Interval(in.Frequency, in.CustomDays)
	if err != nil {
		return nil, err
	}

	secret, err := s.store.GetSecret(ctx, in.SecretID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.RequireProjectManage(ctx, actor, secret.ProjectID); err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &store.ScheduleRecord{
		SecretID:     in.SecretID,
		ProjectID:    secret.ProjectID,
		Environment:  secret.Environment,
		Frequency:    string(in.Frequency),
		CustomDays:   in.CustomDays,
		Method:       string(in.Method),
		WebhookURL:   in.WebhookURL,
		Status:       StatusActive,
		NextRotation: now.Add(interval),
		CreatedAt:    now,
	}
	if err := s.store.CreateSchedule(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("created %s rotation schedule for secret %s", in.Frequency, secret.Key)
	return rec, nil
}

// Pause stops scheduled firing. Manual triggers remain permitted.
func (s *Schedules) Pause(ctx context.Context, id, actor string) error {
	return s.setStatus(ctx, id, actor, StatusPaused)
}

// Resume reactivates scheduled firing.
func (s *Schedules) Resume(ctx context.Context, id, actor string) error {
	return s.setStatus(ctx, id, actor, StatusActive)
}

func (s *Schedules) setStatus(ctx context.Context, id, actor, status string) error {
	rec, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checker.RequireProjectManage(ctx, actor, rec.ProjectID); err != nil {
		return err
	}
	if rec.Status == status {
		return nil
	}
	rec.Status = status
	if status == StatusActive && !rec.NextRotation.After(time.Now()) {
		// Resuming a long-paused schedule fires on the next scan.
		rec.NextRotation = time.Now()
	}
	if err := s.store.UpdateSchedule(ctx, rec); err != nil {
		return err
	}
	s.logger.Info("schedule %s is now %s", id, status)
	return nil
}

// Delete removes a schedule. The secret is untouched.
func (s *Schedules) Delete(ctx context.Context, id, actor string) error {
	rec, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checker.RequireProjectManage(ctx, actor, rec.ProjectID); err != nil {
		return err
	}
	return s.store.DeleteSchedule(ctx, id)
}

// List returns a project's schedules.
func (s *Schedules) List(ctx context.Context, projectID, actor string) ([]*store.ScheduleRecord, error) {
	if projectID == "" {
		return nil, kferrors.ValidationError{Field: "projectId", Message: "is required"}
	}
	if err := s.checker.RequireProjectMember(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.store.ListSchedules(ctx, projectID)
}

// Logs returns a schedule's rotation history, newest first.
func (s *Schedules) Logs(ctx context.Context, scheduleID, actor string, limit int) ([]*store.RotationLogRecord, error) {
	rec, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.RequireProjectMember(ctx, actor, rec.ProjectID); err != nil {
		return nil, err
	}
	return s.store.RotationLogs(ctx, scheduleID, limit)
}
