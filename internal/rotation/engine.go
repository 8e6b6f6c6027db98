package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keyfold/keyfold/internal/access"
	"github.com/keyfold/keyfold/internal/events"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/secrets"
	"github.com/keyfold/keyfold/internal/store"
)

// SystemActor identifies timer-driven rotations in history and audit
// entries. It bypasses the project gates that apply to human actors.
const SystemActor = "scheduler"

// Result reports the outcome of one rotation attempt. A failed rotation is
// recovered into the log, so Rotate returns a Result with Err set rather
// than an error.
type Result struct {
	ScheduleID string
	SecretKey  string
	Status     string
	NewVersion string
	Duration   time.Duration
	Err        string
}

// Engine executes rotations. At most one rotation runs per schedule at any
// time; a concurrent attempt is rejected with Conflict.
type Engine struct {
	store   ScheduleStorage
	secrets *secrets.Service
	checker *access.Checker
	webhook *WebhookClient
	sink    events.Publisher
	logger  *logging.Logger
}

// NewEngine creates the rotation engine.
func NewEngine(s ScheduleStorage, svc *secrets.Service, checker *access.Checker, webhook *WebhookClient, sink events.Publisher, logger *logging.Logger) *Engine {
	if sink == nil {
		sink = events.Discard{}
	}
	if webhook == nil {
		webhook = NewWebhookClient(0)
	}
	return &Engine{
		store:   s,
		secrets: svc,
		checker: checker,
		webhook: webhook,
		sink:    sink,
		logger:  logger,
	}
}

// Rotate runs one rotation attempt for a schedule. manualValue supplies the
// new value for manual-method schedules and is ignored otherwise. Manual
// triggers are permitted regardless of the schedule's active/paused state.
//
// Authorization, validation, and concurrency conflicts abort with an error
// and no state change. Failures past that point are recovered into a failed
// RotationLog and reported through the Result.
func (e *Engine) Rotate(ctx context.Context, scheduleID, manualValue, actor string) (*Result, error) {
	schedule, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	secret, err := e.store.GetSecret(ctx, schedule.SecretID)
	if err != nil {
		return nil, err
	}
	if actor != SystemActor {
		if err := e.checker.RequireProjectEdit(ctx, actor, schedule.ProjectID); err != nil {
			return nil, err
		}
	}

	startedAt := time.Now()
	logEntry, err := e.store.StartRotation(ctx, scheduleID, startedAt)
	if err != nil {
		return nil, err
	}

	newValue, rotateErr := e.obtainValue(ctx, schedule, secret, manualValue)

	var newVersion string
	if rotateErr == nil {
		rotated, err := e.secrets.Rotate(ctx, secret.ID, newValue, actor)
		if err != nil {
			rotateErr = err
		} else {
			newVersion = rotated.Version
			rotateErr = e.advanceSchedule(ctx, schedule, startedAt)
		}
	}

	completedAt := time.Now()
	duration := completedAt.Sub(startedAt)
	result := &Result{
		ScheduleID: scheduleID,
		SecretKey:  secret.Key,
		Duration:   duration,
		NewVersion: newVersion,
	}

	if rotateErr != nil {
		result.Status = store.RotationFailed
		result.Err = rotateErr.Error()
		if err := e.store.CompleteRotation(ctx, logEntry.ID, store.RotationFailed, completedAt, rotateErr.Error()); err != nil {
			e.logger.Error("failed to record rotation failure for schedule %s: %v", scheduleID, err)
		}
		e.logger.Warn("rotation failed for secret %s: %v", secret.Key, rotateErr)
		e.emit(events.TypeRotationFailed, schedule, secret.Key, actor, duration, rotateErr)
		observeRotation(store.RotationFailed, duration)
		return result, nil
	}

	result.Status = store.RotationSuccess
	if err := e.store.CompleteRotation(ctx, logEntry.ID, store.RotationSuccess, completedAt, ""); err != nil {
		e.logger.Error("failed to record rotation success for schedule %s: %v", scheduleID, err)
	}
	e.logger.Info("rotated secret %s to version %s", secret.Key, newVersion)
	e.emit(events.TypeRotationSuccess, schedule, secret.Key, actor, duration, nil)
	observeRotation(store.RotationSuccess, duration)
	return result, nil
}

// obtainValue produces the new secret value per the schedule's method.
func (e *Engine) obtainValue(ctx context.Context, schedule *store.ScheduleRecord, secret *store.SecretRecord, manualValue string) (string, error) {
	switch Method(schedule.Method) {
	case MethodManual:
		if manualValue == "" {
			return "", errors.New("manual rotation requires operator-provided value")
		}
		return manualValue, nil
	case MethodAutoGenerate:
		return Generate(secret.Type)
	case MethodWebhook:
		return e.webhook.Fetch(ctx, schedule.WebhookURL, secret.Key, schedule.Environment, schedule.ProjectID)
	}
	return "", fmt.Errorf("unknown rotation method '%s'", schedule.Method)
}

// advanceSchedule records the completed rotation and computes the next due
// time. On failure paths the schedule is left untouched so the next scan
// retries.
func (e *Engine) advanceSchedule(ctx context.Context, schedule *store.ScheduleRecord, now time.Time) error {
	interval, err := Interval(Frequency(schedule.Frequency), schedule.CustomDays)
	if err != nil {
		return err
	}
	last := now
	schedule.LastRotation = &last
	schedule.NextRotation = now.Add(interval)
	return e.store.UpdateSchedule(ctx, schedule)
}

func (e *Engine) emit(eventType events.Type, schedule *store.ScheduleRecord, secretKey, actor string, duration time.Duration, rotateErr error) {
	e.sink.Publish(events.Event{
		Type:        eventType,
		SecretKey:   secretKey,
		SecretID:    schedule.SecretID,
		ScheduleID:  schedule.ID,
		ProjectID:   schedule.ProjectID,
		Environment: schedule.Environment,
		Actor:       actor,
		Error:       rotateErr,
		Duration:    duration,
		Timestamp:   time.Now(),
	})
}
