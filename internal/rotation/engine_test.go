package rotation

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keyfold/keyfold/internal/access"
	"github.com/keyfold/keyfold/internal/crypto"
	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/secrets"
	"github.com/keyfold/keyfold/internal/store"
)

type engineFixture struct {
	store     *store.MemoryStore
	secrets   *secrets.Service
	schedules *Schedules
	engine    *Engine
	secret    *secrets.Secret
}

func newFixture(t *testing.T, webhookTimeout time.Duration) *engineFixture {
	t.Helper()

	s := store.NewMemoryStore()
	s.AddWorkspace(store.WorkspaceRecord{ID: "ws-1", CreatedBy: "founder"})
	s.AddTeam(store.TeamRecord{ID: "team-1", WorkspaceID: "ws-1", CreatedBy: "founder"})
	s.AddProject(store.ProjectRecord{ID: "proj-1", UserID: "creator", WorkspaceID: "ws-1"})
	s.AddTeamProject(store.TeamProjectRecord{TeamID: "team-1", ProjectID: "proj-1"})
	err := s.UpsertTeamUser(context.Background(), &store.TeamUserRecord{
		TeamID: "team-1", UserID: "alex", Role: "admin", Status: store.MemberActive,
	})
	if err != nil {
		t.Fatalf("UpsertTeamUser() error = %v", err)
	}

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i * 3)
	}
	keeper, err := crypto.NewKeeper(key)
	if err != nil {
		t.Fatalf("NewKeeper() error = %v", err)
	}

	logger := logging.NewWithWriter(&bytes.Buffer{}, false, true)
	checker := access.NewChecker(access.NewResolver(s), s)
	svc := secrets.NewService(s, keeper, checker, nil, logger)

	sec, err := svc.Create(context.Background(), secrets.CreateInput{
		Key:       "API_KEY",
		Value:     "initial",
		Type:      "api-key",
		ProjectID: "proj-1",
	}, "alex")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	return &engineFixture{
		store:     s,
		secrets:   svc,
		schedules: NewSchedules(s, checker, logger),
		engine:    NewEngine(s, svc, checker, NewWebhookClient(webhookTimeout), nil, logger),
		secret:    sec,
	}
}

func (f *engineFixture) mustSchedule(t *testing.T, in CreateInput) *store.ScheduleRecord {
	t.Helper()
	rec, err := f.schedules.Create(context.Background(), in, "alex")
	if err != nil {
		t.Fatalf("Create() schedule error = %v", err)
	}
	return rec
}

func TestRotateAutoGenerateSuccess(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sched := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodAutoGenerate,
	})
	prevNext := sched.NextRotation

	result, err := f.engine.Rotate(ctx, sched.ID, "", "alex")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if result.Status != store.RotationSuccess {
		t.Fatalf("Rotate() status = %q (err %q), want success", result.Status, result.Err)
	}
	if result.NewVersion != "2" {
		t.Errorf("Rotate() new version = %q, want 2", result.NewVersion)
	}

	// The value changed and is decryptable.
	got, err := f.secrets.Get(ctx, f.secret.ID, "alex")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Value == "initial" || got.Value == secrets.DecryptionFailedMask {
		t.Errorf("value after rotation = %q", got.Value)
	}

	// The schedule advanced.
	after, err := f.store.GetSchedule(ctx, sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if after.LastRotation == nil {
		t.Error("LastRotation not set after success")
	}
	if !after.NextRotation.After(prevNext) {
		t.Errorf("NextRotation = %v not after previous %v", after.NextRotation, prevNext)
	}

	logs, err := f.store.RotationLogs(ctx, sched.ID, 0)
	if err != nil {
		t.Fatalf("RotationLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Status != store.RotationSuccess {
		t.Errorf("rotation logs = %+v, want one success entry", logs)
	}
}

func TestRotateManualWithoutValueFails(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sched := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyWeekly,
		Method:    MethodManual,
	})
	prevNext := sched.NextRotation

	result, err := f.engine.Rotate(ctx, sched.ID, "", "alex")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if result.Status != store.RotationFailed {
		t.Fatalf("Rotate() status = %q, want failed", result.Status)
	}
	if result.Err != "manual rotation requires operator-provided value" {
		t.Errorf("Rotate() error message = %q", result.Err)
	}

	// The secret and schedule are untouched so the next attempt still fires.
	got, err := f.secrets.Get(ctx, f.secret.ID, "alex")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != "1" {
		t.Errorf("version after failed rotation = %q, want 1", got.Version)
	}
	after, err := f.store.GetSchedule(ctx, sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if !after.NextRotation.Equal(prevNext) || after.LastRotation != nil {
		t.Errorf("schedule mutated by failed rotation: %+v", after)
	}

	logs, err := f.store.RotationLogs(ctx, sched.ID, 0)
	if err != nil {
		t.Fatalf("RotationLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Status != store.RotationFailed {
		t.Fatalf("rotation logs = %+v, want one failed entry", logs)
	}
	if logs[0].CompletedAt == nil {
		t.Error("failed log entry missing CompletedAt")
	}
}

func TestRotateManualWithValue(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sched := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyMonthly,
		Method:    MethodManual,
	})

	result, err := f.engine.Rotate(ctx, sched.ID, "operator-supplied", "alex")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if result.Status != store.RotationSuccess {
		t.Fatalf("Rotate() status = %q (err %q), want success", result.Status, result.Err)
	}

	got, err := f.secrets.Get(ctx, f.secret.ID, "alex")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Value != "operator-supplied" {
		t.Errorf("value = %q, want operator-supplied", got.Value)
	}
}

func TestRotateWebhook(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"from-webhook"}`))
	}))
	defer srv.Close()

	sched := f.mustSchedule(t, CreateInput{
		SecretID:   f.secret.ID,
		Frequency:  FrequencyDaily,
		Method:     MethodWebhook,
		WebhookURL: srv.URL,
	})

	result, err := f.engine.Rotate(ctx, sched.ID, "", "alex")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if result.Status != store.RotationSuccess {
		t.Fatalf("Rotate() status = %q (err %q), want success", result.Status, result.Err)
	}

	got, err := f.secrets.Get(ctx, f.secret.ID, "alex")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Value != "from-webhook" {
		t.Errorf("value = %q, want from-webhook", got.Value)
	}
}

func TestRotateWebhookNon2xxFailsLog(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sched := f.mustSchedule(t, CreateInput{
		SecretID:   f.secret.ID,
		Frequency:  FrequencyDaily,
		Method:     MethodWebhook,
		WebhookURL: srv.URL,
	})

	result, err := f.engine.Rotate(ctx, sched.ID, "", "alex")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if result.Status != store.RotationFailed {
		t.Fatalf("Rotate() status = %q, want failed", result.Status)
	}

	logs, err := f.store.RotationLogs(ctx, sched.ID, 0)
	if err != nil {
		t.Fatalf("RotationLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Status != store.RotationFailed {
		t.Errorf("rotation logs = %+v, want one failed entry", logs)
	}
}

func TestRotateConcurrentConflict(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sched := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodAutoGenerate,
	})

	// Simulate an in-flight rotation by claiming the log slot directly.
	if _, err := f.store.StartRotation(ctx, sched.ID, time.Now()); err != nil {
		t.Fatalf("StartRotation() error = %v", err)
	}

	_, err := f.engine.Rotate(ctx, sched.ID, "", "alex")
	if !kferrors.IsConflict(err) {
		t.Errorf("Rotate() during in-flight rotation error = %v, want conflict", err)
	}
}

func TestRotatePausedScheduleManualTrigger(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sched := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodAutoGenerate,
	})
	if err := f.schedules.Pause(ctx, sched.ID, "alex"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	result, err := f.engine.Rotate(ctx, sched.ID, "", "alex")
	if err != nil {
		t.Fatalf("Rotate() on paused schedule error = %v", err)
	}
	if result.Status != store.RotationSuccess {
		t.Errorf("Rotate() status = %q, want success", result.Status)
	}
}

func TestRotateUnknownSchedule(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.engine.Rotate(context.Background(), "missing", "", "alex")
	if !kferrors.IsNotFound(err) {
		t.Errorf("Rotate() error = %v, want not found", err)
	}
}

func TestRotateForbiddenActor(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sched := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodAutoGenerate,
	})

	_, err := f.engine.Rotate(ctx, sched.ID, "", "stranger")
	if !kferrors.IsForbidden(err) {
		t.Errorf("Rotate() by stranger error = %v, want forbidden", err)
	}

	// No log entry may exist for the rejected attempt.
	logs, err := f.store.RotationLogs(ctx, sched.ID, 0)
	if err != nil {
		t.Fatalf("RotationLogs() error = %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("rotation logs after forbidden attempt = %+v, want none", logs)
	}
}

func TestDispatcherScan(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sched := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodAutoGenerate,
	})

	// Make the schedule due now.
	rec, err := f.store.GetSchedule(ctx, sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	rec.NextRotation = time.Now().Add(-time.Minute)
	if err := f.store.UpdateSchedule(ctx, rec); err != nil {
		t.Fatalf("UpdateSchedule() error = %v", err)
	}

	logger := logging.NewWithWriter(&bytes.Buffer{}, false, true)
	d := NewDispatcher(f.engine, f.store, DefaultScanSpec, 2, logger)
	d.Scan(ctx)
	d.wg.Wait()

	logs, err := f.store.RotationLogs(ctx, sched.ID, 0)
	if err != nil {
		t.Fatalf("RotationLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Status != store.RotationSuccess {
		t.Fatalf("rotation logs after scan = %+v, want one success entry", logs)
	}

	got, err := f.secrets.Get(ctx, f.secret.ID, "alex")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != "2" {
		t.Errorf("version after scheduled rotation = %q, want 2", got.Version)
	}
	if got.UpdatedBy != SystemActor {
		t.Errorf("UpdatedBy = %q, want %q", got.UpdatedBy, SystemActor)
	}
}
