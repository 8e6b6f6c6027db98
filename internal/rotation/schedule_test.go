package rotation

import (
	"context"
	"testing"
	"time"

	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/store"
)

func TestInterval(t *testing.T) {
	const day = 24 * time.Hour
	tests := []struct {
		name       string
		freq       Frequency
		customDays int
		want       time.Duration
		wantErr    bool
	}{
		{"daily", FrequencyDaily, 0, day, false},
		{"weekly", FrequencyWeekly, 0, 7 * day, false},
		{"monthly", FrequencyMonthly, 0, 30 * day, false},
		{"quarterly", FrequencyQuarterly, 0, 90 * day, false},
		{"custom 14 days", FrequencyCustom, 14, 14 * day, false},
		{"custom without days", FrequencyCustom, 0, 0, true},
		{"custom negative days", FrequencyCustom, -3, 0, true},
		{"unknown", Frequency("hourly"), 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interval(tt.freq, tt.customDays)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Interval() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Interval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleCreateValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing secret", CreateInput{Frequency: FrequencyDaily, Method: MethodManual}},
		{"bad frequency", CreateInput{SecretID: f.secret.ID, Frequency: "hourly", Method: MethodManual}},
		{"bad method", CreateInput{SecretID: f.secret.ID, Frequency: FrequencyDaily, Method: "carrier-pigeon"}},
		{"webhook without url", CreateInput{SecretID: f.secret.ID, Frequency: FrequencyDaily, Method: MethodWebhook}},
		{"url without webhook method", CreateInput{SecretID: f.secret.ID, Frequency: FrequencyDaily, Method: MethodManual, WebhookURL: "https://x"}},
		{"custom without days", CreateInput{SecretID: f.secret.ID, Frequency: FrequencyCustom, Method: MethodManual}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.schedules.Create(ctx, tt.in, "alex")
			if !kferrors.IsValidation(err) {
				t.Errorf("Create() error = %v, want validation", err)
			}
		})
	}
}

func TestScheduleCreateSeedsNextRotation(t *testing.T) {
	f := newFixture(t, 0)
	before := time.Now()

	rec := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyWeekly,
		Method:    MethodManual,
	})

	wantMin := before.Add(7 * 24 * time.Hour)
	if rec.NextRotation.Before(wantMin) {
		t.Errorf("NextRotation = %v, want at least %v", rec.NextRotation, wantMin)
	}
	if rec.Status != StatusActive {
		t.Errorf("Status = %q, want active", rec.Status)
	}
}

func TestScheduleCreateDuplicate(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodManual,
	})
	_, err := f.schedules.Create(ctx, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyWeekly,
		Method:    MethodManual,
	}, "alex")
	if !kferrors.IsConflict(err) {
		t.Errorf("Create() second schedule error = %v, want conflict", err)
	}
}

func TestScheduleCreateUnknownSecret(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.schedules.Create(context.Background(), CreateInput{
		SecretID:  "missing",
		Frequency: FrequencyDaily,
		Method:    MethodManual,
	}, "alex")
	if !kferrors.IsNotFound(err) {
		t.Errorf("Create() error = %v, want not found", err)
	}
}

func TestSchedulePauseResume(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	rec := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodManual,
	})

	if err := f.schedules.Pause(ctx, rec.ID, "alex"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	got, err := f.store.GetSchedule(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if got.Status != StatusPaused {
		t.Errorf("status after pause = %q, want paused", got.Status)
	}

	// A paused schedule never shows up in the due scan.
	got.NextRotation = time.Now().Add(-time.Hour)
	if err := f.store.UpdateSchedule(ctx, got); err != nil {
		t.Fatalf("UpdateSchedule() error = %v", err)
	}
	due, err := f.store.DueSchedules(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueSchedules() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("paused schedule appeared in due scan: %+v", due)
	}

	if err := f.schedules.Resume(ctx, rec.ID, "alex"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	due, err = f.store.DueSchedules(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueSchedules() error = %v", err)
	}
	if len(due) != 1 {
		t.Errorf("resumed overdue schedule missing from due scan")
	}
}

func TestScheduleManageGate(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	err := f.store.UpsertTeamUser(ctx, &store.TeamUserRecord{
		TeamID: "team-1", UserID: "dev", Role: "developer", Status: store.MemberActive,
	})
	if err != nil {
		t.Fatalf("UpsertTeamUser() error = %v", err)
	}

	// Schedule management requires admin; developers may only list.
	_, err = f.schedules.Create(ctx, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodManual,
	}, "dev")
	if !kferrors.IsForbidden(err) {
		t.Errorf("Create() by developer error = %v, want forbidden", err)
	}

	rec := f.mustSchedule(t, CreateInput{
		SecretID:  f.secret.ID,
		Frequency: FrequencyDaily,
		Method:    MethodManual,
	})
	if err := f.schedules.Pause(ctx, rec.ID, "dev"); !kferrors.IsForbidden(err) {
		t.Errorf("Pause() by developer error = %v, want forbidden", err)
	}
	if _, err := f.schedules.List(ctx, "proj-1", "dev"); err != nil {
		t.Errorf("List() by developer error = %v", err)
	}
}
