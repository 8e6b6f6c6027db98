package secrets

import (
	"bytes"
	"context"
	"testing"

	"github.com/keyfold/keyfold/internal/access"
	"github.com/keyfold/keyfold/internal/crypto"
	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/store"
)

func testService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()

	s := store.NewMemoryStore()
	s.AddWorkspace(store.WorkspaceRecord{ID: "ws-1", CreatedBy: "founder"})
	s.AddTeam(store.TeamRecord{ID: "team-1", WorkspaceID: "ws-1", CreatedBy: "founder"})
	s.AddProject(store.ProjectRecord{ID: "proj-1", UserID: "creator", WorkspaceID: "ws-1"})
	s.AddTeamProject(store.TeamProjectRecord{TeamID: "team-1", ProjectID: "proj-1"})
	seedMember(t, s, "dev", "developer")
	seedMember(t, s, "watcher", "viewer")

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	keeper, err := crypto.NewKeeper(key)
	if err != nil {
		t.Fatalf("NewKeeper() error = %v", err)
	}

	checker := access.NewChecker(access.NewResolver(s), s)
	logger := logging.NewWithWriter(&bytes.Buffer{}, false, true)
	return NewService(s, keeper, checker, nil, logger), s
}

func seedMember(t *testing.T, s *store.MemoryStore, userID, role string) {
	t.Helper()
	err := s.UpsertTeamUser(context.Background(), &store.TeamUserRecord{
		TeamID: "team-1",
		UserID: userID,
		Role:   role,
		Status: store.MemberActive,
	})
	if err != nil {
		t.Fatalf("UpsertTeamUser() error = %v", err)
	}
}

func mustCreate(t *testing.T, svc *Service, key, value string) *Secret {
	t.Helper()
	sec, err := svc.Create(context.Background(), CreateInput{
		Key:       key,
		Value:     value,
		ProjectID: "proj-1",
	}, "dev")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return sec
}

func TestCreateReturnsRawValue(t *testing.T) {
	svc, _ := testService(t)
	sec := mustCreate(t, svc, "DB_URL", "postgres://db")

	if sec.Value != "postgres://db" {
		t.Errorf("Create() value = %q, want raw value", sec.Value)
	}
	if sec.Version != "1" {
		t.Errorf("Create() version = %q, want 1", sec.Version)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := testService(t)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing key", CreateInput{Value: "v", ProjectID: "proj-1"}},
		{"missing value", CreateInput{Key: "K", ProjectID: "proj-1"}},
		{"missing project", CreateInput{Key: "K", Value: "v"}},
		{"unknown environment", CreateInput{Key: "K", Value: "v", ProjectID: "proj-1", Environment: "qa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in, "dev")
			if !kferrors.IsValidation(err) {
				t.Errorf("Create() error = %v, want validation", err)
			}
		})
	}
}

func TestParseEnvironment(t *testing.T) {
	for _, valid := range []string{"", "development", "staging", "production"} {
		if _, err := ParseEnvironment(valid); err != nil {
			t.Errorf("ParseEnvironment(%q) error = %v", valid, err)
		}
	}
	if _, err := ParseEnvironment("qa"); !kferrors.IsValidation(err) {
		t.Errorf("ParseEnvironment(qa) error = %v, want validation", err)
	}
}

func TestUpdateRejectsUnknownEnvironment(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	sec := mustCreate(t, svc, "DB_URL", "v")

	env := "qa"
	_, err := svc.Update(ctx, sec.ID, UpdateInput{Environment: &env}, "dev")
	if !kferrors.IsValidation(err) {
		t.Fatalf("Update() error = %v, want validation", err)
	}

	// A rejected write must not bump the version.
	got, err := svc.Get(ctx, sec.ID, "dev")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != "1" {
		t.Errorf("version after rejected update = %q, want 1", got.Version)
	}
}

func TestCreateForbiddenForViewer(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.Create(context.Background(), CreateInput{
		Key: "K", Value: "v", ProjectID: "proj-1",
	}, "watcher")
	if !kferrors.IsForbidden(err) {
		t.Errorf("Create() by viewer error = %v, want forbidden", err)
	}
}

func TestVersionMonotonicity(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	sec := mustCreate(t, svc, "DB_URL", "v1")

	wantVersions := []string{"2", "3", "4"}
	for i, want := range wantVersions {
		value := "value-" + want
		got, err := svc.Update(ctx, sec.ID, UpdateInput{Value: &value}, "dev")
		if err != nil {
			t.Fatalf("Update() #%d error = %v", i, err)
		}
		if got.Version != want {
			t.Errorf("Update() #%d version = %q, want %q", i, got.Version, want)
		}
	}

	history, err := svc.History(ctx, sec.ID, "dev")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	// One entry per write, newest first.
	if len(history) != 4 {
		t.Fatalf("History() returned %d entries, want 4", len(history))
	}
	for i, want := range []string{"4", "3", "2", "1"} {
		if history[i].Version != want {
			t.Errorf("history[%d].Version = %q, want %q", i, history[i].Version, want)
		}
	}
}

func TestUpdateRecordsChangeReason(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	sec := mustCreate(t, svc, "DB_URL", "pg://a")

	value := "pg://b"
	got, err := svc.Update(ctx, sec.ID, UpdateInput{Value: &value, ChangeReason: "rotate creds"}, "dev")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Version != "2" {
		t.Errorf("Update() version = %q, want 2", got.Version)
	}

	history, err := svc.History(ctx, sec.ID, "dev")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() returned %d entries, want 2", len(history))
	}
	if history[0].Value != "pg://b" || history[1].Value != "pg://a" {
		t.Errorf("history values = %q, %q, want pg://b, pg://a", history[0].Value, history[1].Value)
	}
	if history[0].ChangeReason != "rotate creds" {
		t.Errorf("history[0].ChangeReason = %q, want %q", history[0].ChangeReason, "rotate creds")
	}
	if history[1].ChangeReason != "" {
		t.Errorf("history[1].ChangeReason = %q, want empty", history[1].ChangeReason)
	}
}

func TestUpdateWithoutValueKeepsCiphertext(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	sec := mustCreate(t, svc, "DB_URL", "original")

	desc := "new description"
	got, err := svc.Update(ctx, sec.ID, UpdateInput{Description: &desc}, "dev")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Value != "original" {
		t.Errorf("value after metadata update = %q, want original", got.Value)
	}
	if got.Description != desc {
		t.Errorf("description after update = %q, want %q", got.Description, desc)
	}

	history, err := svc.History(ctx, sec.ID, "dev")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if history[0].Value != UnchangedValue {
		t.Errorf("history value = %q, want %q", history[0].Value, UnchangedValue)
	}
	// The [unchanged] entry carries the description the secret had before
	// this write; the record itself carries the new one.
	if history[0].Description != "" {
		t.Errorf("history description = %q, want prior description (empty)", history[0].Description)
	}
}

func TestUpdateUnchangedKeepsOldDescription(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	sec, err := svc.Create(ctx, CreateInput{
		Key: "DB_URL", Value: "v", Description: "prod db", ProjectID: "proj-1",
	}, "dev")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	env := "staging"
	if _, err := svc.Update(ctx, sec.ID, UpdateInput{Environment: &env}, "dev"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	history, err := svc.History(ctx, sec.ID, "dev")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if history[0].Description != "prod db" {
		t.Errorf("history description = %q, want old description retained", history[0].Description)
	}
}

func TestListMasksUndecryptableRecord(t *testing.T) {
	svc, ms := testService(t)
	ctx := context.Background()

	mustCreate(t, svc, "GOOD", "good-value")
	bad := mustCreate(t, svc, "BAD", "bad-value")

	// Corrupt one envelope directly in storage.
	rec, err := ms.GetSecret(ctx, bad.ID)
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	rec.Envelope = "bm90IGEgdmFsaWQgZW52ZWxvcGUgYXQgYWxs"
	if err := ms.UpdateSecret(ctx, rec); err != nil {
		t.Fatalf("UpdateSecret() error = %v", err)
	}

	got, err := svc.List(ctx, Filter{ProjectID: "proj-1"}, "dev")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d secrets, want 2", len(got))
	}

	values := map[string]string{}
	for _, sec := range got {
		values[sec.Key] = sec.Value
	}
	if values["GOOD"] != "good-value" {
		t.Errorf("good secret value = %q, want good-value", values["GOOD"])
	}
	if values["BAD"] != DecryptionFailedMask {
		t.Errorf("bad secret value = %q, want mask", values["BAD"])
	}
}

func TestListRequiresProject(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.List(context.Background(), Filter{}, "dev")
	if !kferrors.IsValidation(err) {
		t.Errorf("List() without project error = %v, want validation", err)
	}
}

func TestRotateSetsChangeReason(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	sec := mustCreate(t, svc, "API_KEY", "old")

	got, err := svc.Rotate(ctx, sec.ID, "fresh", "scheduler")
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if got.Version != "2" {
		t.Errorf("Rotate() version = %q, want 2", got.Version)
	}
	if got.Value != "fresh" {
		t.Errorf("Rotate() value = %q, want fresh", got.Value)
	}

	history, err := svc.History(ctx, sec.ID, "dev")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if history[0].ChangeReason != "rotation" {
		t.Errorf("history change reason = %q, want rotation", history[0].ChangeReason)
	}
}

func TestDeleteRemovesHistory(t *testing.T) {
	svc, ms := testService(t)
	ctx := context.Background()
	sec := mustCreate(t, svc, "DB_URL", "v")

	if err := svc.Delete(ctx, sec.ID, "dev"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, sec.ID, "dev"); !kferrors.IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want not found", err)
	}
	entries, err := ms.HistoryForSecret(ctx, sec.ID)
	if err != nil {
		t.Fatalf("HistoryForSecret() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("history retained %d entries after delete, want 0", len(entries))
	}
}

func TestUpdateUnknownSecret(t *testing.T) {
	svc, _ := testService(t)
	v := "x"
	_, err := svc.Update(context.Background(), "missing", UpdateInput{Value: &v}, "dev")
	if !kferrors.IsNotFound(err) {
		t.Errorf("Update() error = %v, want not found", err)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	sec := mustCreate(t, svc, "DB_URL", "v1")

	const writers = 8
	done := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			v := "concurrent"
			_, err := svc.Update(ctx, sec.ID, UpdateInput{Value: &v}, "dev")
			done <- err
		}()
	}
	for i := 0; i < writers; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	got, err := svc.Get(ctx, sec.ID, "dev")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// 1 create + 8 updates.
	if got.Version != "9" {
		t.Errorf("version after concurrent updates = %q, want 9", got.Version)
	}
	history, err := svc.History(ctx, sec.ID, "dev")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 9 {
		t.Errorf("history has %d entries, want 9", len(history))
	}
}
