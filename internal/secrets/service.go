package secrets

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/keyfold/keyfold/internal/access"
	"github.com/keyfold/keyfold/internal/crypto"
	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/events"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/store"
)

// Storage is the persistence surface the service needs.
type Storage interface {
	store.SecretStore
	store.HistoryStore
}

// Service is the secret store. Writes to the same secret are serialized
// through a per-id lock so the version counter never skips or repeats.
type Service struct {
	store   Storage
	keeper  *crypto.Keeper
	checker *access.Checker
	sink    events.Publisher
	logger  *logging.Logger

	locks keyedLocks
}

// NewService creates the secret service.
func NewService(s Storage, keeper *crypto.Keeper, checker *access.Checker, sink events.Publisher, logger *logging.Logger) *Service {
	if sink == nil {
		sink = events.Discard{}
	}
	return &Service{
		store:   s,
		keeper:  keeper,
		checker: checker,
		sink:    sink,
		logger:  logger,
	}
}

// keyedLocks hands out one mutex per secret id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) acquire(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Create encrypts and persists a new secret at version 1 with one history
// entry. The returned record carries the raw value for immediate display;
// ciphertext is never re-exposed without decryption.
func (s *Service) Create(ctx context.Context, in CreateInput, actor string) (*Secret, error) {
	if in.Key == "" {
		return nil, kferrors.ValidationError{Field: "key", Message: "is required"}
	}
	if in.Value == "" {
		return nil, kferrors.ValidationError{Field: "value", Message: "is required"}
	}
	if in.ProjectID == "" {
		return nil, kferrors.ValidationError{Field: "projectId", Message: "is required"}
	}
	if _, err := ParseEnvironment(in.Environment); err != nil {
		return nil, err
	}
	if err := s.checker.RequireProjectEdit(ctx, actor, in.ProjectID); err != nil {
		return nil, err
	}

	env, err := s.keeper.Encrypt(in.Value)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &store.SecretRecord{
		Key:            in.Key,
		Envelope:       env.Encode(),
		Description:    in.Description,
		Environment:    in.Environment,
		Type:           in.Type,
		Version:        "1",
		Permission:     in.Permission,
		ExpiryDate:     in.ExpiryDate,
		RotationPolicy: in.RotationPolicy,
		ProjectID:      in.ProjectID,
		BranchID:       in.BranchID,
		UpdatedBy:      actor,
		LastUpdated:    now,
	}
	if err := s.store.CreateSecret(ctx, rec); err != nil {
		return nil, err
	}
	err = s.store.AppendHistory(ctx, &store.HistoryRecord{
		SecretID:    rec.ID,
		Version:     "1",
		Value:       in.Value,
		Description: in.Description,
		UpdatedBy:   actor,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created secret %s (project %s)", in.Key, in.ProjectID)
	s.sink.Publish(events.Event{
		Type:        events.TypeSecretCreated,
		SecretKey:   rec.Key,
		SecretID:    rec.ID,
		ProjectID:   rec.ProjectID,
		Environment: rec.Environment,
		Actor:       actor,
		Timestamp:   now,
	})

	out := toSecret(rec)
	out.Value = in.Value
	return out, nil
}

// Get returns one secret with its value decrypted. A decryption failure is
// masked, not returned as an error.
func (s *Service) Get(ctx context.Context, id, actor string) (*Secret, error) {
	rec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checker.RequireProjectMember(ctx, actor, rec.ProjectID); err != nil {
		return nil, err
	}
	return s.decryptRecord(rec), nil
}

// List returns the secrets matching the filter, each with its value
// decrypted. A record that fails to decrypt shows the masked sentinel
// while the rest of the batch is returned intact.
func (s *Service) List(ctx context.Context, filter Filter, actor string) ([]*Secret, error) {
	if filter.ProjectID == "" {
		return nil, kferrors.ValidationError{Field: "projectId", Message: "is required"}
	}
	if err := s.checker.RequireProjectMember(ctx, actor, filter.ProjectID); err != nil {
		return nil, err
	}

	recs, err := s.store.FindSecrets(ctx, store.SecretFilter{
		ID:           filter.ID,
		Key:          filter.Key,
		ProjectID:    filter.ProjectID,
		BranchID:     filter.BranchID,
		BranchGlobal: filter.BranchGlobal,
		Environment:  filter.Environment,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*Secret, len(recs))
	for i, rec := range recs {
		out[i] = s.decryptRecord(rec)
	}
	return out, nil
}

// History returns the version history of a secret, newest first.
func (s *Service) History(ctx context.Context, id, actor string) ([]HistoryEntry, error) {
	rec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checker.RequireProjectMember(ctx, actor, rec.ProjectID); err != nil {
		return nil, err
	}

	entries, err := s.store.HistoryForSecret(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntry{
			Version:      e.Version,
			Value:        e.Value,
			Description:  e.Description,
			UpdatedBy:    e.UpdatedBy,
			UpdatedAt:    e.UpdatedAt,
			ChangeReason: e.ChangeReason,
		}
	}
	return out, nil
}

// Update applies a patch to a secret, bumping the version by one and
// appending one history entry. The value is re-encrypted only when the patch
// supplies a new one.
func (s *Service) Update(ctx context.Context, id string, patch UpdateInput, actor string) (*Secret, error) {
	rec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checker.RequireProjectEdit(ctx, actor, rec.ProjectID); err != nil {
		return nil, err
	}
	return s.applyWrite(ctx, id, patch, actor, patch.ChangeReason)
}

// Rotate replaces a secret's value on behalf of the rotation engine. The
// engine authorizes the caller before reaching this path; the write itself
// is identical to a manual update with changeReason set to "rotation".
func (s *Service) Rotate(ctx context.Context, id, newValue, actor string) (*Secret, error) {
	return s.applyWrite(ctx, id, UpdateInput{Value: &newValue}, actor, "rotation")
}

// applyWrite is the serialized read-modify-write every version bump goes
// through.
func (s *Service) applyWrite(ctx context.Context, id string, patch UpdateInput, actor, changeReason string) (*Secret, error) {
	unlock := s.locks.acquire(id)
	defer unlock()

	rec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}

	oldVersion, err := strconv.Atoi(rec.Version)
	if err != nil {
		return nil, kferrors.InvariantError{Message: "secret " + id + " has malformed version '" + rec.Version + "'"}
	}
	newVersion := strconv.Itoa(oldVersion + 1)

	// A metadata-only write records the [unchanged] sentinel and the
	// description the secret had before the patch.
	historyValue := UnchangedValue
	historyDescription := rec.Description
	rawValue := ""
	if patch.Value != nil {
		env, err := s.keeper.Encrypt(*patch.Value)
		if err != nil {
			return nil, err
		}
		rec.Envelope = env.Encode()
		historyValue = *patch.Value
		rawValue = *patch.Value
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
		if patch.Value != nil {
			historyDescription = *patch.Description
		}
	}
	if patch.Environment != nil {
		envName, err := ParseEnvironment(*patch.Environment)
		if err != nil {
			return nil, err
		}
		rec.Environment = envName
	}
	if patch.Type != nil {
		rec.Type = *patch.Type
	}
	if patch.Permission != nil {
		rec.Permission = patch.Permission
	}
	if patch.ExpiryDate != nil {
		rec.ExpiryDate = patch.ExpiryDate
	}

	now := time.Now()
	rec.Version = newVersion
	rec.UpdatedBy = actor
	rec.LastUpdated = now

	if err := s.store.UpdateSecret(ctx, rec); err != nil {
		return nil, err
	}
	err = s.store.AppendHistory(ctx, &store.HistoryRecord{
		SecretID:     id,
		Version:      newVersion,
		Value:        historyValue,
		Description:  historyDescription,
		UpdatedBy:    actor,
		UpdatedAt:    now,
		ChangeReason: changeReason,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("updated secret %s to version %s", rec.Key, newVersion)
	s.sink.Publish(events.Event{
		Type:        events.TypeSecretUpdated,
		SecretKey:   rec.Key,
		SecretID:    rec.ID,
		ProjectID:   rec.ProjectID,
		Environment: rec.Environment,
		Actor:       actor,
		Timestamp:   now,
		Metadata:    map[string]string{"version": newVersion},
	})

	out := toSecret(rec)
	if rawValue != "" {
		out.Value = rawValue
	} else {
		out.Value = s.decryptValue(rec)
	}
	return out, nil
}

// Delete hard-deletes a secret and its history. The audit event is emitted
// before removal since nothing survives the delete.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	rec, err := s.store.GetSecret(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checker.RequireProjectEdit(ctx, actor, rec.ProjectID); err != nil {
		return err
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	s.sink.Publish(events.Event{
		Type:        events.TypeSecretDeleted,
		SecretKey:   rec.Key,
		SecretID:    rec.ID,
		ProjectID:   rec.ProjectID,
		Environment: rec.Environment,
		Actor:       actor,
		Timestamp:   time.Now(),
	})

	if err := s.store.DeleteSecret(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteHistoryForSecret(ctx, id); err != nil {
		return err
	}
	s.logger.Info("deleted secret %s (project %s)", rec.Key, rec.ProjectID)
	return nil
}

func (s *Service) decryptRecord(rec *store.SecretRecord) *Secret {
	out := toSecret(rec)
	out.Value = s.decryptValue(rec)
	return out
}

func (s *Service) decryptValue(rec *store.SecretRecord) string {
	env, err := crypto.DecodeEnvelope(rec.Envelope)
	if err != nil {
		s.logger.Warn("failed to decode envelope for secret %s: %v", rec.Key, err)
		return DecryptionFailedMask
	}
	plaintext, err := s.keeper.Decrypt(env)
	if err != nil {
		s.logger.Warn("failed to decrypt secret %s: %v", rec.Key, err)
		return DecryptionFailedMask
	}
	return plaintext
}

func toSecret(rec *store.SecretRecord) *Secret {
	return &Secret{
		ID:             rec.ID,
		Key:            rec.Key,
		Description:    rec.Description,
		Environment:    rec.Environment,
		Type:           rec.Type,
		Version:        rec.Version,
		Permission:     rec.Permission,
		ExpiryDate:     rec.ExpiryDate,
		RotationPolicy: rec.RotationPolicy,
		ProjectID:      rec.ProjectID,
		BranchID:       rec.BranchID,
		UpdatedBy:      rec.UpdatedBy,
		LastUpdated:    rec.LastUpdated,
	}
}
