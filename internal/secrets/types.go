// Package secrets implements the encrypted, versioned secret store. Every
// mutating write increments the version by exactly one and appends exactly
// one history entry.
package secrets

import (
	"time"

	kferrors "github.com/keyfold/keyfold/internal/errors"
)

const (
	// DecryptionFailedMask replaces a value that could not be decrypted on
	// a read path. The failure is isolated per record, never batch-fatal.
	DecryptionFailedMask = "[Decryption failed]"

	// UnchangedValue marks a history entry for a metadata-only update that
	// did not touch the secret value.
	UnchangedValue = "[unchanged]"
)

// Environments a secret can be scoped to.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// ParseEnvironment validates an environment name. The empty string means
// unscoped.
func ParseEnvironment(s string) (string, error) {
	switch s {
	case "", EnvDevelopment, EnvStaging, EnvProduction:
		return s, nil
	}
	return "", kferrors.ValidationError{
		Field:   "environment",
		Message: "must be one of development, staging, production",
	}
}

// Secret is the decrypted view of a stored secret.
type Secret struct {
	ID          string
	Key         string
	Value       string
	Description string
	Environment string
	Type        string
	Version     string

	Permission     []string
	ExpiryDate     *time.Time
	RotationPolicy string
	ProjectID      string
	BranchID       *string
	UpdatedBy      string
	LastUpdated    time.Time
}

// HistoryEntry is one version of a secret, newest first in listings.
type HistoryEntry struct {
	Version      string
	Value        string
	Description  string
	UpdatedBy    string
	UpdatedAt    time.Time
	ChangeReason string
}

// CreateInput carries the fields for a new secret.
type CreateInput struct {
	Key            string
	Value          string
	Description    string
	Environment    string
	Type           string
	Permission     []string
	ExpiryDate     *time.Time
	RotationPolicy string
	ProjectID      string
	BranchID       *string
}

// UpdateInput is a patch for an existing secret. Nil fields are left
// untouched.
type UpdateInput struct {
	Value       *string
	Description *string
	Environment *string
	Type        *string
	Permission  []string
	ExpiryDate  *time.Time

	// ChangeReason is recorded on the history entry, free-form.
	ChangeReason string
}

// Filter selects secrets for listing. ProjectID is required.
type Filter struct {
	ID  string
	Key string

	ProjectID string

	// BranchID limits to one branch; BranchGlobal limits to records with
	// no branch.
	BranchID     string
	BranchGlobal bool

	Environment string
}
