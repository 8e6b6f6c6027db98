package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	kferrors "github.com/keyfold/keyfold/internal/errors"
)

const (
	// SaltSize is the salt size in bytes for passphrase-derived keys.
	SaltSize = 16

	// PBKDF2Iterations is the iteration count for passphrase derivation.
	PBKDF2Iterations = 100000
)

// GenerateKey returns a cryptographically secure random master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	return key, nil
}

// DecodeKey decodes a base64-encoded master key and checks its size.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, kferrors.ValidationError{Field: "masterKey", Message: "invalid base64 encoding"}
	}
	if len(key) != KeySize {
		return nil, kferrors.ValidationError{
			Field:   "masterKey",
			Message: fmt.Sprintf("expected %d bytes, got %d", KeySize, len(key)),
		}
	}
	return key, nil
}

// KeyFromEnv reads a base64-encoded master key from the named environment
// variable.
func KeyFromEnv(name string) ([]byte, error) {
	encoded := os.Getenv(name)
	if encoded == "" {
		return nil, kferrors.ValidationError{Field: "masterKey", Message: "environment variable " + name + " is not set"}
	}
	return DecodeKey(encoded)
}

// KeyFromKeyring loads a base64-encoded master key from the OS keyring.
func KeyFromKeyring(service, user string) ([]byte, error) {
	encoded, err := keyring.Get(service, user)
	if err != nil {
		return nil, fmt.Errorf("failed to read master key from keyring: %w", err)
	}
	return DecodeKey(encoded)
}

// StoreKeyInKeyring writes a base64-encoded master key to the OS keyring.
func StoreKeyInKeyring(service, user string, key []byte) error {
	if len(key) != KeySize {
		return kferrors.ValidationError{
			Field:   "masterKey",
			Message: fmt.Sprintf("expected %d bytes, got %d", KeySize, len(key)),
		}
	}
	if err := keyring.Set(service, user, base64.StdEncoding.EncodeToString(key)); err != nil {
		return fmt.Errorf("failed to store master key in keyring: %w", err)
	}
	return nil
}

// DeriveKey derives a master key from a passphrase and salt using
// PBKDF2-SHA256. The same passphrase and salt always produce the same key.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, kferrors.ValidationError{Field: "passphrase", Message: "must not be empty"}
	}
	if len(salt) != SaltSize {
		return nil, kferrors.ValidationError{
			Field:   "salt",
			Message: fmt.Sprintf("expected %d bytes, got %d", SaltSize, len(salt)),
		}
	}
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New), nil
}

// GenerateSalt returns a random salt for passphrase derivation.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Zeroize clears a key buffer in place. Call after handing the key to a
// Keeper.
func Zeroize(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
