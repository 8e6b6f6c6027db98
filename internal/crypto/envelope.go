// Package crypto implements the authenticated encryption envelope used to
// store secret values at rest. One Keeper holds the process-wide master key;
// the key is injected at startup so tests can substitute a deterministic one.
//
// There is no versioning of the master key itself: all ciphertext is
// decryptable only with the currently configured key. Re-encrypting old
// envelopes under a new key is a known production gap, not handled here.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/awnumar/memguard"

	kferrors "github.com/keyfold/keyfold/internal/errors"
)

const (
	// KeySize is the master key size in bytes (AES-256).
	KeySize = 32

	// NonceSize is the AES-GCM nonce size in bytes.
	NonceSize = 12
)

// Envelope is the authenticated-encryption output for one secret value.
// The GCM authentication tag is folded into Ciphertext, the standard Go
// AEAD shape.
type Envelope struct {
	Nonce      []byte
	Ciphertext []byte
}

// Encode serializes the envelope as base64(nonce || ciphertext) for storage
// in a single scalar column.
func (e Envelope) Encode() string {
	combined := make([]byte, 0, len(e.Nonce)+len(e.Ciphertext))
	combined = append(combined, e.Nonce...)
	combined = append(combined, e.Ciphertext...)
	return base64.StdEncoding.EncodeToString(combined)
}

// DecodeEnvelope parses the serialized storage form back into an Envelope.
func DecodeEnvelope(encoded string) (Envelope, error) {
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Envelope{}, kferrors.DecryptionError{Err: fmt.Errorf("malformed envelope encoding: %w", err)}
	}
	// At least one byte of ciphertext plus the 16-byte GCM tag must follow
	// the nonce.
	if len(combined) < NonceSize+16 {
		return Envelope{}, kferrors.DecryptionError{Err: fmt.Errorf("envelope too short: %d bytes", len(combined))}
	}
	return Envelope{
		Nonce:      combined[:NonceSize],
		Ciphertext: combined[NonceSize:],
	}, nil
}

// Keeper performs envelope encryption with the process-wide master key.
// The key is held in a memguard enclave and only opened for the duration of
// a single operation. Keeper is safe for concurrent use.
type Keeper struct {
	enclave *memguard.Enclave
}

// NewKeeper creates a Keeper from a raw 32-byte master key. The caller's
// copy of the key should be zeroed after this call.
func NewKeeper(key []byte) (*Keeper, error) {
	if len(key) != KeySize {
		return nil, kferrors.ValidationError{
			Field:   "masterKey",
			Message: fmt.Sprintf("expected %d bytes, got %d", KeySize, len(key)),
		}
	}
	buf := make([]byte, KeySize)
	copy(buf, key)
	return &Keeper{enclave: memguard.NewEnclave(buf)}, nil
}

// Encrypt seals a plaintext secret value into an Envelope.
func (k *Keeper) Encrypt(plaintext string) (Envelope, error) {
	gcm, locked, err := k.openCipher()
	if err != nil {
		return Envelope{}, err
	}
	defer locked.Destroy()

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return Envelope{
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, []byte(plaintext), nil),
	}, nil
}

// Decrypt opens an Envelope and returns the plaintext secret value. A tag
// mismatch or malformed envelope yields a DecryptionError; the plaintext is
// never silently wrong.
func (k *Keeper) Decrypt(env Envelope) (string, error) {
	gcm, locked, err := k.openCipher()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	if len(env.Nonce) != NonceSize {
		return "", kferrors.DecryptionError{Err: fmt.Errorf("invalid nonce size %d", len(env.Nonce))}
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return "", kferrors.DecryptionError{Err: err}
	}
	return string(plaintext), nil
}

// openCipher opens the key enclave and builds the AEAD. The returned locked
// buffer must be destroyed by the caller once the operation completes.
func (k *Keeper) openCipher() (cipher.AEAD, *memguard.LockedBuffer, error) {
	locked, err := k.enclave.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open key enclave: %w", err)
	}

	block, err := aes.NewCipher(locked.Bytes())
	if err != nil {
		locked.Destroy()
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		locked.Destroy()
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, locked, nil
}
