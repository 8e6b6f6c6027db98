package rotation

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	urlSafe      = alphanumeric + "-_"
	withSymbols  = alphanumeric + "!@#$%^&*()-_=+[]{}"
)

// Generate synthesizes a new secret value appropriate to the secret's type.
// API keys get long url-safe strings; passwords get a shorter string with
// symbols; everything else gets a generic alphanumeric value.
func Generate(secretType string) (string, error) {
	switch secretType {
	case "api-key", "token":
		return randomString(40, urlSafe)
	case "password":
		return randomString(24, withSymbols)
	default:
		return randomString(32, alphanumeric)
	}
}

func randomString(length int, charset string) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
