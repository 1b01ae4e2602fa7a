package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/jumbojolt/identity/internal/core/port"
)

// GenerateSecureToken returns a base64 URL-safe random string using the specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// TokenHasher derives lookup hashes for recovery keys and backup codes.
// With a pepper the hash is HMAC-SHA256, so a leaked table alone cannot be
// used to test guesses offline.
type TokenHasher struct {
	pepper []byte
}

// NewTokenHasher returns a hasher keyed by pepper. An empty pepper falls back to plain SHA-256.
func NewTokenHasher(pepper string) *TokenHasher {
	return &TokenHasher{pepper: []byte(pepper)}
}

// Hash returns the hex-encoded digest of value.
func (h *TokenHasher) Hash(value string) string {
	if len(h.pepper) == 0 {
		return HashToken(value)
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ port.TokenHasher = (*TokenHasher)(nil)
