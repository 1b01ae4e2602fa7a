package domain

import (
	"errors"
	"strings"
	"time"
)

// UserKind distinguishes registered accounts from anonymous handle-only accounts.
type UserKind string

const (
	UserKindRegistered UserKind = "registered"
	UserKindAnonymous  UserKind = "anonymous"
)

const (
	DefaultRole  = "user"
	DefaultLevel = 1
)

var errInvalidUserKind = errors.New("domain: user kind does not match stored credential")

// User mirrors the persisted representation in the users table.
type User struct {
	ID            string
	Kind          UserKind
	Handle        string
	Email         *string
	PasswordHash  string
	SecretKeyHash string
	Points        int
	Level         int
	Role          string
	CreatedAt     time.Time
}

// IsAnonymous reports whether the identity authenticates with a secret key.
func (u User) IsAnonymous() bool {
	return u.Kind == UserKindAnonymous
}

// Validate checks that exactly the credential hash matching the kind is set.
func (u User) Validate() error {
	switch u.Kind {
	case UserKindRegistered:
		if u.PasswordHash == "" || u.SecretKeyHash != "" {
			return errInvalidUserKind
		}
	case UserKindAnonymous:
		if u.SecretKeyHash == "" || u.PasswordHash != "" {
			return errInvalidUserKind
		}
	default:
		return errInvalidUserKind
	}
	return nil
}

// Sanitized returns a copy without credential hashes.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.SecretKeyHash = ""
	return u
}

// NormalizeHandle folds a handle for case-insensitive uniqueness checks.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// NormalizeEmail folds an email address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RecoveryKey is a single-use key that restores an anonymous identity on a new device.
// Only the hash is persisted; the display form is returned once at generation.
type RecoveryKey struct {
	ID         string
	UserID     string
	KeyHash    string
	QRPayload  string
	CreatedAt  time.Time
	ConsumedAt *time.Time
	RevokedAt  *time.Time
}

// Usable reports whether the key can still be redeemed.
func (k RecoveryKey) Usable() bool {
	return k.ConsumedAt == nil && k.RevokedAt == nil
}

// BackupCode is one member of a user's backup code set.
type BackupCode struct {
	ID         string
	UserID     string
	Position   int
	CodeHash   string
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// BackupCodeStatus summarizes the active backup code set for a user.
type BackupCodeStatus struct {
	Total       int
	Remaining   int
	GeneratedAt *time.Time
}

// PasswordContext carries user inputs a strength check should penalize.
type PasswordContext struct {
	Handle string
	Email  string
}
