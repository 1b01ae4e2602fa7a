package domain

import "time"

// PrivacyAction enumerates destructive actions gated by fresh verification.
type PrivacyAction string

const (
	PrivacyActionExport PrivacyAction = "export"
	PrivacyActionDelete PrivacyAction = "delete"
)

// Valid reports whether the action is known.
func (a PrivacyAction) Valid() bool {
	return a == PrivacyActionExport || a == PrivacyActionDelete
}

// VerificationGrant authorizes exactly one export or delete call for one user.
type VerificationGrant struct {
	Token      string
	UserID     string
	Action     PrivacyAction
	VerifiedAt time.Time
	ExpiresAt  time.Time
}

// DataExport is the bundle handed to a user requesting their data.
type DataExport struct {
	GeneratedAt  time.Time            `json:"generated_at"`
	Profile      ExportProfile        `json:"profile"`
	RecoveryKeys []ExportRecoveryKey  `json:"recovery_keys"`
	BackupCodes  ExportBackupCodeInfo `json:"backup_codes"`
}

// ExportProfile is the identity portion of a data export.
type ExportProfile struct {
	ID        string    `json:"id"`
	Kind      UserKind  `json:"kind"`
	Handle    string    `json:"handle"`
	Email     *string   `json:"email,omitempty"`
	Points    int       `json:"points"`
	Level     int       `json:"level"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportRecoveryKey describes a recovery key without its hash.
type ExportRecoveryKey struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// ExportBackupCodeInfo describes the backup code set without hashes.
type ExportBackupCodeInfo struct {
	Total       int        `json:"total"`
	Remaining   int        `json:"remaining"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}
