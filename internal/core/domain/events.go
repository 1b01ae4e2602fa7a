package domain

import "time"

// UserRegisteredEvent represents the payload for identity.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Handle       string
	Kind         UserKind
	RegisteredAt time.Time
	Metadata     map[string]any
}

// RecoveryKeyGeneratedEvent represents the payload for identity.recovery_key.generated messages.
type RecoveryKeyGeneratedEvent struct {
	EventID     string
	UserID      string
	KeyID       string
	RevokedKeys int
	GeneratedAt time.Time
}

// BackupCodesRegeneratedEvent represents the payload for identity.backup_codes.regenerated messages.
type BackupCodesRegeneratedEvent struct {
	EventID       string
	UserID        string
	CodeCount     int
	Invalidated   int
	RegeneratedAt time.Time
}

// CredentialRedeemedEvent is emitted when a single-use credential logs a user in.
type CredentialRedeemedEvent struct {
	EventID    string
	UserID     string
	Credential CredentialKind
	RedeemedAt time.Time
	Remaining  *int
}

// AccountExportedEvent represents the payload for identity.account.exported messages.
type AccountExportedEvent struct {
	EventID    string
	UserID     string
	Location   string
	ExportedAt time.Time
}

// AccountDeletedEvent represents the payload for identity.account.deleted messages.
// Content services consume it to cascade their own tables.
type AccountDeletedEvent struct {
	EventID   string
	UserID    string
	Handle    string
	Kind      UserKind
	DeletedAt time.Time
}
