package domain

// CredentialKind names the variant carried by a Credential.
type CredentialKind string

const (
	CredentialPassword    CredentialKind = "password"
	CredentialSecretKey   CredentialKind = "secret_key"
	CredentialRecoveryKey CredentialKind = "recovery_key"
	CredentialBackupCode  CredentialKind = "backup_code"
)

// Credential is a closed set of secrets a caller can present. Implementations
// are the string types below; callers dispatch with a type switch.
type Credential interface {
	Kind() CredentialKind
	Secret() string
	sealed()
}

// Password is the secret of a registered account.
type Password string

// SecretKey is the secret of an anonymous account.
type SecretKey string

// RecoveryKeyCredential is the display form of a recovery key.
type RecoveryKeyCredential string

// BackupCodeCredential is the display form of a backup code.
type BackupCodeCredential string

func (p Password) Kind() CredentialKind { return CredentialPassword }
func (p Password) Secret() string       { return string(p) }
func (Password) sealed()                {}

func (s SecretKey) Kind() CredentialKind { return CredentialSecretKey }
func (s SecretKey) Secret() string       { return string(s) }
func (SecretKey) sealed()                {}

func (r RecoveryKeyCredential) Kind() CredentialKind { return CredentialRecoveryKey }
func (r RecoveryKeyCredential) Secret() string       { return string(r) }
func (RecoveryKeyCredential) sealed()                {}

func (b BackupCodeCredential) Kind() CredentialKind { return CredentialBackupCode }
func (b BackupCodeCredential) Secret() string       { return string(b) }
func (BackupCodeCredential) sealed()                {}

// IdentityRef points at a stored identity by handle or id. Exactly one field is expected.
type IdentityRef struct {
	UserID string
	Handle string
}

// IsZero reports whether neither field is set.
func (r IdentityRef) IsZero() bool {
	return r.UserID == "" && r.Handle == ""
}
