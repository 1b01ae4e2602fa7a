package port

import "github.com/jumbojolt/identity/internal/core/domain"

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// SecretHasher hashes and verifies low-entropy secrets (passwords, secret keys).
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret string, encoded string) (bool, error)
}

// TokenHasher derives deterministic lookup hashes for high-entropy tokens.
type TokenHasher interface {
	Hash(value string) string
}

// SessionIssuer binds a verified identity to subsequent requests.
type SessionIssuer interface {
	Issue(user domain.User, method domain.CredentialKind) (domain.Session, error)
	Parse(token string) (*domain.SessionClaims, error)
}
