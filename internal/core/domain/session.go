package domain

import "time"

// Session is the bearer credential handed to a client after a successful login.
type Session struct {
	Token     string
	TokenType string
	UserID    string
	Method    CredentialKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionClaims are the verified contents of a presented session token.
type SessionClaims struct {
	UserID    string
	Kind      UserKind
	Role      string
	Method    CredentialKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}
