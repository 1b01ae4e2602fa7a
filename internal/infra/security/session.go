package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
)

const (
	defaultSessionTTL = 24 * time.Hour
	minSessionSecret  = 32
	sessionTokenType  = "Bearer"
)

// ErrInvalidSession indicates a presented session token failed verification.
var ErrInvalidSession = errors.New("session: invalid token")

// SessionTokenClaims augments registered claims with identity context.
type SessionTokenClaims struct {
	UserID string `json:"uid"`
	Kind   string `json:"knd"`
	Role   string `json:"role,omitempty"`
	Method string `json:"amr"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HS256 session tokens.
type SessionManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager constructs a session manager; secret must be at least 32 bytes.
func NewSessionManager(secret, issuer string, ttl time.Duration) (*SessionManager, error) {
	if len(secret) < minSessionSecret {
		return nil, fmt.Errorf("session: secret must be at least %d bytes", minSessionSecret)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("session: issuer is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a session token for user, recording how they authenticated.
func (m *SessionManager) Issue(user domain.User, method domain.CredentialKind) (domain.Session, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.Session{}, fmt.Errorf("session: user id is required")
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)

	claims := &SessionTokenClaims{
		UserID: user.ID,
		Kind:   string(user.Kind),
		Role:   user.Role,
		Method: string(method),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: sign token: %w", err)
	}

	return domain.Session{
		Token:     signed,
		TokenType: sessionTokenType,
		UserID:    user.ID,
		Method:    method,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse verifies signature, issuer and expiry and returns the session claims.
func (m *SessionManager) Parse(token string) (*domain.SessionClaims, error) {
	claims := &SessionTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, ErrInvalidSession
	}

	result := &domain.SessionClaims{
		UserID: claims.UserID,
		Kind:   domain.UserKind(claims.Kind),
		Role:   claims.Role,
		Method: domain.CredentialKind(claims.Method),
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

var _ port.SessionIssuer = (*SessionManager)(nil)
