package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/transport/http/middleware"
	"github.com/jumbojolt/identity/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code, errorMsg string) ErrorResponse {
	middleware.SetErrorCode(c, code)
	return ErrorResponse{
		Error:   errorMsg,
		Code:    code,
		TraceID: middleware.GetTraceID(c),
	}
}

// UserResponse describes the public view of an identity.
type UserResponse struct {
	ID        string          `json:"id"`
	Kind      domain.UserKind `json:"kind"`
	Handle    string          `json:"handle"`
	Email     *string         `json:"email,omitempty"`
	Points    int             `json:"points"`
	Level     int             `json:"level"`
	Role      string          `json:"role"`
	CreatedAt time.Time       `json:"created_at"`
}

// SessionResponse carries the bearer token issued after a login.
type SessionResponse struct {
	Token     string                `json:"token"`
	TokenType string                `json:"token_type"`
	Method    domain.CredentialKind `json:"method"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// RegisterRequest defines the registered account payload.
type RegisterRequest struct {
	Handle   string `json:"handle" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AnonymousRequest defines the optional anonymous join payload.
type AnonymousRequest struct {
	Handle    string `json:"handle"`
	SecretKey string `json:"secret_key"`
}

// LoginRequest selects the credential type by Type.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Type       string `json:"type" binding:"required,oneof=password secret_key"`
	Password   string `json:"password"`
	SecretKey  string `json:"secret_key"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User    UserResponse    `json:"user"`
	Session SessionResponse `json:"session"`
}

// AnonymousResponse is returned once when an anonymous account is created.
type AnonymousResponse struct {
	User      UserResponse    `json:"user"`
	SecretKey string          `json:"secret_key"`
	Session   SessionResponse `json:"session"`
}

// MeResponse wraps the authenticated user's profile.
type MeResponse struct {
	User UserResponse `json:"user"`
}

// RecoveryKeyResponse is returned once per generated key.
type RecoveryKeyResponse struct {
	KeyDisplay string `json:"key_display"`
	QRPayload  string `json:"qr_payload"`
}

// RecoveryKeyMetadata describes one recovery key without any secret material.
type RecoveryKeyMetadata struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// RecoveryKeyHistoryResponse lists a user's recovery keys, newest first.
type RecoveryKeyHistoryResponse struct {
	Keys []RecoveryKeyMetadata `json:"keys"`
}

func newRecoveryKeyMetadata(key domain.RecoveryKey) RecoveryKeyMetadata {
	status := "active"
	switch {
	case key.ConsumedAt != nil:
		status = "consumed"
	case key.RevokedAt != nil:
		status = "revoked"
	}
	return RecoveryKeyMetadata{
		ID:         key.ID,
		Status:     status,
		CreatedAt:  key.CreatedAt,
		ConsumedAt: key.ConsumedAt,
		RevokedAt:  key.RevokedAt,
	}
}

// RecoveryKeyRedeemRequest carries a recovery key in any accepted formatting.
type RecoveryKeyRedeemRequest struct {
	KeyDisplay string `json:"key_display" binding:"required"`
}

// CredentialLoginResponse is returned by the single-use credential logins.
type CredentialLoginResponse struct {
	UserID  string          `json:"user_id"`
	Session SessionResponse `json:"session"`
}

// BackupCodeItem is one plaintext backup code.
type BackupCodeItem struct {
	CodeDisplay string `json:"code_display"`
}

// BackupCodesResponse lists a freshly generated set.
type BackupCodesResponse struct {
	Codes []BackupCodeItem `json:"codes"`
}

// BackupCodeStatusResponse reports how many codes remain.
type BackupCodeStatusResponse struct {
	Total       int        `json:"total"`
	Remaining   int        `json:"remaining"`
	GeneratedAt *time.Time `json:"generated_at"`
}

// BackupCodeLoginRequest carries one backup code.
type BackupCodeLoginRequest struct {
	Code string `json:"code" binding:"required"`
}

// VerifyRequest re-verifies the caller before export or delete.
type VerifyRequest struct {
	Type      string `json:"type" binding:"required,oneof=password secret_key"`
	Password  string `json:"password"`
	SecretKey string `json:"secret_key"`
}

// VerifyResponse hands out the one-shot grant.
type VerifyResponse struct {
	Authorized bool      `json:"authorized"`
	GrantToken string    `json:"grant_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// GrantRequest presents a grant to export or delete.
type GrantRequest struct {
	GrantToken string `json:"grant_token" binding:"required"`
}

// ExportResponse carries either a download link or the inline bundle.
type ExportResponse struct {
	DownloadURL string             `json:"download_url,omitempty"`
	Export      *domain.DataExport `json:"export,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newUserResponse(user domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Kind:      user.Kind,
		Handle:    user.Handle,
		Email:     user.Email,
		Points:    user.Points,
		Level:     user.Level,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

func newSessionResponse(session domain.Session) SessionResponse {
	return SessionResponse{
		Token:     session.Token,
		TokenType: session.TokenType,
		Method:    session.Method,
		ExpiresAt: session.ExpiresAt,
	}
}

func newExportResponse(result usecase.ExportResult) ExportResponse {
	if result.DownloadURL != "" {
		return ExportResponse{DownloadURL: result.DownloadURL}
	}
	bundle := result.Bundle
	return ExportResponse{Export: &bundle}
}

// secretCredential converts the typed login fields into a credential.
func secretCredential(kind, password, secretKey string) (domain.Credential, bool) {
	switch kind {
	case string(domain.CredentialPassword):
		if password == "" {
			return nil, false
		}
		return domain.Password(password), true
	case string(domain.CredentialSecretKey):
		if secretKey == "" {
			return nil, false
		}
		return domain.SecretKey(secretKey), true
	default:
		return nil, false
	}
}
