package port

import (
	"context"

	"github.com/jumbojolt/identity/internal/core/domain"
)

// VerificationGrantStore keeps short-lived one-shot grants for destructive actions.
type VerificationGrantStore interface {
	Save(ctx context.Context, grant domain.VerificationGrant) error
	// Take atomically removes and returns the grant. repository.ErrNotFound when
	// the token is unknown, expired or already taken.
	Take(ctx context.Context, token string) (*domain.VerificationGrant, error)
}
