package port

import (
	"context"
	"time"

	"github.com/jumbojolt/identity/internal/core/domain"
)

// RecoveryKeyRepository persists recovery key hashes.
type RecoveryKeyRepository interface {
	// Rotate revokes every usable key of key.UserID and stores key, atomically.
	Rotate(ctx context.Context, key domain.RecoveryKey) (revoked int, err error)
	// ConsumeByHash marks the matching usable key consumed in one conditional
	// update and returns its owner. repository.ErrNotFound means nothing was consumed.
	ConsumeByHash(ctx context.Context, keyHash string, at time.Time) (userID string, err error)
	GetByHash(ctx context.Context, keyHash string) (*domain.RecoveryKey, error)
	ListByUser(ctx context.Context, userID string) ([]domain.RecoveryKey, error)
}
