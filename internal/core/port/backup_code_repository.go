package port

import (
	"context"
	"time"

	"github.com/jumbojolt/identity/internal/core/domain"
)

// BackupCodeRepository persists backup code hashes.
type BackupCodeRepository interface {
	// ReplaceSet deletes the user's current set and stores codes in one transaction.
	ReplaceSet(ctx context.Context, userID string, codes []domain.BackupCode) (invalidated int, err error)
	// ConsumeByHash marks the matching unused code consumed in one conditional
	// update and returns its owner. repository.ErrNotFound means nothing was consumed.
	ConsumeByHash(ctx context.Context, codeHash string, at time.Time) (userID string, err error)
	Status(ctx context.Context, userID string) (domain.BackupCodeStatus, error)
}
