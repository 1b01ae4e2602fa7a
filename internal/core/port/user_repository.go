package port

import (
	"context"

	"github.com/jumbojolt/identity/internal/core/domain"
)

// UserRepository exposes persistence behavior for user identities.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByHandle(ctx context.Context, handle string) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}
