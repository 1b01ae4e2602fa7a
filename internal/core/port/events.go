package port

import (
	"context"

	"github.com/jumbojolt/identity/internal/core/domain"
)

// EventPublisher publishes identity lifecycle events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishRecoveryKeyGenerated(ctx context.Context, event domain.RecoveryKeyGeneratedEvent) error
	PublishBackupCodesRegenerated(ctx context.Context, event domain.BackupCodesRegeneratedEvent) error
	PublishCredentialRedeemed(ctx context.Context, event domain.CredentialRedeemedEvent) error
	PublishAccountExported(ctx context.Context, event domain.AccountExportedEvent) error
	PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error
}
