package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs identity.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"handle":        event.Handle,
		"kind":          event.Kind,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent(EventUserRegistered, event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishRecoveryKeyGenerated logs identity.recovery_key.generated events.
func (p *StubPublisher) PublishRecoveryKeyGenerated(_ context.Context, event domain.RecoveryKeyGeneratedEvent) error {
	payload := map[string]any{
		"user_id":      event.UserID,
		"key_id":       event.KeyID,
		"revoked_keys": event.RevokedKeys,
	}
	p.logEvent(EventRecoveryKeyGenerated, event.UserID, event.GeneratedAt, payload)
	return nil
}

// PublishBackupCodesRegenerated logs identity.backup_codes.regenerated events.
func (p *StubPublisher) PublishBackupCodesRegenerated(_ context.Context, event domain.BackupCodesRegeneratedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"code_count":  event.CodeCount,
		"invalidated": event.Invalidated,
	}
	p.logEvent(EventBackupCodesRegenerated, event.UserID, event.RegeneratedAt, payload)
	return nil
}

// PublishCredentialRedeemed logs identity.credential.redeemed events.
func (p *StubPublisher) PublishCredentialRedeemed(_ context.Context, event domain.CredentialRedeemedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"credential": event.Credential,
	}
	if event.Remaining != nil {
		payload["remaining"] = *event.Remaining
	}
	p.logEvent(EventCredentialRedeemed, event.UserID, event.RedeemedAt, payload)
	return nil
}

// PublishAccountExported logs identity.account.exported events.
func (p *StubPublisher) PublishAccountExported(_ context.Context, event domain.AccountExportedEvent) error {
	payload := map[string]any{
		"user_id": event.UserID,
		"stored":  event.Location != "",
	}
	p.logEvent(EventAccountExported, event.UserID, event.ExportedAt, payload)
	return nil
}

// PublishAccountDeleted logs identity.account.deleted events.
func (p *StubPublisher) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	payload := map[string]any{
		"user_id": event.UserID,
		"handle":  event.Handle,
		"kind":    event.Kind,
	}
	p.logEvent(EventAccountDeleted, event.UserID, event.DeletedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
