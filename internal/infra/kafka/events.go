package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types published by the identity service.
const (
	EventUserRegistered         = "identity.user.registered"
	EventRecoveryKeyGenerated   = "identity.recovery_key.generated"
	EventBackupCodesRegenerated = "identity.backup_codes.regenerated"
	EventCredentialRedeemed     = "identity.credential.redeemed"
	EventAccountExported        = "identity.account.exported"
	EventAccountDeleted         = "identity.account.deleted"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if userID != "" {
		message.Key = sarama.StringEncoder(userID)
	}

	return p.producer.Send(ctx, message)
}

// PublishUserRegistered publishes identity.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string         `json:"user_id"`
		Handle       string         `json:"handle"`
		Kind         string         `json:"kind"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		Handle:       event.Handle,
		Kind:         string(event.Kind),
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishRecoveryKeyGenerated publishes identity.recovery_key.generated events.
func (p *EventPublisher) PublishRecoveryKeyGenerated(ctx context.Context, event domain.RecoveryKeyGeneratedEvent) error {
	payload := struct {
		UserID      string    `json:"user_id"`
		KeyID       string    `json:"key_id"`
		RevokedKeys int       `json:"revoked_keys"`
		GeneratedAt time.Time `json:"generated_at"`
	}{
		UserID:      event.UserID,
		KeyID:       event.KeyID,
		RevokedKeys: event.RevokedKeys,
		GeneratedAt: event.GeneratedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventRecoveryKeyGenerated, event.UserID, event.GeneratedAt, payload)
}

// PublishBackupCodesRegenerated publishes identity.backup_codes.regenerated events.
func (p *EventPublisher) PublishBackupCodesRegenerated(ctx context.Context, event domain.BackupCodesRegeneratedEvent) error {
	payload := struct {
		UserID        string    `json:"user_id"`
		CodeCount     int       `json:"code_count"`
		Invalidated   int       `json:"invalidated"`
		RegeneratedAt time.Time `json:"regenerated_at"`
	}{
		UserID:        event.UserID,
		CodeCount:     event.CodeCount,
		Invalidated:   event.Invalidated,
		RegeneratedAt: event.RegeneratedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventBackupCodesRegenerated, event.UserID, event.RegeneratedAt, payload)
}

// PublishCredentialRedeemed publishes identity.credential.redeemed events.
func (p *EventPublisher) PublishCredentialRedeemed(ctx context.Context, event domain.CredentialRedeemedEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		Credential string    `json:"credential"`
		RedeemedAt time.Time `json:"redeemed_at"`
		Remaining  *int      `json:"remaining,omitempty"`
	}{
		UserID:     event.UserID,
		Credential: string(event.Credential),
		RedeemedAt: event.RedeemedAt.UTC(),
		Remaining:  event.Remaining,
	}

	return p.publish(ctx, event.EventID, EventCredentialRedeemed, event.UserID, event.RedeemedAt, payload)
}

// PublishAccountExported publishes identity.account.exported events.
func (p *EventPublisher) PublishAccountExported(ctx context.Context, event domain.AccountExportedEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		Stored     bool      `json:"stored"`
		ExportedAt time.Time `json:"exported_at"`
	}{
		UserID:     event.UserID,
		Stored:     event.Location != "",
		ExportedAt: event.ExportedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventAccountExported, event.UserID, event.ExportedAt, payload)
}

// PublishAccountDeleted publishes identity.account.deleted events.
func (p *EventPublisher) PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		Handle    string    `json:"handle"`
		Kind      string    `json:"kind"`
		DeletedAt time.Time `json:"deleted_at"`
	}{
		UserID:    event.UserID,
		Handle:    event.Handle,
		Kind:      string(event.Kind),
		DeletedAt: event.DeletedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventAccountDeleted, event.UserID, event.DeletedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
