package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/logger"
	"github.com/jumbojolt/identity/internal/infra/security"
	"github.com/jumbojolt/identity/internal/repository"
)

const defaultQRScheme = "jumbojolt://recover"

// GeneratedRecoveryKey is returned exactly once when a key is minted.
type GeneratedRecoveryKey struct {
	KeyID       string
	KeyDisplay  string
	QRPayload   string
	RevokedKeys int
	CreatedAt   time.Time
}

// RecoveryKeyService issues and redeems recovery keys for anonymous accounts.
type RecoveryKeyService struct {
	users     port.UserRepository
	keys      port.RecoveryKeyRepository
	hasher    port.TokenHasher
	publisher port.EventPublisher
	qrScheme  string
	now       func() time.Time
}

// NewRecoveryKeyService constructs a recovery key service.
func NewRecoveryKeyService(users port.UserRepository, keys port.RecoveryKeyRepository, hasher port.TokenHasher, publisher port.EventPublisher, qrScheme string) *RecoveryKeyService {
	if qrScheme == "" {
		qrScheme = defaultQRScheme
	}
	return &RecoveryKeyService{
		users:     users,
		keys:      keys,
		hasher:    hasher,
		publisher: publisher,
		qrScheme:  qrScheme,
		now:       time.Now,
	}
}

// Generate mints a fresh key for an anonymous user and revokes every earlier key.
func (s *RecoveryKeyService) Generate(ctx context.Context, userID string) (GeneratedRecoveryKey, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return GeneratedRecoveryKey{}, ErrUserNotFound
		}
		return GeneratedRecoveryKey{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsAnonymous() {
		return GeneratedRecoveryKey{}, ErrNotAnonymous
	}

	display, err := security.GenerateRecoveryKey()
	if err != nil {
		return GeneratedRecoveryKey{}, fmt.Errorf("generate recovery key: %w", err)
	}
	normalized, err := security.NormalizeRecoveryKey(display)
	if err != nil {
		return GeneratedRecoveryKey{}, fmt.Errorf("normalize recovery key: %w", err)
	}

	now := s.now().UTC()
	key := domain.RecoveryKey{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		KeyHash:   s.hasher.Hash(normalized),
		QRPayload: s.qrPayload(user.Handle, ""),
		CreatedAt: now,
	}

	revoked, err := s.keys.Rotate(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return GeneratedRecoveryKey{}, ErrUserNotFound
		}
		return GeneratedRecoveryKey{}, fmt.Errorf("store recovery key: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRecoveryKeyGenerated(ctx, domain.RecoveryKeyGeneratedEvent{
			UserID:      user.ID,
			KeyID:       key.ID,
			RevokedKeys: revoked,
			GeneratedAt: now,
		}); err != nil {
			logger.WithContext(ctx).Warn("publish recovery key generated failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	return GeneratedRecoveryKey{
		KeyID:       key.ID,
		KeyDisplay:  display,
		QRPayload:   s.qrPayload(user.Handle, display),
		RevokedKeys: revoked,
		CreatedAt:   now,
	}, nil
}

// Redeem consumes a key and returns its owner. Exactly one of any number of
// concurrent redemptions of the same key succeeds.
func (s *RecoveryKeyService) Redeem(ctx context.Context, input string) (string, error) {
	normalized, err := security.NormalizeRecoveryKey(input)
	if err != nil {
		logger.WithContext(ctx).Info("malformed recovery key rejected",
			zap.String("input", logger.MaskSecret(input)),
		)
		return "", ErrInvalidKey
	}
	hash := s.hasher.Hash(normalized)
	now := s.now().UTC()

	userID, err := s.keys.ConsumeByHash(ctx, hash, now)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("consume recovery key: %w", err)
		}
		return "", s.classifyUnusable(ctx, hash)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCredentialRedeemed(ctx, domain.CredentialRedeemedEvent{
			UserID:     userID,
			Credential: domain.CredentialRecoveryKey,
			RedeemedAt: now,
		}); err != nil {
			logger.WithContext(ctx).Warn("publish recovery key redeemed failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return userID, nil
}

// History lists a user's keys newest first, without hashes.
func (s *RecoveryKeyService) History(ctx context.Context, userID string) ([]domain.RecoveryKey, error) {
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list recovery keys: %w", err)
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// classifyUnusable separates a key that was already redeemed from one that never
// existed or was replaced by a newer key.
func (s *RecoveryKeyService) classifyUnusable(ctx context.Context, hash string) error {
	key, err := s.keys.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidKey
		}
		return fmt.Errorf("lookup recovery key: %w", err)
	}
	if key.ConsumedAt != nil {
		return ErrAlreadyUsed
	}
	return ErrInvalidKey
}

// qrPayload encodes the handle and, when given, the display key. The stored
// payload is always built without the key.
func (s *RecoveryKeyService) qrPayload(handle, display string) string {
	values := url.Values{}
	values.Set("handle", handle)
	if display != "" {
		values.Set("key", display)
	}
	return s.qrScheme + "?" + values.Encode()
}
