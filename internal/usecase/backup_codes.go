package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/logger"
	"github.com/jumbojolt/identity/internal/infra/security"
	"github.com/jumbojolt/identity/internal/repository"
)

// BackupCodeSetSize is the fixed number of codes in every generated set.
const BackupCodeSetSize = 8

// GeneratedBackupCodes is the plaintext set returned exactly once.
type GeneratedBackupCodes struct {
	Codes       []string
	Invalidated int
	GeneratedAt time.Time
}

// BackupCodeService manages single-use backup code sets.
type BackupCodeService struct {
	users     port.UserRepository
	codes     port.BackupCodeRepository
	hasher    port.TokenHasher
	publisher port.EventPublisher
	count     int
	now       func() time.Time
}

// NewBackupCodeService constructs a backup code service generating sets of BackupCodeSetSize codes.
func NewBackupCodeService(users port.UserRepository, codes port.BackupCodeRepository, hasher port.TokenHasher, publisher port.EventPublisher) *BackupCodeService {
	return &BackupCodeService{
		users:     users,
		codes:     codes,
		hasher:    hasher,
		publisher: publisher,
		count:     BackupCodeSetSize,
		now:       time.Now,
	}
}

// GenerateSet replaces the user's codes with a new set. Every earlier code,
// used or not, stops working.
func (s *BackupCodeService) GenerateSet(ctx context.Context, userID string) (GeneratedBackupCodes, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return GeneratedBackupCodes{}, ErrUserNotFound
		}
		return GeneratedBackupCodes{}, fmt.Errorf("load user: %w", err)
	}

	now := s.now().UTC()
	seen := make(map[string]struct{}, s.count)
	display := make([]string, 0, s.count)
	records := make([]domain.BackupCode, 0, s.count)

	for len(display) < s.count {
		code, err := security.GenerateBackupCode()
		if err != nil {
			return GeneratedBackupCodes{}, fmt.Errorf("generate backup code: %w", err)
		}
		normalized, err := security.NormalizeBackupCode(code)
		if err != nil {
			return GeneratedBackupCodes{}, fmt.Errorf("normalize backup code: %w", err)
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		display = append(display, code)
		records = append(records, domain.BackupCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			Position:  len(records) + 1,
			CodeHash:  s.hasher.Hash(normalized),
			CreatedAt: now,
		})
	}

	invalidated, err := s.codes.ReplaceSet(ctx, userID, records)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return GeneratedBackupCodes{}, ErrUserNotFound
		}
		return GeneratedBackupCodes{}, fmt.Errorf("store backup codes: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishBackupCodesRegenerated(ctx, domain.BackupCodesRegeneratedEvent{
			UserID:        userID,
			CodeCount:     len(records),
			Invalidated:   invalidated,
			RegeneratedAt: now,
		}); err != nil {
			logger.WithContext(ctx).Warn("publish backup codes regenerated failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return GeneratedBackupCodes{Codes: display, Invalidated: invalidated, GeneratedAt: now}, nil
}

// RedeemOne consumes a single code and returns its owner.
func (s *BackupCodeService) RedeemOne(ctx context.Context, input string) (string, error) {
	normalized, err := security.NormalizeBackupCode(input)
	if err != nil {
		return "", ErrInvalidCode
	}
	now := s.now().UTC()

	userID, err := s.codes.ConsumeByHash(ctx, s.hasher.Hash(normalized), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCode
		}
		return "", fmt.Errorf("consume backup code: %w", err)
	}

	if s.publisher != nil {
		event := domain.CredentialRedeemedEvent{
			UserID:     userID,
			Credential: domain.CredentialBackupCode,
			RedeemedAt: now,
		}
		if status, err := s.codes.Status(ctx, userID); err == nil {
			remaining := status.Remaining
			event.Remaining = &remaining
		}
		if err := s.publisher.PublishCredentialRedeemed(ctx, event); err != nil {
			logger.WithContext(ctx).Warn("publish backup code redeemed failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return userID, nil
}

// Status reports how many codes of the current set remain unused.
func (s *BackupCodeService) Status(ctx context.Context, userID string) (domain.BackupCodeStatus, error) {
	status, err := s.codes.Status(ctx, userID)
	if err != nil {
		return domain.BackupCodeStatus{}, fmt.Errorf("backup code status: %w", err)
	}
	return status, nil
}
