package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/logger"
	"github.com/jumbojolt/identity/internal/infra/security"
	"github.com/jumbojolt/identity/internal/repository"
)

const (
	defaultGrantTTL  = 5 * time.Minute
	grantTokenLength = 32
)

// ExportResult carries either a download location or the inline bundle.
type ExportResult struct {
	Bundle      domain.DataExport
	DownloadURL string
}

// PrivacyService gates account export and deletion behind fresh verification.
type PrivacyService struct {
	users     port.UserRepository
	keys      port.RecoveryKeyRepository
	codes     port.BackupCodeRepository
	grants    port.VerificationGrantStore
	verifier  *CredentialVerifier
	storage   port.ExportStorage
	publisher port.EventPublisher
	grantTTL  time.Duration
	now       func() time.Time
}

// NewPrivacyService constructs the guard. storage may be nil, in which case
// exports are returned inline.
func NewPrivacyService(
	users port.UserRepository,
	keys port.RecoveryKeyRepository,
	codes port.BackupCodeRepository,
	grants port.VerificationGrantStore,
	verifier *CredentialVerifier,
	storage port.ExportStorage,
	publisher port.EventPublisher,
	grantTTL time.Duration,
) *PrivacyService {
	if grantTTL <= 0 {
		grantTTL = defaultGrantTTL
	}
	return &PrivacyService{
		users:     users,
		keys:      keys,
		codes:     codes,
		grants:    grants,
		verifier:  verifier,
		storage:   storage,
		publisher: publisher,
		grantTTL:  grantTTL,
		now:       time.Now,
	}
}

// RequireVerification checks the account's own secret and mints a one-shot grant
// for action. A failed check changes nothing.
func (s *PrivacyService) RequireVerification(ctx context.Context, userID string, action domain.PrivacyAction, cred domain.Credential) (domain.VerificationGrant, error) {
	if !action.Valid() || userID == "" {
		return domain.VerificationGrant{}, ErrVerificationFailed
	}

	switch cred.(type) {
	case domain.Password, domain.SecretKey:
	default:
		// Single-use credentials would be burned by a verification.
		return domain.VerificationGrant{}, ErrVerificationFailed
	}

	result, err := s.verifier.Verify(ctx, domain.IdentityRef{UserID: userID}, cred)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			logger.WithContext(ctx).Info("privacy verification rejected",
				zap.String("user_id", userID),
				zap.String("action", string(action)),
			)
			return domain.VerificationGrant{}, ErrVerificationFailed
		}
		return domain.VerificationGrant{}, err
	}

	token, err := security.GenerateSecureToken(grantTokenLength)
	if err != nil {
		return domain.VerificationGrant{}, fmt.Errorf("generate grant token: %w", err)
	}

	now := s.now().UTC()
	grant := domain.VerificationGrant{
		Token:      token,
		UserID:     result.User.ID,
		Action:     action,
		VerifiedAt: now,
		ExpiresAt:  now.Add(s.grantTTL),
	}
	if err := s.grants.Save(ctx, grant); err != nil {
		return domain.VerificationGrant{}, fmt.Errorf("save verification grant: %w", err)
	}

	return grant, nil
}

// Export consumes an export grant and returns the user's data bundle.
func (s *PrivacyService) Export(ctx context.Context, userID, grantToken string) (ExportResult, error) {
	if err := s.consumeGrant(ctx, userID, grantToken, domain.PrivacyActionExport); err != nil {
		return ExportResult{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ExportResult{}, ErrUserNotFound
		}
		return ExportResult{}, fmt.Errorf("load user: %w", err)
	}

	bundle, err := s.buildExport(ctx, *user)
	if err != nil {
		return ExportResult{}, err
	}
	result := ExportResult{Bundle: bundle}

	if s.storage != nil {
		payload, err := json.Marshal(bundle)
		if err != nil {
			return ExportResult{}, fmt.Errorf("marshal export: %w", err)
		}
		location, err := s.storage.StoreExport(ctx, userID, payload)
		if err != nil {
			return ExportResult{}, fmt.Errorf("store export: %w", err)
		}
		result.DownloadURL = location
	}

	if s.publisher != nil {
		if err := s.publisher.PublishAccountExported(ctx, domain.AccountExportedEvent{
			UserID:     userID,
			ExportedAt: bundle.GeneratedAt,
		}); err != nil {
			logger.WithContext(ctx).Warn("publish account exported failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// Delete consumes a delete grant and removes the account with its recovery
// keys and backup codes.
func (s *PrivacyService) Delete(ctx context.Context, userID, grantToken string) error {
	if err := s.consumeGrant(ctx, userID, grantToken, domain.PrivacyActionDelete); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	logger.WithContext(ctx).Info("account deleted", zap.String("user_id", userID))

	if s.publisher != nil {
		if err := s.publisher.PublishAccountDeleted(ctx, domain.AccountDeletedEvent{
			UserID:    user.ID,
			Handle:    user.Handle,
			Kind:      user.Kind,
			DeletedAt: s.now().UTC(),
		}); err != nil {
			logger.WithContext(ctx).Warn("publish account deleted failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// consumeGrant takes the grant out of the store before checking it, so a grant
// presented for the wrong user or action is burned as well.
func (s *PrivacyService) consumeGrant(ctx context.Context, userID, token string, action domain.PrivacyAction) error {
	if token == "" {
		return ErrVerificationRequired
	}

	grant, err := s.grants.Take(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrVerificationRequired
		}
		return fmt.Errorf("take verification grant: %w", err)
	}

	if grant.UserID != userID || grant.Action != action || !s.now().Before(grant.ExpiresAt) {
		logger.WithContext(ctx).Warn("verification grant mismatch",
			zap.String("user_id", userID),
			zap.String("action", string(action)),
		)
		return ErrVerificationRequired
	}
	return nil
}

func (s *PrivacyService) buildExport(ctx context.Context, user domain.User) (domain.DataExport, error) {
	keys, err := s.keys.ListByUser(ctx, user.ID)
	if err != nil {
		return domain.DataExport{}, fmt.Errorf("list recovery keys: %w", err)
	}
	status, err := s.codes.Status(ctx, user.ID)
	if err != nil {
		return domain.DataExport{}, fmt.Errorf("backup code status: %w", err)
	}

	exported := make([]domain.ExportRecoveryKey, 0, len(keys))
	for _, key := range keys {
		exported = append(exported, domain.ExportRecoveryKey{
			ID:         key.ID,
			CreatedAt:  key.CreatedAt,
			ConsumedAt: key.ConsumedAt,
			RevokedAt:  key.RevokedAt,
		})
	}

	return domain.DataExport{
		GeneratedAt: s.now().UTC(),
		Profile: domain.ExportProfile{
			ID:        user.ID,
			Kind:      user.Kind,
			Handle:    user.Handle,
			Email:     user.Email,
			Points:    user.Points,
			Level:     user.Level,
			Role:      user.Role,
			CreatedAt: user.CreatedAt,
		},
		RecoveryKeys: exported,
		BackupCodes: domain.ExportBackupCodeInfo{
			Total:       status.Total,
			Remaining:   status.Remaining,
			GeneratedAt: status.GeneratedAt,
		},
	}, nil
}
