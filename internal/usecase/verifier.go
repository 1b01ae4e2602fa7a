package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/logger"
	"github.com/jumbojolt/identity/internal/infra/telemetry"
	"github.com/jumbojolt/identity/internal/repository"
)

// dummySecret is hashed once so unknown identities still pay for one Argon2 verification.
const dummySecret = "jumbojolt-timing-equalizer"

// VerifyResult is the identity resolved by a successful verification.
type VerifyResult struct {
	User   domain.User
	Method domain.CredentialKind
}

// CredentialVerifier resolves an identity from any supported credential.
type CredentialVerifier struct {
	users     port.UserRepository
	hasher    port.SecretHasher
	recovery  *RecoveryKeyService
	backup    *BackupCodeService
	metrics   port.CredentialMetrics
	logger    *zap.Logger
	dummyHash string
}

// NewCredentialVerifier constructs a verifier. recovery and backup may be nil when
// those credentials are not accepted by the caller.
func NewCredentialVerifier(
	users port.UserRepository,
	hasher port.SecretHasher,
	recovery *RecoveryKeyService,
	backup *BackupCodeService,
	metrics port.CredentialMetrics,
	log *zap.Logger,
) (*CredentialVerifier, error) {
	if users == nil || hasher == nil {
		return nil, errors.New("credential verifier: users and hasher are required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	dummy, err := hasher.Hash(dummySecret)
	if err != nil {
		return nil, fmt.Errorf("credential verifier: prepare dummy hash: %w", err)
	}

	return &CredentialVerifier{
		users:     users,
		hasher:    hasher,
		recovery:  recovery,
		backup:    backup,
		metrics:   metrics,
		logger:    log,
		dummyHash: dummy,
	}, nil
}

// Verify checks cred against the identity it refers to. Recovery keys and backup
// codes identify their owner themselves, so ref is ignored for them, and a
// successful verification consumes them.
func (v *CredentialVerifier) Verify(ctx context.Context, ref domain.IdentityRef, cred domain.Credential) (VerifyResult, error) {
	switch c := cred.(type) {
	case domain.Password:
		return v.verifySecret(ctx, ref, domain.UserKindRegistered, c)
	case domain.SecretKey:
		return v.verifySecret(ctx, ref, domain.UserKindAnonymous, c)
	case domain.RecoveryKeyCredential:
		if v.recovery == nil {
			return VerifyResult{}, ErrInvalidCredential
		}
		userID, err := v.recovery.Redeem(ctx, string(c))
		if err != nil {
			v.observe(c.Kind(), outcomeFor(err))
			return VerifyResult{}, err
		}
		return v.resolveRedeemed(ctx, userID, c.Kind())
	case domain.BackupCodeCredential:
		if v.backup == nil {
			return VerifyResult{}, ErrInvalidCredential
		}
		userID, err := v.backup.RedeemOne(ctx, string(c))
		if err != nil {
			v.observe(c.Kind(), outcomeFor(err))
			return VerifyResult{}, err
		}
		return v.resolveRedeemed(ctx, userID, c.Kind())
	default:
		return VerifyResult{}, ErrInvalidCredential
	}
}

func (v *CredentialVerifier) verifySecret(ctx context.Context, ref domain.IdentityRef, kind domain.UserKind, cred domain.Credential) (VerifyResult, error) {
	secret := cred.Secret()
	if secret == "" || ref.IsZero() {
		v.observe(cred.Kind(), telemetry.OutcomeRejected)
		return VerifyResult{}, ErrInvalidCredential
	}

	user, err := v.lookup(ctx, ref)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return VerifyResult{}, fmt.Errorf("lookup user: %w", err)
		}
		user = nil
	}

	if user == nil || user.Kind != kind {
		// Same cost as a real check; the result is discarded.
		_, _ = v.hasher.Verify(secret, v.dummyHash)
		v.observe(cred.Kind(), telemetry.OutcomeFailure)
		return VerifyResult{}, ErrInvalidCredential
	}

	encoded := user.PasswordHash
	if kind == domain.UserKindAnonymous {
		encoded = user.SecretKeyHash
	}

	ok, err := v.hasher.Verify(secret, encoded)
	if err != nil {
		logger.WithContext(ctx).Error("stored credential hash is unreadable",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return VerifyResult{}, fmt.Errorf("verify credential: %w", err)
	}
	if !ok {
		v.observe(cred.Kind(), telemetry.OutcomeFailure)
		return VerifyResult{}, ErrInvalidCredential
	}

	v.observe(cred.Kind(), telemetry.OutcomeSuccess)
	return VerifyResult{User: *user, Method: cred.Kind()}, nil
}

func (v *CredentialVerifier) resolveRedeemed(ctx context.Context, userID string, method domain.CredentialKind) (VerifyResult, error) {
	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			v.observe(method, telemetry.OutcomeFailure)
			return VerifyResult{}, ErrInvalidCredential
		}
		return VerifyResult{}, fmt.Errorf("load redeemed user: %w", err)
	}

	v.observe(method, telemetry.OutcomeSuccess)
	return VerifyResult{User: *user, Method: method}, nil
}

func (v *CredentialVerifier) lookup(ctx context.Context, ref domain.IdentityRef) (*domain.User, error) {
	if ref.UserID != "" {
		return v.users.GetByID(ctx, ref.UserID)
	}
	return v.users.GetByHandle(ctx, ref.Handle)
}

func (v *CredentialVerifier) observe(kind domain.CredentialKind, outcome string) {
	if v.metrics != nil {
		v.metrics.ObserveCredential(kind, outcome)
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, ErrAlreadyUsed) {
		return telemetry.OutcomeReused
	}
	return telemetry.OutcomeFailure
}
