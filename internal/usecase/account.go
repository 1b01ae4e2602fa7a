package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/logger"
	"github.com/jumbojolt/identity/internal/infra/security"
	"github.com/jumbojolt/identity/internal/repository"
)

const (
	minSecretKeyLength    = 6
	maxGeneratedHandleTry = 5
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,24}$`)

// AnonymousAccount is returned once when an anonymous identity is created.
type AnonymousAccount struct {
	User      domain.User
	SecretKey string
	Session   domain.Session
}

// AccountService handles onboarding, login and profile reads.
type AccountService struct {
	users     port.UserRepository
	hasher    port.SecretHasher
	policy    port.PasswordPolicyValidator
	verifier  *CredentialVerifier
	sessions  port.SessionIssuer
	publisher port.EventPublisher
	now       func() time.Time
}

// NewAccountService constructs an account service.
func NewAccountService(
	users port.UserRepository,
	hasher port.SecretHasher,
	policy port.PasswordPolicyValidator,
	verifier *CredentialVerifier,
	sessions port.SessionIssuer,
	publisher port.EventPublisher,
) *AccountService {
	if policy == nil {
		policy = security.NewPasswordPolicy()
	}
	return &AccountService{
		users:     users,
		hasher:    hasher,
		policy:    policy,
		verifier:  verifier,
		sessions:  sessions,
		publisher: publisher,
		now:       time.Now,
	}
}

// Register creates a registered identity and signs it in.
func (s *AccountService) Register(ctx context.Context, handle, email, password string) (domain.User, domain.Session, error) {
	handle = strings.TrimSpace(handle)
	if !handlePattern.MatchString(handle) {
		return domain.User{}, domain.Session{}, ErrInvalidHandle
	}
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, "<> ") {
		return domain.User{}, domain.Session{}, ErrInvalidEmail
	}
	if err := s.policy.Validate(password, domain.PasswordContext{Handle: handle, Email: email}); err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Kind:         domain.UserKindRegistered,
		Handle:       handle,
		Email:        &email,
		PasswordHash: hash,
		Level:        domain.DefaultLevel,
		Role:         domain.DefaultRole,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, domain.Session{}, translateConflict(err)
	}
	logger.WithContext(ctx).Info("registered account created",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(email)),
	)

	return s.finishOnboarding(ctx, user, domain.CredentialPassword)
}

// JoinAnonymous creates a handle-only identity. An empty handle is generated;
// an empty secretKey is generated and returned once.
func (s *AccountService) JoinAnonymous(ctx context.Context, handle, secretKey string) (AnonymousAccount, error) {
	handle = strings.TrimSpace(handle)
	if handle != "" && !handlePattern.MatchString(handle) {
		return AnonymousAccount{}, ErrInvalidHandle
	}

	if secretKey == "" {
		generated, err := security.GenerateSecretKey()
		if err != nil {
			return AnonymousAccount{}, fmt.Errorf("generate secret key: %w", err)
		}
		secretKey = generated
	} else if len(secretKey) < minSecretKeyLength {
		return AnonymousAccount{}, ErrWeakSecretKey
	}

	hash, err := s.hasher.Hash(secretKey)
	if err != nil {
		return AnonymousAccount{}, fmt.Errorf("hash secret key: %w", err)
	}

	user := domain.User{
		ID:            uuid.NewString(),
		Kind:          domain.UserKindAnonymous,
		SecretKeyHash: hash,
		Level:         domain.DefaultLevel,
		Role:          domain.DefaultRole,
		CreatedAt:     s.now().UTC(),
	}

	if handle != "" {
		user.Handle = handle
		if err := s.users.Create(ctx, user); err != nil {
			return AnonymousAccount{}, translateConflict(err)
		}
	} else if err := s.createWithGeneratedHandle(ctx, &user); err != nil {
		return AnonymousAccount{}, err
	}

	created, session, err := s.finishOnboarding(ctx, user, domain.CredentialSecretKey)
	if err != nil {
		return AnonymousAccount{}, err
	}
	return AnonymousAccount{User: created, SecretKey: secretKey, Session: session}, nil
}

// Login verifies a credential and issues a session for the resolved identity.
func (s *AccountService) Login(ctx context.Context, ref domain.IdentityRef, cred domain.Credential) (domain.User, domain.Session, error) {
	result, err := s.verifier.Verify(ctx, ref, cred)
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}

	session, err := s.sessions.Issue(result.User, result.Method)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("issue session: %w", err)
	}

	logger.WithContext(ctx).Info("user signed in",
		zap.String("user_id", result.User.ID),
		zap.String("method", string(result.Method)),
	)
	return result.User.Sanitized(), session, nil
}

// Profile returns the sanitized identity.
func (s *AccountService) Profile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user.Sanitized(), nil
}

func (s *AccountService) createWithGeneratedHandle(ctx context.Context, user *domain.User) error {
	for attempt := 0; attempt < maxGeneratedHandleTry; attempt++ {
		handle, err := security.GenerateHandle()
		if err != nil {
			return fmt.Errorf("generate handle: %w", err)
		}
		user.Handle = handle

		err = s.users.Create(ctx, *user)
		if err == nil {
			return nil
		}
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) && conflict.Field == "handle" {
			continue
		}
		return translateConflict(err)
	}
	return ErrHandleTaken
}

func (s *AccountService) finishOnboarding(ctx context.Context, user domain.User, method domain.CredentialKind) (domain.User, domain.Session, error) {
	session, err := s.sessions.Issue(user, method)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("issue session: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
			UserID:       user.ID,
			Handle:       user.Handle,
			Kind:         user.Kind,
			RegisteredAt: user.CreatedAt,
		}); err != nil {
			logger.WithContext(ctx).Warn("publish user registered failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	return user.Sanitized(), session, nil
}

func translateConflict(err error) error {
	var conflict *repository.ConflictError
	if errors.As(err, &conflict) {
		switch conflict.Field {
		case "handle":
			return ErrHandleTaken
		case "email":
			return ErrEmailTaken
		}
	}
	if errors.Is(err, repository.ErrConflict) {
		return ErrHandleTaken
	}
	return fmt.Errorf("create user: %w", err)
}
