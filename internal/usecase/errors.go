package usecase

import "errors"

var (
	// ErrInvalidCredential indicates the identity/credential pair did not verify.
	// Unknown identities and kind mismatches share it so callers cannot enumerate accounts.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInvalidKey indicates the recovery key is unknown, malformed or was replaced.
	ErrInvalidKey = errors.New("invalid recovery key")
	// ErrAlreadyUsed indicates the recovery key was redeemed before.
	ErrAlreadyUsed = errors.New("recovery key already used")
	// ErrInvalidCode indicates the backup code is unknown, replaced or already used.
	ErrInvalidCode = errors.New("invalid backup code")
	// ErrNotAnonymous indicates a recovery key was requested for a registered account.
	ErrNotAnonymous = errors.New("recovery keys are only available to anonymous accounts")
	// ErrVerificationFailed indicates the fresh verification before a destructive action failed.
	ErrVerificationFailed = errors.New("verification failed")
	// ErrVerificationRequired indicates a destructive action was attempted without a valid grant.
	ErrVerificationRequired = errors.New("verification required")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrHandleTaken indicates another account already uses the handle (case-insensitive).
	ErrHandleTaken = errors.New("handle already taken")
	// ErrEmailTaken indicates another account already uses the email address.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidHandle indicates the handle does not match the allowed format.
	ErrInvalidHandle = errors.New("handle must be 3-24 letters, digits or underscores")
	// ErrInvalidEmail indicates the email address is malformed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrWeakSecretKey indicates a caller-chosen secret key is too short.
	ErrWeakSecretKey = errors.New("secret key is too short")
)
