package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
)

const (
	defaultMinPasswordLength = 10
	// argon2 hashes the whole input, so very long passwords are refused up front.
	defaultMaxPasswordLength   = 128
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
	minIdentifierOverlap       = 4
)

// Codes reported by PolicyViolation.
const (
	ViolationTooShort         = "too_short"
	ViolationTooLong          = "too_long"
	ViolationCharacterClasses = "character_classes"
	ViolationContainsIdentity = "contains_identity"
	ViolationGuessable        = "guessable"
)

// PolicyViolation names the first password rule that failed.
type PolicyViolation struct {
	Code    string
	Message string
}

func (v *PolicyViolation) Error() string {
	return v.Message
}

// PasswordPolicy checks passwords for registered accounts. Anonymous secret
// keys are not subject to it.
type PasswordPolicy struct {
	MinLength  int
	MaxLength  int
	MinClasses int
	MinScore   int
	// Dictionary is fed to zxcvbn alongside the account's handle and email.
	Dictionary []string
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)

func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:  defaultMinPasswordLength,
		MaxLength:  defaultMaxPasswordLength,
		MinClasses: defaultMinCharacterClasses,
		MinScore:   defaultMinZxcvbnScore,
		Dictionary: []string{"jumbojolt", "jolt", "swadeshi"},
	}
}

// Validate returns a *PolicyViolation for the first failed rule. Rules run
// cheapest first; zxcvbn is last.
func (p *PasswordPolicy) Validate(password string, account domain.PasswordContext) error {
	length := utf8.RuneCountInString(password)
	if length < p.MinLength {
		return &PolicyViolation{
			Code:    ViolationTooShort,
			Message: fmt.Sprintf("password must be at least %d characters long", p.MinLength),
		}
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		return &PolicyViolation{
			Code:    ViolationTooLong,
			Message: fmt.Sprintf("password must be at most %d characters long", p.MaxLength),
		}
	}
	if characterClasses(password) < p.MinClasses {
		return &PolicyViolation{
			Code:    ViolationCharacterClasses,
			Message: fmt.Sprintf("password must mix at least %d of upper case, lower case, digits and symbols", p.MinClasses),
		}
	}

	identifiers := accountIdentifiers(account)
	lowered := strings.ToLower(password)
	for _, id := range identifiers {
		if len(id) >= minIdentifierOverlap && strings.Contains(lowered, id) {
			return &PolicyViolation{
				Code:    ViolationContainsIdentity,
				Message: "password must not contain your handle or email",
			}
		}
	}

	if p.MinScore > 0 {
		inputs := append(identifiers, p.Dictionary...)
		if zxcvbn.PasswordStrength(password, inputs).Score < min(p.MinScore, 4) {
			return &PolicyViolation{
				Code:    ViolationGuessable,
				Message: "password is too easy to guess",
			}
		}
	}
	return nil
}

func characterClasses(password string) int {
	var upper, lower, digit, symbol int
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = 1
		case unicode.IsLower(r):
			lower = 1
		case unicode.IsDigit(r):
			digit = 1
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = 1
		}
	}
	return upper + lower + digit + symbol
}

// accountIdentifiers returns the lower-cased handle, email and email local part.
func accountIdentifiers(account domain.PasswordContext) []string {
	ids := make([]string, 0, 3)
	if handle := strings.ToLower(strings.TrimSpace(account.Handle)); handle != "" {
		ids = append(ids, handle)
	}
	if email := strings.ToLower(strings.TrimSpace(account.Email)); email != "" {
		ids = append(ids, email)
		if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
			ids = append(ids, local)
		}
	}
	return ids
}
