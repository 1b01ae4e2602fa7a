package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// crockfordAlphabet omits I, L, O and U so displayed codes survive being read aloud or retyped.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	// RecoveryKeyPrefix marks the display form of a recovery key.
	RecoveryKeyPrefix = "JJRK"

	recoveryKeyBytes     = 20
	recoveryKeyGroupSize = 4
	backupCodeLength     = 10
	backupCodeGroupSize  = 5
	secretKeyLength      = 16
	secretKeyGroupSize   = 4
)

var errMalformedCode = errors.New("security: malformed code")

// GenerateRecoveryKey returns a new recovery key in display form, e.g. JJRK-7F3K-....
func GenerateRecoveryKey() (string, error) {
	buf := make([]byte, recoveryKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate recovery key: %w", err)
	}

	compact := encodeCrockford(buf)
	return RecoveryKeyPrefix + "-" + group(compact, recoveryKeyGroupSize), nil
}

// NormalizeRecoveryKey canonicalizes user input into the display form produced by GenerateRecoveryKey.
func NormalizeRecoveryKey(input string) (string, error) {
	compact := compactCode(input)
	want := encodedLen(recoveryKeyBytes)
	if len(compact) == want+len(RecoveryKeyPrefix) && strings.HasPrefix(compact, RecoveryKeyPrefix) {
		compact = compact[len(RecoveryKeyPrefix):]
	}
	if len(compact) != want || !isCrockford(compact) {
		return "", errMalformedCode
	}
	return RecoveryKeyPrefix + "-" + group(compact, recoveryKeyGroupSize), nil
}

// GenerateBackupCode returns a new backup code in XXXXX-XXXXX display form.
func GenerateBackupCode() (string, error) {
	code, err := randomCrockford(backupCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate backup code: %w", err)
	}
	return group(code, backupCodeGroupSize), nil
}

// NormalizeBackupCode canonicalizes user input into XXXXX-XXXXX form.
func NormalizeBackupCode(input string) (string, error) {
	compact := compactCode(input)
	if len(compact) != backupCodeLength || !isCrockford(compact) {
		return "", errMalformedCode
	}
	return group(compact, backupCodeGroupSize), nil
}

// GenerateSecretKey returns a random secret key for an anonymous account.
func GenerateSecretKey() (string, error) {
	key, err := randomCrockford(secretKeyLength)
	if err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	return group(key, secretKeyGroupSize), nil
}

var (
	handleAdjectives = []string{
		"Brave", "Swift", "Clever", "Bold", "Mighty", "Bright", "Calm", "Daring",
		"Eager", "Fierce", "Gentle", "Happy", "Jolly", "Keen", "Lucky", "Noble",
	}
	handleAnimals = []string{
		"Eagle", "Tiger", "Peacock", "Elephant", "Lion", "Falcon", "Cobra", "Panther",
		"Leopard", "Rhino", "Otter", "Heron", "Mongoose", "Kingfisher", "Yak", "Gaur",
	}
)

// GenerateHandle returns a playful handle such as BraveEagle42.
func GenerateHandle() (string, error) {
	adjective, err := randomIndex(len(handleAdjectives))
	if err != nil {
		return "", err
	}
	animal, err := randomIndex(len(handleAnimals))
	if err != nil {
		return "", err
	}
	suffix, err := randomIndex(100)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%02d", handleAdjectives[adjective], handleAnimals[animal], suffix), nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("generate random index: %w", err)
	}
	return int(v.Int64()), nil
}

// randomCrockford draws n symbols; 256 is a multiple of 32 so masking is unbiased.
func randomCrockford(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = crockfordAlphabet[b&31]
	}
	return string(out), nil
}

func encodeCrockford(data []byte) string {
	var (
		out    strings.Builder
		buffer uint32
		bits   uint
	)
	out.Grow(encodedLen(len(data)))
	for _, b := range data {
		buffer = buffer<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out.WriteByte(crockfordAlphabet[(buffer>>bits)&31])
		}
	}
	if bits > 0 {
		out.WriteByte(crockfordAlphabet[(buffer<<(5-bits))&31])
	}
	return out.String()
}

func encodedLen(n int) int {
	return (n*8 + 4) / 5
}

// compactCode upper-cases input, drops separators and maps ambiguous glyphs.
func compactCode(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		switch {
		case r == '-' || r == ' ' || r == '\t':
			continue
		case r == 'O':
			b.WriteByte('0')
		case r == 'I' || r == 'L':
			b.WriteByte('1')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isCrockford(s string) bool {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(crockfordAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

func group(s string, size int) string {
	if size <= 0 || len(s) <= size {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i += size {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + size
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}
