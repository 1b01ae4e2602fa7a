package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/jumbojolt/identity/internal/core/port"
)

// ErrMalformedHash is returned by Verify for stored values it cannot parse or
// refuses to evaluate.
var ErrMalformedHash = errors.New("argon2: malformed hash")

var b64 = base64.RawStdEncoding

// Argon2Config holds the parameters used for newly created hashes.
type Argon2Config struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("argon2: memory %d KiB is below 8192", c.Memory)
	case c.Iterations == 0:
		return errors.New("argon2: iterations must be positive")
	case c.Parallelism == 0:
		return errors.New("argon2: parallelism must be positive")
	case c.SaltLength < 8:
		return fmt.Errorf("argon2: salt length %d is below 8 bytes", c.SaltLength)
	case c.KeyLength < 16:
		return fmt.Errorf("argon2: key length %d is below 16 bytes", c.KeyLength)
	}
	return nil
}

// Argon2Hasher stores passwords and anonymous secret keys as PHC strings:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
type Argon2Hasher struct {
	cfg Argon2Config
}

var _ port.SecretHasher = (*Argon2Hasher)(nil)

// NewArgon2Hasher validates cfg and returns a hasher using those parameters.
func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

// Hash derives an argon2id digest of secret with a fresh random salt and encodes it in PHC form.
func (h *Argon2Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters embedded in encoded, so hashes
// made under older settings keep working. Parameters far above the current
// configuration are refused.
func (h *Argon2Hasher) Verify(secret, encoded string) (bool, error) {
	if secret == "" || encoded == "" {
		return false, nil
	}

	params, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if params.Memory > h.cfg.Memory*4 || params.Iterations > h.cfg.Iterations*4 {
		return false, fmt.Errorf("%w: cost above accepted bound", ErrMalformedHash)
	}

	got := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func parsePHC(encoded string) (Argon2Config, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return Argon2Config{}, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	var memory, iterations, parallelism uint32
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil || parallelism > 255 {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: parameters %q", ErrMalformedHash, fields[3])
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}

	params := Argon2Config{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: uint8(parallelism),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}
	if err := params.validate(); err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return params, salt, key, nil
}
