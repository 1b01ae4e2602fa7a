package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/repository"
)

// VerificationGrantRepository keeps one-shot privacy grants in Redis with a TTL.
type VerificationGrantRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type grantRecord struct {
	UserID     string               `json:"user_id"`
	Action     domain.PrivacyAction `json:"action"`
	VerifiedAt time.Time            `json:"verified_at"`
	ExpiresAt  time.Time            `json:"expires_at"`
}

// NewVerificationGrantRepository constructs a grant store under the given key prefix.
func NewVerificationGrantRepository(client *redis.Client, prefix string) *VerificationGrantRepository {
	if prefix == "" {
		prefix = "grant"
	}
	return &VerificationGrantRepository{client: client, prefix: prefix, now: time.Now}
}

// Save stores the grant until its expiry.
func (r *VerificationGrantRepository) Save(ctx context.Context, grant domain.VerificationGrant) error {
	if grant.Token == "" {
		return errors.New("grant token is required")
	}

	ttl := grant.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("grant already expired")
	}

	payload, err := json.Marshal(grantRecord{
		UserID:     grant.UserID,
		Action:     grant.Action,
		VerifiedAt: grant.VerifiedAt,
		ExpiresAt:  grant.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}

	if err := r.client.Set(ctx, r.key(grant.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set grant: %w", err)
	}
	return nil
}

// Take removes the grant with GETDEL so only one caller can ever observe it.
func (r *VerificationGrantRepository) Take(ctx context.Context, token string) (*domain.VerificationGrant, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}

	raw, err := r.client.GetDel(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel grant: %w", err)
	}

	var record grantRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal grant: %w", err)
	}

	if !record.ExpiresAt.IsZero() && !r.now().Before(record.ExpiresAt) {
		return nil, repository.ErrNotFound
	}

	return &domain.VerificationGrant{
		Token:      token,
		UserID:     record.UserID,
		Action:     record.Action,
		VerifiedAt: record.VerifiedAt,
		ExpiresAt:  record.ExpiresAt,
	}, nil
}

func (r *VerificationGrantRepository) key(token string) string {
	return fmt.Sprintf("%s:%s", r.prefix, token)
}

var _ port.VerificationGrantStore = (*VerificationGrantRepository)(nil)
