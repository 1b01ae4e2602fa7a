package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jumbojolt/identity/internal/core/port"
)

// SlidingWindowConfig configures the attempt sets. TTL is a floor for key expiry;
// a longer rule window always wins.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository keeps attempts in one sorted set per key, scored by
// millisecond timestamp.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Window trims and inspects the set in a single MULTI/EXEC round trip.
func (r *RateLimitRepository) Window(ctx context.Context, key string, window time.Duration, now time.Time) (port.AttemptWindow, error) {
	if window <= 0 {
		return port.AttemptWindow{}, errors.New("rate limit: window must be positive")
	}

	setKey := r.key(key)
	cutoff := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, setKey, "-inf", cutoff)
		card = pipe.ZCard(ctx, setKey)
		oldest = pipe.ZRangeWithScores(ctx, setKey, 0, 0)
		return nil
	})
	if err != nil {
		return port.AttemptWindow{}, fmt.Errorf("rate limit window %s: %w", key, err)
	}

	state := port.AttemptWindow{Count: int(card.Val())}
	if entries := oldest.Val(); len(entries) > 0 {
		state.Oldest = time.UnixMilli(int64(entries[0].Score))
	}
	return state, nil
}

// Record adds an attempt under a unique member so concurrent hits in the same
// millisecond are all counted.
func (r *RateLimitRepository) Record(ctx context.Context, key string, at time.Time, window time.Duration) error {
	setKey := r.key(key)
	ttl := max(window, r.cfg.TTL)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, setKey, redis.Z{Score: float64(at.UnixMilli()), Member: uuid.NewString()})
		if ttl > 0 {
			pipe.PExpire(ctx, setKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rate limit record %s: %w", key, err)
	}
	return nil
}

func (r *RateLimitRepository) key(key string) string {
	if r.cfg.KeyPrefix == "" {
		return key
	}
	return r.cfg.KeyPrefix + ":" + key
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
