package port

import (
	"context"
	"time"
)

// AttemptWindow is what remains of one sliding window after expired attempts are dropped.
type AttemptWindow struct {
	Count  int
	Oldest time.Time // zero when Count is 0
}

// RateLimitStore keeps per-key attempt timestamps for the sliding-window limiter.
type RateLimitStore interface {
	// Window drops attempts older than window relative to now and reports the rest.
	Window(ctx context.Context, key string, window time.Duration, now time.Time) (AttemptWindow, error)
	// Record adds one attempt and keeps the key alive for at least window.
	Record(ctx context.Context, key string, at time.Time, window time.Duration) error
}
