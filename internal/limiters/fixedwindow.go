// Package limiters implements Redis-backed fixed-window rate limiting for
// authentication operations. Counters live in Redis keyed by identifier or
// IP, not in process memory, so limits hold across multiple stateless
// instances.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited signals the caller exceeded its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable wraps Redis failures so callers can treat
	// them as infrastructure errors rather than denials.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// fixedWindow increments key and applies the window TTL on first touch.
// Returns ErrRateLimited once the count exceeds max.
func fixedWindow(ctx context.Context, r redis.UniversalClient, key string, max int, window time.Duration) error {
	count, err := r.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := r.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

// peek reports whether key is already over budget without incrementing.
func peek(ctx context.Context, r redis.UniversalClient, key string, max int) error {
	count, err := r.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count >= int64(max) {
		return ErrRateLimited
	}
	return nil
}

// dropKeys removes counters, typically after a successful authentication.
func dropKeys(ctx context.Context, r redis.UniversalClient, keys ...string) {
	if len(keys) > 0 {
		_, _ = r.Del(ctx, keys...).Result()
	}
}
