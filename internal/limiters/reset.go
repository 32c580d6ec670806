package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetConfig tunes the password-reset limiter.
type ResetConfig struct {
	MaxRequests int
	Window      time.Duration
	ThrottleIP  bool
}

// ResetLimiter throttles forgot-password requests per account and per
// source IP. The limit applies to requests, not failures: every issued
// email counts, whether or not the address exists.
type ResetLimiter struct {
	redis  redis.UniversalClient
	config ResetConfig
}

// NewResetLimiter creates a reset limiter with defaults of 3 requests per
// hour.
func NewResetLimiter(redisClient redis.UniversalClient, cfg ResetConfig) *ResetLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &ResetLimiter{redis: redisClient, config: cfg}
}

func resetEmailKey(email string) string { return "rst:e:" + email }
func resetIPKey(ip string) string       { return "rst:i:" + ip }

// CheckRequest charges one reset request against both windows.
func (l *ResetLimiter) CheckRequest(ctx context.Context, email, ip string) error {
	if err := fixedWindow(ctx, l.redis, resetEmailKey(email), l.config.MaxRequests, l.config.Window); err != nil {
		return err
	}
	if l.config.ThrottleIP && ip != "" {
		return fixedWindow(ctx, l.redis, resetIPKey(ip), l.config.MaxRequests, l.config.Window)
	}
	return nil
}

// Window reports the cooldown window for Retry-After headers.
func (l *ResetLimiter) Window() time.Duration {
	return l.config.Window
}
