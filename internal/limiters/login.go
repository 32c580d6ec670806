package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginConfig tunes the failed-login limiter.
type LoginConfig struct {
	MaxAttempts int
	Window      time.Duration
	ThrottleIP  bool
}

// LoginLimiter throttles password attempts per account and, optionally,
// per source IP. Only failures increment the counters; a successful login
// clears them.
type LoginLimiter struct {
	redis  redis.UniversalClient
	config LoginConfig
}

// NewLoginLimiter creates a login limiter with defaults of 10 attempts per
// 15 minutes.
func NewLoginLimiter(redisClient redis.UniversalClient, cfg LoginConfig) *LoginLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &LoginLimiter{redis: redisClient, config: cfg}
}

func loginEmailKey(email string) string { return "lgn:e:" + email }
func loginIPKey(ip string) string       { return "lgn:i:" + ip }

// Check rejects before password verification when the budget is spent.
func (l *LoginLimiter) Check(ctx context.Context, email, ip string) error {
	if err := peek(ctx, l.redis, loginEmailKey(email), l.config.MaxAttempts); err != nil {
		return err
	}
	if l.config.ThrottleIP && ip != "" {
		return peek(ctx, l.redis, loginIPKey(ip), l.config.MaxAttempts)
	}
	return nil
}

// RecordFailure charges one failed attempt against both counters.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email, ip string) error {
	if err := fixedWindow(ctx, l.redis, loginEmailKey(email), l.config.MaxAttempts, l.config.Window); err != nil {
		return err
	}
	if l.config.ThrottleIP && ip != "" {
		return fixedWindow(ctx, l.redis, loginIPKey(ip), l.config.MaxAttempts, l.config.Window)
	}
	return nil
}

// Reset clears the counters after a successful authentication.
func (l *LoginLimiter) Reset(ctx context.Context, email, ip string) {
	keys := []string{loginEmailKey(email)}
	if ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	dropKeys(ctx, l.redis, keys...)
}

// Window reports the cooldown window for Retry-After headers.
func (l *LoginLimiter) Window() time.Duration {
	return l.config.Window
}
