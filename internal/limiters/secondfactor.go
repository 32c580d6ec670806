package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SecondFactorConfig tunes the step-up verification limiter.
type SecondFactorConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// SecondFactorLimiter throttles TOTP and backup-code verification per
// user. It backstops the per-challenge attempt counter: the challenge caps
// one login attempt, this caps the user across challenges.
type SecondFactorLimiter struct {
	redis  redis.UniversalClient
	config SecondFactorConfig
}

// NewSecondFactorLimiter creates a limiter with defaults of 5 attempts per
// minute.
func NewSecondFactorLimiter(redisClient redis.UniversalClient, cfg SecondFactorConfig) *SecondFactorLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &SecondFactorLimiter{redis: redisClient, config: cfg}
}

func secondFactorKey(userID string) string { return "sfv:" + userID }

// Check rejects before code verification when the budget is spent.
func (l *SecondFactorLimiter) Check(ctx context.Context, userID string) error {
	return peek(ctx, l.redis, secondFactorKey(userID), l.config.MaxAttempts)
}

// RecordFailure charges one failed verification.
func (l *SecondFactorLimiter) RecordFailure(ctx context.Context, userID string) error {
	return fixedWindow(ctx, l.redis, secondFactorKey(userID), l.config.MaxAttempts, l.config.Window)
}

// Reset clears the counter after a successful verification.
func (l *SecondFactorLimiter) Reset(ctx context.Context, userID string) {
	dropKeys(ctx, l.redis, secondFactorKey(userID))
}
