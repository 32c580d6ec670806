package praxis

import (
	"context"
	"errors"
	"testing"
	"time"
)

// loginToChallenge runs the password step and returns the challenge id.
func loginToChallenge(t *testing.T, env *testEnv, email, pass string) string {
	t.Helper()
	res, err := env.engine.Login(context.Background(), email, pass, testDevice())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.SecondFactor || res.ChallengeID == "" {
		t.Fatal("expected a pending second-factor challenge")
	}
	return res.ChallengeID
}

func TestConfirmLogin2FAWithTOTP(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	secret, _ := env.enrollTOTP(t, user.ID)

	challengeID := loginToChallenge(t, env, "alice@example.com", "correct horse battery")

	res, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, env.totpCode(t, secret, 0), testDevice())
	if err != nil {
		t.Fatalf("ConfirmLogin2FA failed: %v", err)
	}
	if res.UserID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, res.UserID)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair after second factor")
	}
	if res.BackupCodesRemaining != nil {
		t.Fatal("a TOTP login must not report a backup-code count")
	}
}

func TestConfirmLogin2FAChallengeIsSingleUse(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	secret, _ := env.enrollTOTP(t, user.ID)

	challengeID := loginToChallenge(t, env, "alice@example.com", "correct horse battery")

	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, env.totpCode(t, secret, 0), testDevice()); err != nil {
		t.Fatalf("first confirmation failed: %v", err)
	}

	// Same challenge, fresh valid code: the challenge is gone.
	env.clock.Advance(30 * time.Second)
	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, env.totpCode(t, secret, 0), testDevice()); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired on replayed challenge, got %v", err)
	}
}

func TestConfirmLogin2FARejectsTOTPReplay(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	secret, _ := env.enrollTOTP(t, user.ID)

	code := env.totpCode(t, secret, 0)

	challengeID := loginToChallenge(t, env, "alice@example.com", "correct horse battery")
	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, code, testDevice()); err != nil {
		t.Fatalf("first confirmation failed: %v", err)
	}

	// A second login presenting the very same code. It is still inside
	// the skew window, but the time step was already accepted.
	challengeID = loginToChallenge(t, env, "alice@example.com", "correct horse battery")
	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, code, testDevice()); !errors.Is(err, ErrSecondFactorInvalid) {
		t.Fatalf("expected ErrSecondFactorInvalid on code replay, got %v", err)
	}
}

func TestConfirmLogin2FAAttemptBudget(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Challenge.MaxAttempts = 3
	cfg.Limits.SecondFactorMax = 100
	env, done := newTestEnv(t, cfg)
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	env.enrollTOTP(t, user.ID)

	challengeID := loginToChallenge(t, env, "alice@example.com", "correct horse battery")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, "000000", testDevice()); !errors.Is(err, ErrSecondFactorInvalid) {
			t.Fatalf("attempt %d: expected ErrSecondFactorInvalid, got %v", i, err)
		}
	}
	// Third failure exhausts the budget and destroys the challenge.
	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, "000000", testDevice()); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired at budget, got %v", err)
	}
	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, "000000", testDevice()); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired after destruction, got %v", err)
	}
}

func TestConfirmLogin2FARateLimitAcrossChallenges(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Challenge.MaxAttempts = 100
	cfg.Limits.SecondFactorMax = 2
	env, done := newTestEnv(t, cfg)
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	secret, _ := env.enrollTOTP(t, user.ID)

	challengeID := loginToChallenge(t, env, "alice@example.com", "correct horse battery")
	for i := 0; i < 2; i++ {
		if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, "000000", testDevice()); !errors.Is(err, ErrSecondFactorInvalid) {
			t.Fatalf("attempt %d: expected ErrSecondFactorInvalid, got %v", i, err)
		}
	}

	// The per-user limiter holds even on a brand new challenge.
	challengeID = loginToChallenge(t, env, "alice@example.com", "correct horse battery")
	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, env.totpCode(t, secret, 0), testDevice()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestConfirmLogin2FAExpiredChallenge(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	secret, _ := env.enrollTOTP(t, user.ID)

	challengeID := loginToChallenge(t, env, "alice@example.com", "correct horse battery")

	// Let the Redis TTL lapse.
	env.mini.FastForward(engineTestConfig().Challenge.TTL + time.Second)

	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, env.totpCode(t, secret, 0), testDevice()); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestConfirmLogin2FAWithBackupCode(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	_, codes := env.enrollTOTP(t, user.ID)

	challengeID := loginToChallenge(t, env, "alice@example.com", "correct horse battery")
	res, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, codes[0], testDevice())
	if err != nil {
		t.Fatalf("ConfirmLogin2FA with backup code failed: %v", err)
	}
	if res.Tokens.RefreshToken == "" {
		t.Fatal("expected tokens after backup-code login")
	}
	if res.BackupCodesRemaining == nil {
		t.Fatal("expected the result to carry the unused-code count")
	}
	if *res.BackupCodesRemaining != len(codes)-1 {
		t.Fatalf("expected %d codes remaining on the result, got %d", len(codes)-1, *res.BackupCodesRemaining)
	}

	remaining, err := env.engine.RemainingBackupCodes(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("RemainingBackupCodes failed: %v", err)
	}
	if remaining != len(codes)-1 {
		t.Fatalf("expected %d remaining codes, got %d", len(codes)-1, remaining)
	}

	// The same code again on a fresh challenge is spent.
	challengeID = loginToChallenge(t, env, "alice@example.com", "correct horse battery")
	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, codes[0], testDevice()); !errors.Is(err, ErrSecondFactorInvalid) {
		t.Fatalf("expected ErrSecondFactorInvalid on spent code, got %v", err)
	}
}

func TestBackupCodeAcceptedWithSloppyFormatting(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	_, codes := env.enrollTOTP(t, user.ID)

	sloppy := " " + codes[0] + " "
	challengeID := loginToChallenge(t, env, "alice@example.com", "correct horse battery")
	if _, err := env.engine.ConfirmLogin2FA(context.Background(), challengeID, sloppy, testDevice()); err != nil {
		t.Fatalf("expected sloppy backup code to verify, got %v", err)
	}
}

func TestDisable2FA(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	secret, _ := env.enrollTOTP(t, user.ID)

	if err := env.engine.Disable2FA(context.Background(), user.ID, "000000"); !errors.Is(err, ErrSecondFactorInvalid) {
		t.Fatalf("expected ErrSecondFactorInvalid with wrong code, got %v", err)
	}

	if err := env.engine.Disable2FA(context.Background(), user.ID, env.totpCode(t, secret, 0)); err != nil {
		t.Fatalf("Disable2FA failed: %v", err)
	}

	stored, err := env.store.UserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("UserByID failed: %v", err)
	}
	if stored.TOTPEnabled || len(stored.TOTPSecretEnc) != 0 {
		t.Fatal("expected secret destroyed after disable")
	}
	if n, _ := env.engine.RemainingBackupCodes(context.Background(), user.ID); n != 0 {
		t.Fatalf("expected backup codes destroyed, %d left", n)
	}

	// Password-only login again.
	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct horse battery", testDevice())
	if err != nil {
		t.Fatalf("Login after disable failed: %v", err)
	}
	if res.SecondFactor {
		t.Fatal("expected no challenge after 2FA was disabled")
	}
}

func TestDisable2FANotEnrolled(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	if err := env.engine.Disable2FA(context.Background(), user.ID, "123456"); !errors.Is(err, ErrSecondFactorNotEnrolled) {
		t.Fatalf("expected ErrSecondFactorNotEnrolled, got %v", err)
	}
}
