package praxis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/praxis-id/praxis/internal"
)

func loginTokens(t *testing.T, env *testEnv, email, pass string) TokenPair {
	t.Helper()
	res, err := env.engine.Login(context.Background(), email, pass, testDevice())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.SecondFactor {
		t.Fatal("unexpected second-factor challenge")
	}
	return res.Tokens
}

func TestRefreshRotatesWithinChain(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	pair := loginTokens(t, env, "alice@example.com", "correct horse battery")
	chain := pair.sessionID()

	rotated, err := env.engine.Refresh(context.Background(), pair.RefreshToken, testDevice())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("expected a new refresh token value")
	}
	if rotated.sessionID() == chain {
		t.Fatal("expected a new token id within the chain")
	}

	// The session id carried by the access token is still the chain root.
	uid, sid, err := env.engine.VerifyAccessToken(rotated.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if uid != user.ID {
		t.Fatalf("subject mismatch: %s", uid)
	}
	if sid != chain {
		t.Fatalf("expected session %s, got %s", chain, sid)
	}

	// The chain still counts as one session.
	sessions, err := env.engine.Sessions(context.Background(), user.ID, "")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session after rotation, got %d", len(sessions))
	}
	if sessions[0].ID != chain {
		t.Fatalf("expected chain id %s, got %s", chain, sessions[0].ID)
	}
}

func TestRefreshReuseRevokesAllUserTokens(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	env.createUser(t, "alice@example.com", "correct horse battery")

	// Two independent devices.
	first := loginTokens(t, env, "alice@example.com", "correct horse battery")
	second := loginTokens(t, env, "alice@example.com", "correct horse battery")

	rotated, err := env.engine.Refresh(context.Background(), first.RefreshToken, testDevice())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Presenting the superseded token is theft evidence.
	if _, err := env.engine.Refresh(context.Background(), first.RefreshToken, testDevice()); !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("expected ErrRefreshReused, got %v", err)
	}

	// The fallout is total: the legitimate successor and the second
	// device both die.
	if _, err := env.engine.Refresh(context.Background(), rotated.RefreshToken, testDevice()); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected successor revoked, got %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), second.RefreshToken, testDevice()); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected other device revoked, got %v", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	for _, token := range []string{"", "garbage", "AAAA", "!!!not-base64url!!!"} {
		if _, err := env.engine.Refresh(context.Background(), token, testDevice()); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("token %q: expected ErrRefreshInvalid, got %v", token, err)
		}
	}
}

func TestRefreshTamperedSecret(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	env.createUser(t, "alice@example.com", "correct horse battery")
	pair := loginTokens(t, env, "alice@example.com", "correct horse battery")

	// Flip one character of the secret half.
	raw := []byte(pair.RefreshToken)
	last := len(raw) - 1
	if raw[last] == 'A' {
		raw[last] = 'B'
	} else {
		raw[last] = 'A'
	}
	if _, err := env.engine.Refresh(context.Background(), string(raw), testDevice()); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}

	// The original still works: a mismatch is not a reuse sighting.
	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken, testDevice()); err != nil {
		t.Fatalf("legitimate token did not survive tamper attempt: %v", err)
	}
}

func TestRefreshIdleExpiry(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	env.createUser(t, "alice@example.com", "correct horse battery")
	pair := loginTokens(t, env, "alice@example.com", "correct horse battery")

	env.clock.Advance(engineTestConfig().Token.RefreshTTL + time.Hour)

	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken, testDevice()); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after idle expiry, got %v", err)
	}
}

func TestRefreshAbsoluteLifetime(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Token.RefreshTTL = 14 * 24 * time.Hour
	cfg.Token.AbsoluteLifetime = 30 * 24 * time.Hour
	env, done := newTestEnv(t, cfg)
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	pair := loginTokens(t, env, "alice@example.com", "correct horse battery")

	// Keep the chain warm with rotations, never letting a token idle out.
	for i := 0; i < 4; i++ {
		env.clock.Advance(7 * 24 * time.Hour)
		rotated, err := env.engine.Refresh(context.Background(), pair.RefreshToken, testDevice())
		if err != nil {
			t.Fatalf("rotation %d failed: %v", i, err)
		}
		pair = rotated
	}

	// Day 35: each token was fresh, but the chain anchor is too old.
	env.clock.Advance(7 * 24 * time.Hour)
	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken, testDevice()); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid past absolute lifetime, got %v", err)
	}

	// The failed rotation buried the chain: the dead session no longer
	// shows up in the listing, and the token row records why.
	sessions, err := env.engine.Sessions(context.Background(), user.ID, "")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions after chain lifetime expiry, got %d", len(sessions))
	}
	tokenID, _, err := internal.DecodeOpaqueToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("DecodeOpaqueToken failed: %v", err)
	}
	rec, err := env.store.RefreshTokenByID(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("RefreshTokenByID failed: %v", err)
	}
	if !rec.Revoked || rec.RevokedReason != RevokeReasonChainLifetime {
		t.Fatalf("expected chain_lifetime revocation, got revoked=%v reason=%q", rec.Revoked, rec.RevokedReason)
	}
}

func TestLogoutRevokesChain(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	env.createUser(t, "alice@example.com", "correct horse battery")
	pair := loginTokens(t, env, "alice@example.com", "correct horse battery")

	if err := env.engine.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// Revoked, not superseded: this is not a reuse sighting.
	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken, testDevice()); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after logout, got %v", err)
	}
}

func TestLogoutIsIdempotentAndForgiving(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	env.createUser(t, "alice@example.com", "correct horse battery")
	pair := loginTokens(t, env, "alice@example.com", "correct horse battery")

	if err := env.engine.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("first Logout failed: %v", err)
	}
	if err := env.engine.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
	if err := env.engine.Logout(context.Background(), "complete-garbage"); err != nil {
		t.Fatalf("garbage Logout failed: %v", err)
	}
}

func TestLogoutRequiresTheSecret(t *testing.T) {
	env, done := newTestEnv(t, engineTestConfig())
	defer done()

	user := env.createUser(t, "alice@example.com", "correct horse battery")
	pair := loginTokens(t, env, "alice@example.com", "correct horse battery")

	raw := []byte(pair.RefreshToken)
	last := len(raw) - 1
	if raw[last] == 'A' {
		raw[last] = 'B'
	} else {
		raw[last] = 'A'
	}
	if err := env.engine.Logout(context.Background(), string(raw)); err != nil {
		t.Fatalf("Logout with tampered token errored: %v", err)
	}

	// Nothing was revoked.
	sessions, err := env.engine.Sessions(context.Background(), user.ID, "")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected the session to survive, got %d sessions", len(sessions))
	}
}
