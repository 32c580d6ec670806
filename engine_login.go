package praxis

import (
	"context"
	"errors"
	"strings"

	"github.com/praxis-id/praxis/internal"
	"github.com/praxis-id/praxis/internal/limiters"
	"github.com/praxis-id/praxis/internal/stores"
)

// Login runs the first authentication step. When the account has a
// second factor enrolled the result carries a single-use challenge id
// instead of tokens; ConfirmLogin2FA or a WebAuthn ceremony finishes
// the login.
//
// Unknown email and wrong password are indistinguishable: both return
// ErrInvalidCredentials, and unknown email still pays for one argon2
// verification so response timing does not leak account existence.
func (e *Engine) Login(ctx context.Context, email, pass string, device DeviceInfo) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	email = canonicalEmail(email)
	if email == "" || pass == "" {
		return nil, ErrInvalidInput
	}

	if err := e.loginLimiter.Check(ctx, email, device.IP); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, AuditRateLimited, false, "", "", device.IP, err, map[string]string{"scope": "login"})
			return nil, ErrRateLimited
		}
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	user, err := e.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrRecordNotFound) {
		e.hasher.VerifyDecoy(pass)
		e.failLogin(ctx, "", email, device, "unknown_account")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}

	if user.PasswordHash == "" {
		// Passwordless account. Burn the same work and fail generically.
		e.hasher.VerifyDecoy(pass)
		e.failLogin(ctx, user.ID, email, device, "no_password")
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	if !ok {
		e.failLogin(ctx, user.ID, email, device, "bad_password")
		return nil, ErrInvalidCredentials
	}

	e.loginLimiter.Reset(ctx, email, device.IP)
	e.upgradePasswordHash(ctx, user, pass)

	if user.TOTPEnabled {
		challengeID, err := e.createLoginChallenge(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricSecondFactorRequired)
		e.emitAudit(ctx, AuditLoginChallenge, true, user.ID, "", device.IP, nil, nil)
		return &LoginResult{
			UserID:       user.ID,
			SecondFactor: true,
			ChallengeID:  challengeID,
		}, nil
	}

	tokens, err := e.issueTokens(ctx, user.ID, device)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.recordLogin(ctx, user.ID, device, MethodPassword, true, "")
	e.emitAudit(ctx, AuditLogin, true, user.ID, tokens.sessionID(), device.IP, nil, nil)

	return &LoginResult{
		UserID: user.ID,
		Tokens: tokens,
	}, nil
}

// failLogin charges the rate limiter and records the failure. userID is
// empty for unknown accounts, which skips the history row.
func (e *Engine) failLogin(ctx context.Context, userID, email string, device DeviceInfo, reason string) {
	if err := e.loginLimiter.RecordFailure(ctx, email, device.IP); err != nil {
		e.logf("login limiter: %v", err)
	}
	e.metricInc(MetricLoginFailure)
	if userID != "" {
		e.recordLogin(ctx, userID, device, MethodPassword, false, reason)
	}
	e.emitAudit(ctx, AuditLogin, false, userID, "", device.IP, ErrInvalidCredentials, map[string]string{"reason": reason})
}

// upgradePasswordHash re-encodes the stored hash with the current argon2
// parameters after a successful verification, so raising the cost config
// gradually migrates existing accounts. Best effort: failures are logged
// and never fail the login.
func (e *Engine) upgradePasswordHash(ctx context.Context, user *User, pass string) {
	stale, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !stale {
		return
	}
	rehashed, err := e.hasher.Hash(pass)
	if err != nil {
		e.logf("password upgrade: %v", err)
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, user.ID, rehashed); err != nil {
		e.logf("password upgrade: %v", err)
	}
}

// createLoginChallenge persists a single-use pending second-factor
// challenge bound to the user.
func (e *Engine) createLoginChallenge(ctx context.Context, userID string) (string, error) {
	challengeID, err := internal.NewChallengeID()
	if err != nil {
		return "", err
	}
	record := &stores.Pending2FAChallenge{
		UserID:    userID,
		ExpiresAt: e.now().Add(e.cfg.Challenge.TTL).Unix(),
	}
	if err := e.pending.Save(ctx, challengeID, record, e.cfg.Challenge.TTL); err != nil {
		return "", errors.Join(ErrBackendUnavailable, err)
	}
	return challengeID, nil
}

// sessionID extracts the chain id from an issued pair. The refresh
// token's leading bytes are the chain root id.
func (p TokenPair) sessionID() string {
	id, _, err := internal.DecodeOpaqueToken(p.RefreshToken)
	if err != nil {
		return ""
	}
	return id
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
