package praxis

import (
	"context"
	"errors"
	"strconv"

	"github.com/praxis-id/praxis/internal"
	"github.com/praxis-id/praxis/internal/limiters"
	"github.com/praxis-id/praxis/internal/stores"
)

// ConfirmLogin2FA completes a pending login challenge with either a
// TOTP code or a backup code. The challenge is single-use: it is
// deleted before tokens are issued, so a replay of the same challenge
// fails even when the first call succeeded. Every failure is the
// generic ErrSecondFactorInvalid; callers cannot learn which factor
// was attempted or why it failed.
func (e *Engine) ConfirmLogin2FA(ctx context.Context, challengeID, code string, device DeviceInfo) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if challengeID == "" || code == "" {
		return nil, ErrInvalidInput
	}

	challenge, err := e.pending.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) || errors.Is(err, stores.ErrChallengeExpired) {
			e.metricInc(MetricChallengeExpired)
			return nil, ErrChallengeExpired
		}
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	userID := challenge.UserID

	if err := e.sfLimiter.Check(ctx, userID); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.emitAudit(ctx, AuditRateLimited, false, userID, "", device.IP, err, map[string]string{"scope": "second_factor"})
			return nil, ErrRateLimited
		}
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}

	method, remaining, verifyErr := e.verifySecondFactor(ctx, user, code)
	if verifyErr != nil {
		if !errors.Is(verifyErr, ErrSecondFactorInvalid) {
			return nil, verifyErr
		}
		e.metricInc(MetricSecondFactorFailure)
		if err := e.sfLimiter.RecordFailure(ctx, userID); err != nil {
			e.logf("second factor limiter: %v", err)
		}
		exceeded, err := e.pending.RecordFailure(ctx, challengeID, e.cfg.Challenge.MaxAttempts)
		if err != nil {
			e.logf("challenge attempts: %v", err)
		}
		e.emitAudit(ctx, AuditSecondFactor, false, userID, "", device.IP, verifyErr, nil)
		if exceeded {
			e.metricInc(MetricChallengeExpired)
			return nil, ErrChallengeExpired
		}
		return nil, ErrSecondFactorInvalid
	}

	// Consume the challenge before issuing anything. Losing this race
	// means another request already finished the login.
	existed, err := e.pending.Delete(ctx, challengeID)
	if err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	if !existed {
		e.metricInc(MetricChallengeExpired)
		return nil, ErrChallengeExpired
	}

	e.sfLimiter.Reset(ctx, userID)

	tokens, err := e.issueTokens(ctx, userID, device)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSecondFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.recordLogin(ctx, userID, device, method, true, "")
	e.emitAudit(ctx, AuditSecondFactor, true, userID, tokens.sessionID(), device.IP, nil, map[string]string{"method": method})

	result := &LoginResult{
		UserID: userID,
		Tokens: tokens,
	}
	if method == MethodBackupCode && remaining >= 0 {
		result.BackupCodesRemaining = &remaining
	}
	return result, nil
}

// Disable2FA turns TOTP off for the account. It demands a currently
// valid TOTP code or backup code so a hijacked session alone cannot
// weaken the account. The secret and all backup codes are destroyed;
// existing sessions stay valid.
func (e *Engine) Disable2FA(ctx context.Context, userID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if userID == "" || code == "" {
		return ErrInvalidInput
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return e.wrapStoreErr(err)
	}
	if !user.TOTPEnabled {
		return ErrSecondFactorNotEnrolled
	}

	if _, _, err := e.verifySecondFactor(ctx, user, code); err != nil {
		e.emitAudit(ctx, AuditTOTPDisable, false, userID, "", "", err, nil)
		return err
	}

	if err := e.store.SetTOTP(ctx, userID, nil, false); err != nil {
		return e.wrapStoreErr(err)
	}
	if err := e.store.DeleteBackupCodes(ctx, userID); err != nil {
		return e.wrapStoreErr(err)
	}

	e.emitAudit(ctx, AuditTOTPDisable, true, userID, "", "", nil, nil)
	return nil
}

// verifySecondFactor accepts either a TOTP code or a backup code and
// reports which method matched. Purely numeric codes of the configured
// digit count are treated as TOTP; everything else is tried as a
// backup code. All mismatches collapse to ErrSecondFactorInvalid.
//
// When a backup code matched, remaining carries the user's unused code
// count, or -1 when the count could not be read. It is -1 on every
// other path.
func (e *Engine) verifySecondFactor(ctx context.Context, user *User, code string) (method string, remaining int, err error) {
	if !user.TOTPEnabled {
		return "", -1, ErrSecondFactorInvalid
	}

	if looksLikeOTP(code, e.cfg.TOTP.Digits) {
		if err := e.verifyTOTPCode(ctx, user, code); err != nil {
			return "", -1, err
		}
		return MethodTOTP, -1, nil
	}

	remaining, err = e.consumeBackupCode(ctx, user.ID, code)
	if err != nil {
		return "", -1, err
	}
	return MethodBackupCode, remaining, nil
}

// verifyTOTPCode checks the code inside the skew window and enforces
// time-step monotonicity: a code at or below the last accepted step is
// a replay and fails even though it is otherwise valid.
func (e *Engine) verifyTOTPCode(ctx context.Context, user *User, code string) error {
	secret, err := e.cipher.DecryptString(user.TOTPSecretEnc)
	if err != nil {
		e.logf("totp secret decrypt: %v", err)
		return ErrSecondFactorInvalid
	}

	counter, ok := e.totp.Verify(secret, code, e.now())
	if !ok {
		return ErrSecondFactorInvalid
	}
	if int64(counter) <= user.TOTPLastCounter {
		e.metricInc(MetricTOTPReplayRejected)
		return ErrSecondFactorInvalid
	}
	if err := e.store.UpdateTOTPCounter(ctx, user.ID, int64(counter)); err != nil {
		return e.wrapStoreErr(err)
	}
	return nil
}

// consumeBackupCode matches the code against the user's unused codes
// and burns the winner. The flip to used is conditional, so two
// concurrent presentations of the same code cannot both succeed. On
// success it returns the count of codes still unused, or -1 when the
// count could not be read.
func (e *Engine) consumeBackupCode(ctx context.Context, userID, code string) (int, error) {
	code = internal.CanonicalizeBackupCode(code)
	if code == "" {
		return -1, ErrSecondFactorInvalid
	}

	candidates, err := e.store.UnusedBackupCodes(ctx, userID)
	if err != nil {
		return -1, e.wrapStoreErr(err)
	}

	for _, candidate := range candidates {
		ok, err := e.hasher.Verify(code, candidate.CodeHash)
		if err != nil || !ok {
			continue
		}
		consumed, err := e.store.ConsumeBackupCode(ctx, candidate.ID)
		if err != nil {
			return -1, e.wrapStoreErr(err)
		}
		if !consumed {
			// Lost the race for this code.
			return -1, ErrSecondFactorInvalid
		}
		e.metricInc(MetricBackupCodeUsed)
		remaining, err := e.store.CountUnusedBackupCodes(ctx, userID)
		if err != nil {
			e.logf("backup code count: %v", err)
			remaining = -1
		}
		e.emitAudit(ctx, AuditBackupCodeUsed, true, userID, "", "", nil, map[string]string{
			"remaining": strconv.Itoa(remaining),
		})
		return remaining, nil
	}
	return -1, ErrSecondFactorInvalid
}

func looksLikeOTP(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
