package praxis

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/praxis-id/praxis/internal"
	"github.com/praxis-id/praxis/internal/limiters"
)

// RequestPasswordReset starts the forgot-password flow. The response is
// identical whether or not the email belongs to an account, and the
// reset email is strictly best effort: a delivery failure is audited
// but never reported to the requester.
//
// Each request invalidates every earlier unused token for the account,
// so at most one reset link is live at any time.
func (e *Engine) RequestPasswordReset(ctx context.Context, email, ip string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	email = canonicalEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	if err := e.resetLimiter.CheckRequest(ctx, email, ip); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.metricInc(MetricResetRateLimited)
			e.emitAudit(ctx, AuditRateLimited, false, "", "", ip, err, map[string]string{"scope": "password_reset"})
			return ErrRateLimited
		}
		return errors.Join(ErrBackendUnavailable, err)
	}

	user, err := e.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrRecordNotFound) {
		// Same outcome as the known-account path.
		e.metricInc(MetricResetRequested)
		return nil
	}
	if err != nil {
		return e.wrapStoreErr(err)
	}

	if err := e.store.InvalidateResetTokens(ctx, user.ID); err != nil {
		return e.wrapStoreErr(err)
	}

	secret, err := internal.NewSecret()
	if err != nil {
		return err
	}
	hash := internal.HashSecret(secret)

	now := e.now()
	record := &ResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hash[:],
		ExpiresAt: now.Add(e.cfg.Reset.TokenTTL),
		RequestIP: ip,
		CreatedAt: now,
	}
	if err := e.store.InsertResetToken(ctx, record); err != nil {
		return e.wrapStoreErr(err)
	}

	wire, err := internal.EncodeOpaqueToken(record.ID, secret)
	if err != nil {
		return err
	}

	if e.mailer != nil {
		link := e.cfg.Reset.LinkBase + wire
		if err := e.mailer.SendResetLink(ctx, user.Email, link); err != nil {
			e.logf("reset mail: %v", err)
			e.metricInc(MetricMailFailure)
			e.emitAudit(ctx, AuditMailFailure, false, user.ID, "", ip, err, nil)
		}
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, AuditResetRequested, true, user.ID, "", ip, nil, nil)
	return nil
}

// ResetPassword redeems a reset token. The token is single-use and
// carries its own attempt budget: each redemption attempt, valid or
// not, is counted, and the budget runs out independently of the TTL.
// A successful reset atomically swaps the password hash, burns the
// token, and revokes every session of the user.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword, ip string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrResetInvalid
	}

	tokenID, secret, err := internal.DecodeOpaqueToken(token)
	if err != nil {
		return ErrResetInvalid
	}

	record, err := e.store.ResetTokenByID(ctx, tokenID)
	if errors.Is(err, ErrRecordNotFound) {
		e.metricInc(MetricResetFailed)
		return ErrResetInvalid
	}
	if err != nil {
		return e.wrapStoreErr(err)
	}

	attempts, err := e.store.IncrementResetAttempts(ctx, tokenID)
	if err != nil {
		return e.wrapStoreErr(err)
	}
	if attempts > e.cfg.Reset.MaxVerifyAttempts {
		e.metricInc(MetricResetFailed)
		e.emitAudit(ctx, AuditResetFailed, false, record.UserID, "", ip, ErrResetInvalid, map[string]string{"reason": "attempts_exceeded"})
		return ErrResetInvalid
	}

	presentedHash := internal.HashSecret(secret)
	now := e.now()
	switch {
	case record.Used,
		now.After(record.ExpiresAt),
		!internal.HashEqual(record.TokenHash, presentedHash[:]):
		e.metricInc(MetricResetFailed)
		e.emitAudit(ctx, AuditResetFailed, false, record.UserID, "", ip, ErrResetInvalid, nil)
		return ErrResetInvalid
	}

	if err := e.validatePassword(newPassword); err != nil {
		return err
	}
	user, err := e.store.UserByID(ctx, record.UserID)
	if err != nil {
		return e.wrapStoreErr(err)
	}
	if user.PasswordHash != "" {
		same, err := e.hasher.Verify(newPassword, user.PasswordHash)
		if err == nil && same {
			return ErrPasswordPolicy
		}
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = e.store.ConsumeAndResetPassword(ctx, tokenID, record.UserID, newHash, ip)
	if errors.Is(err, ErrRecordNotFound) {
		// A concurrent redemption got there first.
		e.metricInc(MetricResetFailed)
		return ErrResetInvalid
	}
	if err != nil {
		return e.wrapStoreErr(err)
	}

	e.metricInc(MetricResetCompleted)
	e.emitAudit(ctx, AuditResetCompleted, true, record.UserID, "", ip, nil, nil)
	return nil
}

func (e *Engine) validatePassword(pass string) error {
	if len(pass) < e.cfg.Password.MinLength || len(pass) > e.cfg.Password.MaxLength {
		return ErrPasswordPolicy
	}
	return nil
}
