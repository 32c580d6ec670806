package praxis

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/praxis-id/praxis/internal"
)

// Refresh rotates the presented refresh token: the old token is marked
// superseded and a child token with the same chain root is issued
// together with a fresh access token. The whole swap runs in one
// transaction with the old row locked, so two concurrent refreshes of
// the same token produce exactly one winner.
//
// Presenting a superseded token is treated as theft evidence: every
// refresh token the user owns, across all devices, is revoked and the
// caller gets ErrRefreshReused. All other failure modes collapse to
// ErrRefreshInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, device DeviceInfo) (TokenPair, error) {
	if e == nil || e.store == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	oldID, secret, err := internal.DecodeOpaqueToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, ErrRefreshInvalid
	}
	presentedHash := internal.HashSecret(secret)

	nextSecret, err := internal.NewSecret()
	if err != nil {
		return TokenPair{}, err
	}
	nextHash := internal.HashSecret(nextSecret)

	now := e.now()
	next := &RefreshToken{
		ID:         uuid.NewString(),
		TokenHash:  nextHash[:],
		DeviceInfo: device.UserAgent,
		IssuedAt:   now,
		ExpiresAt:  now.Add(e.cfg.Token.RefreshTTL),
	}

	old, rotateErr := e.store.Rotate(ctx, oldID, presentedHash[:], next, e.cfg.Token.AbsoluteLifetime)
	if rotateErr != nil {
		return TokenPair{}, e.refreshFailure(ctx, old, device, rotateErr)
	}

	wire, err := internal.EncodeOpaqueToken(next.ID, nextSecret)
	if err != nil {
		return TokenPair{}, err
	}
	access, accessExp, err := e.tokens.Issue(next.UserID, next.RootID)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefresh, true, next.UserID, next.RootID, device.IP, nil, nil)

	return TokenPair{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		RefreshToken:    wire,
		RefreshExpires:  next.ExpiresAt,
	}, nil
}

// refreshFailure maps a rotation error into the public taxonomy and
// runs reuse handling when a superseded token was presented.
func (e *Engine) refreshFailure(ctx context.Context, old *RefreshToken, device DeviceInfo, err error) error {
	e.metricInc(MetricRefreshFailure)

	switch {
	case errors.Is(err, ErrTokenSuperseded):
		// The only path to a superseded token is a rotation that already
		// happened: either the client replayed, or the token leaked and
		// someone else rotated it first. Burn everything.
		e.metricInc(MetricRefreshReuseDetected)
		if old != nil {
			if revokeErr := e.store.RevokeAllRefreshTokens(ctx, old.UserID, RevokeReasonReuseDetected); revokeErr != nil {
				e.logf("reuse revocation: %v", revokeErr)
			}
			e.emitAudit(ctx, AuditRefreshReuse, false, old.UserID, old.RootID, device.IP, err, map[string]string{
				"token_id": old.ID,
			})
		}
		return ErrRefreshReused

	case errors.Is(err, ErrChainLifetimeExceeded):
		// The chain hit its absolute lifetime. Revoke it so it stops
		// showing up as an active session; the user logs in again.
		if old != nil {
			if revokeErr := e.store.RevokeChain(ctx, old.RootID, RevokeReasonChainLifetime); revokeErr != nil {
				e.logf("chain lifetime revocation: %v", revokeErr)
			}
			e.emitAudit(ctx, AuditRefresh, false, old.UserID, old.RootID, device.IP, err, nil)
		}
		return ErrRefreshInvalid

	case errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenValueMismatch):
		if old != nil {
			e.emitAudit(ctx, AuditRefresh, false, old.UserID, old.RootID, device.IP, err, nil)
		}
		return ErrRefreshInvalid

	default:
		return e.wrapStoreErr(err)
	}
}

// Logout revokes the chain of the presented refresh token. It is
// idempotent and deliberately forgiving: an unknown or already revoked
// token still logs out cleanly.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	id, secret, err := internal.DecodeOpaqueToken(refreshToken)
	if err != nil {
		return nil
	}

	record, err := e.store.RefreshTokenByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return e.wrapStoreErr(err)
	}

	// Only the holder of the secret may kill the chain.
	presentedHash := internal.HashSecret(secret)
	if !internal.HashEqual(record.TokenHash, presentedHash[:]) {
		return nil
	}

	if err := e.store.RevokeChain(ctx, record.RootID, RevokeReasonLogout); err != nil {
		return e.wrapStoreErr(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, record.UserID, record.RootID, "", nil, nil)
	return nil
}
