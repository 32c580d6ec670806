package praxis

import (
	"context"

	"github.com/praxis-id/praxis/internal"
)

// Sessions lists the user's active refresh chains, newest first. Each
// chain appears once, described by its live token. currentToken, when
// supplied, marks the session the caller is holding.
func (e *Engine) Sessions(ctx context.Context, userID, currentToken string) ([]SessionInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidInput
	}

	var currentChain string
	if currentToken != "" {
		if id, _, err := internal.DecodeOpaqueToken(currentToken); err == nil {
			if record, err := e.store.RefreshTokenByID(ctx, id); err == nil {
				currentChain = record.RootID
			}
		}
	}

	tokens, err := e.store.ActiveRefreshTokens(ctx, userID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}

	seen := make(map[string]bool, len(tokens))
	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		if seen[t.RootID] {
			continue
		}
		seen[t.RootID] = true
		sessions = append(sessions, SessionInfo{
			ID:          t.RootID,
			Device:      t.DeviceInfo,
			IssuedAt:    t.RootIssuedAt,
			LastRotated: t.IssuedAt,
			ExpiresAt:   t.ExpiresAt,
			Current:     t.RootID == currentChain,
		})
	}
	return sessions, nil
}

// RevokeSession kills one chain the user owns. Revoking a session that
// does not exist, or that belongs to someone else, fails the same way.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if userID == "" || sessionID == "" {
		return ErrInvalidInput
	}

	tokens, err := e.store.ActiveRefreshTokens(ctx, userID)
	if err != nil {
		return e.wrapStoreErr(err)
	}
	owned := false
	for _, t := range tokens {
		if t.RootID == sessionID {
			owned = true
			break
		}
	}
	if !owned {
		return ErrSessionNotFound
	}

	if err := e.store.RevokeChain(ctx, sessionID, RevokeReasonUserRevoked); err != nil {
		return e.wrapStoreErr(err)
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, AuditSessionRevoked, true, userID, sessionID, "", nil, nil)
	return nil
}

// RevokeAllSessions kills every chain the user owns, current one
// included.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrInvalidInput
	}
	if err := e.store.RevokeAllRefreshTokens(ctx, userID, RevokeReasonUserRevoked); err != nil {
		return e.wrapStoreErr(err)
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, AuditSessionRevoked, true, userID, "", "", nil, map[string]string{"scope": "all"})
	return nil
}
