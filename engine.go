package praxis

import (
	"context"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/praxis-id/praxis/cryptoutil"
	"github.com/praxis-id/praxis/internal"
	"github.com/praxis-id/praxis/internal/limiters"
	"github.com/praxis-id/praxis/internal/stores"
	"github.com/praxis-id/praxis/jwt"
	"github.com/praxis-id/praxis/password"
)

// Engine is the credential-lifecycle core. It is built once via the
// Builder and safe for concurrent use; all state lives in the Store,
// Redis, and the atomic metrics counters.
type Engine struct {
	cfg   Config
	store Store
	redis redis.UniversalClient

	hasher  *password.Hasher
	tokens  *jwt.Manager
	cipher  *cryptoutil.Cipher
	decrypt *cryptoutil.DecryptCache
	totp    *totpManager
	wan     *webauthn.WebAuthn

	pending    *stores.Pending2FAStore
	ceremonies *stores.CeremonyStore

	loginLimiter *limiters.LoginLimiter
	resetLimiter *limiters.ResetLimiter
	sfLimiter    *limiters.SecondFactorLimiter

	mailer Mailer
	geoip  GeoIP

	audit   *auditDispatcher
	metrics *Metrics
	logger  Logger

	// now is replaced in tests.
	now func() time.Time
}

// Close drains the audit dispatcher. The store and Redis client are
// owned by the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) logf(format string, v ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf(format, v...)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, sessionID, ip string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ip,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}

// issueTokens starts a fresh refresh chain for the user and signs an
// access token bound to it. The chain root doubles as the session id.
func (e *Engine) issueTokens(ctx context.Context, userID string, device DeviceInfo) (TokenPair, error) {
	secret, err := internal.NewSecret()
	if err != nil {
		return TokenPair{}, err
	}
	hash := internal.HashSecret(secret)

	now := e.now()
	id := uuid.NewString()
	record := &RefreshToken{
		ID:           id,
		UserID:       userID,
		TokenHash:    hash[:],
		RootID:       id,
		DeviceInfo:   device.UserAgent,
		IssuedAt:     now,
		ExpiresAt:    now.Add(e.cfg.Token.RefreshTTL),
		RootIssuedAt: now,
	}
	if err := e.store.InsertRefreshToken(ctx, record); err != nil {
		return TokenPair{}, e.wrapStoreErr(err)
	}

	wire, err := internal.EncodeOpaqueToken(id, secret)
	if err != nil {
		return TokenPair{}, err
	}

	access, accessExp, err := e.tokens.Issue(userID, id)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		RefreshToken:    wire,
		RefreshExpires:  record.ExpiresAt,
	}, nil
}

// wrapStoreErr folds infrastructure failures into the public taxonomy
// while keeping sentinel store errors intact for flow code.
func (e *Engine) wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrDuplicateRecord),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrTokenSuperseded),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrChainLifetimeExceeded),
		errors.Is(err, ErrTokenValueMismatch):
		return err
	}
	e.logf("store: %v", err)
	return errors.Join(ErrBackendUnavailable, err)
}

// VerifyAccessToken validates signature and registered claims and
// returns the subject and session id.
func (e *Engine) VerifyAccessToken(tokenStr string) (userID, sessionID string, err error) {
	if e == nil || e.tokens == nil {
		return "", "", ErrEngineNotReady
	}
	claims, err := e.tokens.Verify(tokenStr)
	if err != nil {
		return "", "", ErrAccessTokenInvalid
	}
	return claims.UserID, claims.SessionID, nil
}
