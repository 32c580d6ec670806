package praxis

import "errors"

// Error classes, grouped by the way callers are expected to react.
// Validation and authentication failures are deliberately coarse so that
// responses cannot be used to enumerate accounts or factors.
var (
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrInvalidInput covers malformed requests: empty fields, bad email
	// shape, oversized payloads.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned for both unknown email and wrong
	// password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSecondFactorRequired signals that the password was accepted but a
	// second factor must complete the login.
	ErrSecondFactorRequired = errors.New("second factor required")

	// ErrSecondFactorInvalid is returned for every failed step-up attempt,
	// whether the TOTP code was wrong, the backup code unknown, or the
	// challenge stale. Callers cannot tell which factor failed.
	ErrSecondFactorInvalid = errors.New("second factor verification failed")

	// ErrChallengeExpired is returned when a pending login challenge has
	// timed out, been consumed, or exceeded its attempt budget.
	ErrChallengeExpired = errors.New("login challenge expired")

	// ErrSecondFactorNotEnrolled is returned when a step-up operation is
	// attempted for a user with no enrolled second factor.
	ErrSecondFactorNotEnrolled = errors.New("second factor not enrolled")

	// ErrSecondFactorAlreadyEnrolled guards duplicate TOTP enrollment.
	ErrSecondFactorAlreadyEnrolled = errors.New("second factor already enrolled")

	// ErrWebAuthnVerification is the single error surfaced for every
	// WebAuthn ceremony failure. Detail stays in logs and audit events.
	ErrWebAuthnVerification = errors.New("webauthn verification failed")

	// ErrLastCredential is returned when removing a WebAuthn credential
	// would leave a passwordless account with no way to sign in.
	ErrLastCredential = errors.New("cannot remove last remaining credential")

	// ErrRefreshInvalid is returned for refresh tokens that are unknown,
	// malformed, expired, revoked, or past the absolute chain lifetime.
	ErrRefreshInvalid = errors.New("refresh token invalid")

	// ErrRefreshReused is returned when a superseded refresh token is
	// presented. By that point every token of the user has been revoked.
	ErrRefreshReused = errors.New("refresh token reuse detected")

	// ErrResetInvalid covers every failed password-reset confirmation:
	// unknown token, expired, already used, attempts exceeded.
	ErrResetInvalid = errors.New("password reset token invalid")

	// ErrPasswordPolicy is returned when a new password fails the policy
	// or matches the current one.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrRateLimited is returned when a fixed-window limit is exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrBackendUnavailable wraps infrastructure failures (database,
	// Redis) that the caller can only retry.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrSessionNotFound is returned when revoking a session the user does
	// not own or that no longer exists.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAccessTokenInvalid is returned for access tokens that fail
	// signature, expiry, or claim checks.
	ErrAccessTokenInvalid = errors.New("access token invalid")
)
