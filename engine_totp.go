package praxis

import (
	"context"
)

// BeginTOTPEnrollment provisions a new authenticator secret for the
// user. The secret is stored encrypted but not yet active; enrollment
// only takes effect once ConfirmTOTPEnrollment has seen a live code
// from the authenticator. Calling Begin again before confirmation
// replaces the provisional secret.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, userID string) (*TOTPEnrollment, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidInput
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	if user.TOTPEnabled {
		return nil, ErrSecondFactorAlreadyEnrolled
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}
	secret, uri, err := e.totp.Generate(account)
	if err != nil {
		return nil, err
	}

	enc, err := e.cipher.EncryptString(secret)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetTOTP(ctx, userID, enc, false); err != nil {
		return nil, e.wrapStoreErr(err)
	}

	return &TOTPEnrollment{
		SecretBase32: secret,
		OTPAuthURI:   uri,
	}, nil
}

// ConfirmTOTPEnrollment activates the provisional secret after
// verifying one live code, proving the authenticator actually holds
// it. The initial backup-code batch is generated in the same step and
// returned in plaintext exactly once.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" || code == "" {
		return nil, ErrInvalidInput
	}

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, e.wrapStoreErr(err)
	}
	if user.TOTPEnabled {
		return nil, ErrSecondFactorAlreadyEnrolled
	}
	if len(user.TOTPSecretEnc) == 0 {
		return nil, ErrSecondFactorNotEnrolled
	}

	secret, err := e.cipher.DecryptString(user.TOTPSecretEnc)
	if err != nil {
		return nil, err
	}
	counter, ok := e.totp.Verify(secret, code, e.now())
	if !ok {
		e.emitAudit(ctx, AuditTOTPEnroll, false, userID, "", "", ErrSecondFactorInvalid, nil)
		return nil, ErrSecondFactorInvalid
	}

	if err := e.store.SetTOTP(ctx, userID, user.TOTPSecretEnc, true); err != nil {
		return nil, e.wrapStoreErr(err)
	}
	// The confirmation code itself must not be replayable at login.
	if err := e.store.UpdateTOTPCounter(ctx, userID, int64(counter)); err != nil {
		return nil, e.wrapStoreErr(err)
	}

	codes, err := e.generateBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditTOTPEnroll, true, userID, "", "", nil, nil)
	return codes, nil
}
