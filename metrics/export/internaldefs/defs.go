package internaldefs

import (
	praxis "github.com/praxis-id/praxis"
)

// CounterDef binds one engine counter to its export name and help text.
type CounterDef struct {
	ID   praxis.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order. Both
// exporters iterate this slice so the two surfaces can never drift.
var CounterDefs = []CounterDef{
	{ID: praxis.MetricLoginSuccess, Name: praxis.MetricLoginSuccess.Name(), Help: "Successful logins, all methods."},
	{ID: praxis.MetricLoginFailure, Name: praxis.MetricLoginFailure.Name(), Help: "Failed password logins."},
	{ID: praxis.MetricLoginRateLimited, Name: praxis.MetricLoginRateLimited.Name(), Help: "Rate-limited login attempts."},
	{ID: praxis.MetricSecondFactorRequired, Name: praxis.MetricSecondFactorRequired.Name(), Help: "Logins parked on a second-factor challenge."},
	{ID: praxis.MetricSecondFactorSuccess, Name: praxis.MetricSecondFactorSuccess.Name(), Help: "Completed second-factor verifications."},
	{ID: praxis.MetricSecondFactorFailure, Name: praxis.MetricSecondFactorFailure.Name(), Help: "Failed second-factor verifications."},
	{ID: praxis.MetricChallengeExpired, Name: praxis.MetricChallengeExpired.Name(), Help: "Login challenges that expired or ran out of attempts."},
	{ID: praxis.MetricRefreshSuccess, Name: praxis.MetricRefreshSuccess.Name(), Help: "Successful refresh-token rotations."},
	{ID: praxis.MetricRefreshFailure, Name: praxis.MetricRefreshFailure.Name(), Help: "Rejected refresh attempts."},
	{ID: praxis.MetricRefreshReuseDetected, Name: praxis.MetricRefreshReuseDetected.Name(), Help: "Superseded tokens presented; all user sessions revoked."},
	{ID: praxis.MetricTOTPReplayRejected, Name: praxis.MetricTOTPReplayRejected.Name(), Help: "Valid TOTP codes rejected as time-step replays."},
	{ID: praxis.MetricBackupCodeUsed, Name: praxis.MetricBackupCodeUsed.Name(), Help: "Backup codes consumed."},
	{ID: praxis.MetricBackupCodeRegenerated, Name: praxis.MetricBackupCodeRegenerated.Name(), Help: "Backup-code batch regenerations."},
	{ID: praxis.MetricWebAuthnRegistered, Name: praxis.MetricWebAuthnRegistered.Name(), Help: "WebAuthn credentials registered."},
	{ID: praxis.MetricWebAuthnLoginSuccess, Name: praxis.MetricWebAuthnLoginSuccess.Name(), Help: "Successful WebAuthn logins."},
	{ID: praxis.MetricWebAuthnLoginFailure, Name: praxis.MetricWebAuthnLoginFailure.Name(), Help: "Failed WebAuthn ceremonies."},
	{ID: praxis.MetricWebAuthnCloneRejected, Name: praxis.MetricWebAuthnCloneRejected.Name(), Help: "Assertions rejected for sign-counter regression."},
	{ID: praxis.MetricResetRequested, Name: praxis.MetricResetRequested.Name(), Help: "Password-reset requests accepted."},
	{ID: praxis.MetricResetCompleted, Name: praxis.MetricResetCompleted.Name(), Help: "Password resets completed."},
	{ID: praxis.MetricResetFailed, Name: praxis.MetricResetFailed.Name(), Help: "Failed reset-token redemptions."},
	{ID: praxis.MetricResetRateLimited, Name: praxis.MetricResetRateLimited.Name(), Help: "Rate-limited reset requests."},
	{ID: praxis.MetricLogout, Name: praxis.MetricLogout.Name(), Help: "Logout operations."},
	{ID: praxis.MetricSessionRevoked, Name: praxis.MetricSessionRevoked.Name(), Help: "Sessions revoked by the account owner."},
	{ID: praxis.MetricAnomalousLogin, Name: praxis.MetricAnomalousLogin.Name(), Help: "Successful logins from a first-seen device or location."},
	{ID: praxis.MetricMailFailure, Name: praxis.MetricMailFailure.Name(), Help: "Best-effort mail deliveries that failed."},
}
