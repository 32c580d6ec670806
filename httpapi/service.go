package httpapi

import (
	"context"
	"io"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	praxis "github.com/praxis-id/praxis"
)

// Service is the slice of the engine the router needs. *praxis.Engine
// satisfies it; tests substitute fakes.
type Service interface {
	Login(ctx context.Context, email, pass string, device praxis.DeviceInfo) (*praxis.LoginResult, error)
	ConfirmLogin2FA(ctx context.Context, challengeID, code string, device praxis.DeviceInfo) (*praxis.LoginResult, error)
	Disable2FA(ctx context.Context, userID, code string) error
	BeginTOTPEnrollment(ctx context.Context, userID string) (*praxis.TOTPEnrollment, error)
	ConfirmTOTPEnrollment(ctx context.Context, userID, code string) ([]string, error)

	RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error)
	RemainingBackupCodes(ctx context.Context, userID string) (int, error)

	BeginWebAuthnRegistration(ctx context.Context, userID, credentialName string) (string, *protocol.CredentialCreation, error)
	FinishWebAuthnRegistration(ctx context.Context, userID, ceremonyID string, response io.Reader) (*praxis.WebAuthnCredentialInfo, error)
	BeginWebAuthnLogin(ctx context.Context, email string) (string, *protocol.CredentialAssertion, error)
	BeginDiscoverableWebAuthnLogin(ctx context.Context) (string, *protocol.CredentialAssertion, error)
	FinishWebAuthnLogin(ctx context.Context, ceremonyID string, response io.Reader, device praxis.DeviceInfo) (*praxis.LoginResult, error)
	ListWebAuthnCredentials(ctx context.Context, userID string) ([]praxis.WebAuthnCredentialInfo, error)
	RenameWebAuthnCredential(ctx context.Context, userID, credentialID, name string) error
	RemoveWebAuthnCredential(ctx context.Context, userID, credentialID string) error

	Refresh(ctx context.Context, refreshToken string, device praxis.DeviceInfo) (praxis.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	VerifyAccessToken(tokenStr string) (userID, sessionID string, err error)

	Sessions(ctx context.Context, userID, currentToken string) ([]praxis.SessionInfo, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
	LoginHistory(ctx context.Context, userID string, limit int) ([]praxis.LoginHistoryEntry, error)

	RequestPasswordReset(ctx context.Context, email, ip string) error
	ResetPassword(ctx context.Context, token, newPassword, ip string) error
}

// Config tunes the HTTP layer, not the engine.
type Config struct {
	// CookieDomain is left empty for host-only cookies.
	CookieDomain string
	// Insecure drops the Secure cookie attribute for local development.
	Insecure bool
	// RetryAfter is advertised on 429 responses.
	RetryAfter time.Duration
}
