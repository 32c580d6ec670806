package praxis

import (
	"context"
	"time"
)

// TokenPair is the issued credential set. AccessExpiresAt lets callers
// schedule a silent refresh before the access token lapses.
type TokenPair struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	RefreshToken    string    `json:"refresh_token"`
	RefreshExpires  time.Time `json:"refresh_expires_at"`
}

// LoginResult is the outcome of the first login step. When SecondFactor
// is true, Tokens is empty and ChallengeID must be presented to
// ConfirmLogin2FA (or a WebAuthn authentication ceremony) to finish.
type LoginResult struct {
	UserID       string
	SecondFactor bool
	ChallengeID  string
	Tokens       TokenPair

	// BackupCodesRemaining is set when a backup code completed the
	// login, so the client can warn the user to regenerate a dwindling
	// set. Nil on every other path.
	BackupCodesRemaining *int
}

// DeviceInfo describes the client presenting a credential. IP and
// Fingerprint are stored encrypted; UserAgent is stored as given.
type DeviceInfo struct {
	IP          string
	UserAgent   string
	Fingerprint string
}

// SessionInfo is one active refresh chain as shown to the account owner.
type SessionInfo struct {
	ID          string    `json:"id"`
	Device      string    `json:"device"`
	IP          string    `json:"ip,omitempty"`
	Location    string    `json:"location,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	LastRotated time.Time `json:"last_rotated"`
	ExpiresAt   time.Time `json:"expires_at"`
	Current     bool      `json:"current"`
}

// TOTPEnrollment is returned by BeginTOTPEnrollment. The secret and URI
// are shown to the user exactly once.
type TOTPEnrollment struct {
	SecretBase32 string
	OTPAuthURI   string
}

// LoginHistoryEntry is a decrypted view of one audit row.
type LoginHistoryEntry struct {
	At          time.Time `json:"at"`
	IP          string    `json:"ip,omitempty"`
	Location    string    `json:"location,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Method      string    `json:"method"`
	Success     bool      `json:"success"`
	FailReason  string    `json:"fail_reason,omitempty"`
	NewDevice   bool      `json:"new_device,omitempty"`
	NewLocation bool      `json:"new_location,omitempty"`
}

// WebAuthnCredentialInfo is a credential as listed to the account owner.
type WebAuthnCredentialInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	DeviceType string     `json:"device_type,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Mailer delivers outbound mail. Implementations live outside this
// module; delivery failure is logged and audited but never surfaced to
// the requester.
type Mailer interface {
	SendResetLink(ctx context.Context, to, link string) error
}

// Location is the result of a geo-IP lookup.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// GeoIP resolves an IP address to a coarse location. Best effort: a
// failed lookup leaves the location empty.
type GeoIP interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// Logger is the minimal logging surface the engine needs. *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}
