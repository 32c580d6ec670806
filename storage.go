package praxis

import (
	"context"
	"errors"
	"time"
)

// Storage-level sentinel errors. Repository implementations return these;
// the Engine maps them onto the caller-facing error taxonomy. For refresh
// tokens they double as the typed validation reasons: not-found, revoked,
// superseded (reuse), expired, absolute-lifetime-exceeded, value-mismatch.
var (
	ErrRecordNotFound        = errors.New("record not found")
	ErrDuplicateRecord       = errors.New("duplicate record")
	ErrTokenRevoked          = errors.New("refresh token revoked")
	ErrTokenSuperseded       = errors.New("refresh token superseded")
	ErrTokenExpired          = errors.New("refresh token expired")
	ErrChainLifetimeExceeded = errors.New("refresh chain absolute lifetime exceeded")
	ErrTokenValueMismatch    = errors.New("refresh token value mismatch")
)

// Refresh-token revocation reasons persisted in revoked_reason.
const (
	RevokeReasonLogout        = "logout"
	RevokeReasonSuperseded    = "superseded"
	RevokeReasonReuseDetected = "reuse_detected"
	RevokeReasonPasswordReset = "password_reset"
	RevokeReasonUserRevoked   = "user_revoked"
	RevokeReasonChainLifetime = "chain_lifetime"
)

// User is the identity record. PasswordHash is empty for WebAuthn-only
// accounts. The TOTP secret is stored encrypted and only decrypted inside a
// verification call.
type User struct {
	ID              string
	Email           string
	Username        string
	PasswordHash    string
	TOTPSecretEnc   []byte
	TOTPEnabled     bool
	TOTPLastCounter int64
	Verified        bool
	CreatedAt       time.Time
}

// RefreshToken is one persisted session credential. Tokens form rotation
// chains: each rotation inserts a child carrying ParentID and the chain's
// original RootID/RootIssuedAt so the absolute lifetime anchor survives
// arbitrarily many rotations.
type RefreshToken struct {
	ID            string
	UserID        string
	TokenHash     []byte
	ParentID      string
	RootID        string
	DeviceInfo    string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RootIssuedAt  time.Time
	Revoked       bool
	RevokedReason string
}

// BackupCode is one single-use recovery code, stored as an argon2id hash.
type BackupCode struct {
	ID       string
	UserID   string
	CodeHash string
	Used     bool
	UsedAt   *time.Time
}

// WebAuthnCredential binds a public-key credential to a user and
// authenticator.
type WebAuthnCredential struct {
	ID           string
	UserID       string
	CredentialID []byte
	PublicKey    []byte
	AAGUID       []byte
	SignCount    uint32
	Transports   []string
	DeviceType   string
	Name         string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}

// ResetToken is a single-use, time-boxed password-reset credential. The
// attempt counter caps online guessing independently of the expiry.
type ResetToken struct {
	ID                string
	UserID            string
	TokenHash         []byte
	ExpiresAt         time.Time
	Used              bool
	VerificationCount int
	RequestIP         string
	UsedIP            string
	CreatedAt         time.Time
}

// LoginRecord is one append-only audit entry. IP and fingerprint are stored
// encrypted for display and additionally as SHA-256 hashes so the anomaly
// heuristic can compare without decrypting.
type LoginRecord struct {
	ID              string
	UserID          string
	At              time.Time
	IPEnc           []byte
	IPHash          []byte
	FingerprintEnc  []byte
	FingerprintHash []byte
	UserAgent       string
	LocationJSON    []byte
	Success         bool
	FailReason      string
	Method          string
	DeviceType      string
	NewDevice       bool
	NewLocation     bool
}

// UserStore persists identity records.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	SetTOTP(ctx context.Context, userID string, secretEnc []byte, enabled bool) error
	UpdateTOTPCounter(ctx context.Context, userID string, counter int64) error
}

// RefreshTokenStore persists rotation chains. Rotate runs as one
// transaction with the presented row locked, so two concurrent rotations of
// the same token cannot both succeed: the loser observes the superseded row
// and receives ErrTokenSuperseded together with the old record.
type RefreshTokenStore interface {
	InsertRefreshToken(ctx context.Context, t *RefreshToken) error
	RefreshTokenByID(ctx context.Context, id string) (*RefreshToken, error)
	// Rotate validates the presented row under lock (revocation, hash,
	// idle expiry, absolute lifetime), marks it superseded, and inserts
	// next with parent/root linkage inherited from the old row. The old
	// record is returned even on validation failure so callers can act on
	// its owner.
	Rotate(ctx context.Context, oldID string, presentedHash []byte, next *RefreshToken, absoluteLifetime time.Duration) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id, reason string) error
	RevokeChain(ctx context.Context, rootID, reason string) error
	RevokeAllRefreshTokens(ctx context.Context, userID, reason string) error
	ActiveRefreshTokens(ctx context.Context, userID string) ([]*RefreshToken, error)
}

// BackupCodeStore persists recovery codes. Replace is atomic: a crash can
// never leave a mix of old and new codes.
type BackupCodeStore interface {
	ReplaceBackupCodes(ctx context.Context, userID string, codes []*BackupCode) error
	UnusedBackupCodes(ctx context.Context, userID string) ([]*BackupCode, error)
	// ConsumeBackupCode flips used false->true; it reports false when the
	// code was already consumed by a concurrent request.
	ConsumeBackupCode(ctx context.Context, id string) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
	DeleteBackupCodes(ctx context.Context, userID string) error
}

// WebAuthnCredentialStore persists public-key credentials.
type WebAuthnCredentialStore interface {
	InsertWebAuthnCredential(ctx context.Context, c *WebAuthnCredential) error
	WebAuthnCredentialsByUser(ctx context.Context, userID string) ([]*WebAuthnCredential, error)
	WebAuthnCredentialByCredentialID(ctx context.Context, credentialID []byte) (*WebAuthnCredential, error)
	UpdateWebAuthnCredentialUsage(ctx context.Context, id string, signCount uint32, lastUsedAt time.Time) error
	RenameWebAuthnCredential(ctx context.Context, userID, id, name string) error
	DeleteWebAuthnCredential(ctx context.Context, userID, id string) error
}

// ResetTokenStore persists password-reset tokens. ConsumeAndResetPassword
// is the atomic tail of a reset: mark the token used, swap the password
// hash, and revoke every refresh chain of the user in one transaction.
type ResetTokenStore interface {
	InsertResetToken(ctx context.Context, t *ResetToken) error
	ResetTokenByID(ctx context.Context, id string) (*ResetToken, error)
	InvalidateResetTokens(ctx context.Context, userID string) error
	IncrementResetAttempts(ctx context.Context, id string) (int, error)
	ConsumeAndResetPassword(ctx context.Context, tokenID, userID, newHash, usedIP string) error
}

// LoginHistoryStore appends and reads the login audit trail.
type LoginHistoryStore interface {
	AppendLoginRecord(ctx context.Context, r *LoginRecord) error
	LoginRecords(ctx context.Context, userID string, limit int) ([]*LoginRecord, error)
	// SeenLogin reports whether a successful login with the given IP hash
	// respectively fingerprint hash already exists for the user.
	SeenLogin(ctx context.Context, userID string, ipHash, fpHash []byte) (ipSeen, fpSeen bool, err error)
	PruneLoginRecords(ctx context.Context, before time.Time) (int64, error)
}

// Store aggregates all persistence used by the Engine. The canonical
// implementation lives in the store package on top of Postgres; tests use
// in-memory fakes.
type Store interface {
	UserStore
	RefreshTokenStore
	BackupCodeStore
	WebAuthnCredentialStore
	ResetTokenStore
	LoginHistoryStore
}
