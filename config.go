package praxis

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/praxis-id/praxis/password"
)

// Config carries every tunable of the engine. Zero values are filled in
// from defaultConfig by the builder; Validate rejects combinations that
// would weaken the credential lifecycle.
type Config struct {
	Token      TokenConfig
	Password   PasswordConfig
	TOTP       TOTPConfig
	BackupCode BackupCodeConfig
	WebAuthn   WebAuthnConfig
	Challenge  ChallengeConfig
	Reset      ResetConfig
	Limits     LimitsConfig
	History    HistoryConfig
	Audit      AuditConfig
	Metrics    MetricsConfig

	// EncryptionKey protects TOTP secrets, IPs and device fingerprints at
	// rest. Must be exactly 32 bytes.
	EncryptionKey []byte
}

// TokenConfig governs access-token signing and refresh-token lifetimes.
type TokenConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	AbsoluteLifetime time.Duration

	SigningMethod string // "EdDSA" or "HS256"
	PrivateKey    ed25519.PrivateKey
	PublicKey     ed25519.PublicKey
	HMACSecret    []byte

	Issuer   string
	Audience string
	Leeway   time.Duration
}

// PasswordConfig bounds password length and carries the argon2 cost
// parameters.
type PasswordConfig struct {
	MinLength int
	MaxLength int
	Argon     password.Config
}

// TOTPConfig describes the provisioned authenticator parameters.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// BackupCodeConfig sizes the recovery-code batch.
type BackupCodeConfig struct {
	Count  int
	Length int
}

// WebAuthnConfig is the relying-party identity plus the ceremony
// session lifetime.
type WebAuthnConfig struct {
	RPDisplayName string
	RPID          string
	RPOrigins     []string
	CeremonyTTL   time.Duration
}

// ChallengeConfig bounds the pending second-factor login challenge.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// ResetConfig governs the password-reset flow. LinkBase is the URL
// prefix the opaque token is appended to in the reset email.
type ResetConfig struct {
	TokenTTL          time.Duration
	MaxVerifyAttempts int
	LinkBase          string
}

// LimitsConfig holds the fixed-window rate limits enforced in Redis.
type LimitsConfig struct {
	LoginMaxAttempts   int
	LoginWindow        time.Duration
	SecondFactorMax    int
	SecondFactorWindow time.Duration
	ResetMaxRequests   int
	ResetWindow        time.Duration
}

// HistoryConfig bounds login-history retention and the decrypt cache.
type HistoryConfig struct {
	MaxRecords       int
	Retention        time.Duration
	DecryptCacheSize int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the library defaults. Callers overlay key
// material and site-specific fields before passing it to the builder.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       14 * 24 * time.Hour,
			AbsoluteLifetime: 90 * 24 * time.Hour,
			SigningMethod:    "EdDSA",
			Issuer:           "praxis",
			Leeway:           30 * time.Second,
		},
		Password: PasswordConfig{
			MinLength: 10,
			MaxLength: 128,
			Argon:     password.DefaultConfig(),
		},
		TOTP: TOTPConfig{
			Issuer: "praxis",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		BackupCode: BackupCodeConfig{
			Count:  10,
			Length: 10,
		},
		WebAuthn: WebAuthnConfig{
			CeremonyTTL: 2 * time.Minute,
		},
		Challenge: ChallengeConfig{
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
		},
		Reset: ResetConfig{
			TokenTTL:          30 * time.Minute,
			MaxVerifyAttempts: 5,
		},
		Limits: LimitsConfig{
			LoginMaxAttempts:   10,
			LoginWindow:        15 * time.Minute,
			SecondFactorMax:    5,
			SecondFactorWindow: time.Minute,
			ResetMaxRequests:   3,
			ResetWindow:        time.Hour,
		},
		History: HistoryConfig{
			MaxRecords:       50,
			Retention:        180 * 24 * time.Hour,
			DecryptCacheSize: 1024,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks cross-field consistency. It is called once at build
// time so flow code can assume a sane config.
func (c Config) Validate() error {
	if len(c.EncryptionKey) != 32 {
		return errors.New("config: EncryptionKey must be 32 bytes")
	}
	switch c.Token.SigningMethod {
	case "EdDSA":
		if len(c.Token.PrivateKey) != ed25519.PrivateKeySize {
			return errors.New("config: EdDSA requires a private key")
		}
	case "HS256":
		if len(c.Token.HMACSecret) < 32 {
			return errors.New("config: HS256 secret must be at least 32 bytes")
		}
	default:
		return fmt.Errorf("config: unsupported signing method %q", c.Token.SigningMethod)
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.Token.AbsoluteLifetime < c.Token.RefreshTTL {
		return errors.New("config: absolute lifetime must cover at least one refresh TTL")
	}
	if c.Password.MinLength < 8 {
		return errors.New("config: password minimum length below 8")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("config: password maximum below minimum")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("config: totp digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 || c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("config: totp period/skew out of range")
	}
	if c.BackupCode.Count <= 0 || c.BackupCode.Length < 8 {
		return errors.New("config: backup code batch too small")
	}
	if c.Challenge.TTL <= 0 || c.Challenge.MaxAttempts <= 0 {
		return errors.New("config: challenge TTL and attempts must be positive")
	}
	if c.Reset.TokenTTL <= 0 || c.Reset.MaxVerifyAttempts <= 0 {
		return errors.New("config: reset TTL and attempts must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.EncryptionKey = append([]byte(nil), cfg.EncryptionKey...)
	out.Token.PrivateKey = append(ed25519.PrivateKey(nil), cfg.Token.PrivateKey...)
	out.Token.PublicKey = append(ed25519.PublicKey(nil), cfg.Token.PublicKey...)
	out.Token.HMACSecret = append([]byte(nil), cfg.Token.HMACSecret...)
	out.WebAuthn.RPOrigins = append([]string(nil), cfg.WebAuthn.RPOrigins...)
	return out
}
