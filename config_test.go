package praxis

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func validEdDSAConfig(t *testing.T) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	cfg := defaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.EncryptionKey = []byte(strings.Repeat("k", 32))
	return cfg
}

func TestConfigValidateAccepts(t *testing.T) {
	cfg := validEdDSAConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate rejected a sane config: %v", err)
	}

	hs := engineTestConfig()
	if err := hs.Validate(); err != nil {
		t.Fatalf("Validate rejected HS256 config: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short encryption key", func(c *Config) { c.EncryptionKey = []byte("short") }},
		{"missing signing key", func(c *Config) { c.Token.PrivateKey = nil }},
		{"unknown signing method", func(c *Config) { c.Token.SigningMethod = "RS256" }},
		{"short hmac secret", func(c *Config) {
			c.Token.SigningMethod = "HS256"
			c.Token.HMACSecret = []byte("short")
		}},
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"absolute lifetime below refresh ttl", func(c *Config) { c.Token.AbsoluteLifetime = c.Token.RefreshTTL - time.Hour }},
		{"weak minimum password length", func(c *Config) { c.Password.MinLength = 4 }},
		{"password bounds inverted", func(c *Config) { c.Password.MaxLength = c.Password.MinLength - 1 }},
		{"odd totp digits", func(c *Config) { c.TOTP.Digits = 7 }},
		{"excessive totp skew", func(c *Config) { c.TOTP.Skew = 5 }},
		{"tiny backup codes", func(c *Config) { c.BackupCode.Length = 4 }},
		{"zero challenge attempts", func(c *Config) { c.Challenge.MaxAttempts = 0 }},
		{"zero reset ttl", func(c *Config) { c.Reset.TokenTTL = 0 }},
	}

	for _, tc := range cases {
		cfg := validEdDSAConfig(t)
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected Validate to reject", tc.name)
		}
	}
}

func TestCloneConfigDetachesKeyMaterial(t *testing.T) {
	cfg := validEdDSAConfig(t)
	clone := cloneConfig(cfg)

	cfg.EncryptionKey[0] ^= 0xFF
	cfg.Token.PrivateKey[0] ^= 0xFF

	if clone.EncryptionKey[0] == cfg.EncryptionKey[0] {
		t.Fatal("expected encryption key to be copied")
	}
	if clone.Token.PrivateKey[0] == cfg.Token.PrivateKey[0] {
		t.Fatal("expected private key to be copied")
	}
}
