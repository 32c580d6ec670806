package praxis

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func totpTestManager() *totpManager {
	return newTOTPManager(TOTPConfig{
		Issuer: "praxis",
		Digits: 6,
		Period: 30,
		Skew:   1,
	})
}

func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}

func TestTOTPGenerate(t *testing.T) {
	m := totpTestManager()
	secret, uri, err := m.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if secret == "" {
		t.Fatal("expected a secret")
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") || !strings.Contains(uri, "alice%40example.com") {
		t.Fatalf("unexpected provisioning URI: %s", uri)
	}
}

func TestTOTPVerifyReturnsMatchedStep(t *testing.T) {
	m := totpTestManager()
	secret, _, err := m.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	now := time.Unix(1893456000, 0) // step boundary
	counter, ok := m.Verify(secret, totpCodeAt(t, secret, now), now)
	if !ok {
		t.Fatal("expected current-step code to verify")
	}
	if counter != uint64(now.Unix()/30) {
		t.Fatalf("expected counter %d, got %d", now.Unix()/30, counter)
	}
}

func TestTOTPVerifySkewWindow(t *testing.T) {
	m := totpTestManager()
	secret, _, err := m.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	now := time.Unix(1893456000, 0)

	// Previous and next step both verify, each reporting its own step.
	prev := now.Add(-30 * time.Second)
	counter, ok := m.Verify(secret, totpCodeAt(t, secret, prev), now)
	if !ok {
		t.Fatal("expected previous-step code inside skew window")
	}
	if counter != uint64(prev.Unix()/30) {
		t.Fatalf("expected counter %d, got %d", prev.Unix()/30, counter)
	}

	next := now.Add(30 * time.Second)
	counter, ok = m.Verify(secret, totpCodeAt(t, secret, next), now)
	if !ok {
		t.Fatal("expected next-step code inside skew window")
	}
	if counter != uint64(next.Unix()/30) {
		t.Fatalf("expected counter %d, got %d", next.Unix()/30, counter)
	}

	// Two steps out is beyond the window.
	if _, ok := m.Verify(secret, totpCodeAt(t, secret, now.Add(60*time.Second)), now); ok {
		t.Fatal("expected code two steps out to fail")
	}
}

func TestTOTPVerifyWrongCode(t *testing.T) {
	m := totpTestManager()
	secret, _, err := m.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, ok := m.Verify(secret, "000000", time.Unix(1893456000, 0)); ok {
		t.Fatal("expected wrong code to fail")
	}
	if _, ok := m.Verify(secret, "not-a-code", time.Unix(1893456000, 0)); ok {
		t.Fatal("expected malformed code to fail")
	}
}
