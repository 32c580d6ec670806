package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// SecretSize is the length of the random half of an opaque token.
	SecretSize = 32

	opaqueTokenRawSize = 16 + SecretSize
)

// ErrTokenFormat is returned when an opaque token fails structural decoding.
var ErrTokenFormat = errors.New("invalid token format")

// NewSecret returns SecretSize bytes of cryptographic randomness.
func NewSecret() ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the at-rest form of an opaque-token secret. Only this hash
// is ever persisted; the plaintext secret exists solely inside the token
// handed to the caller.
func HashSecret(secret [SecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// HashBytes hashes an arbitrary byte slice with SHA-256.
func HashBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// HashEqual compares two hashes in constant time.
func HashEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// EncodeOpaqueToken packs a record id and its secret into the opaque wire
// form: base64url(uuid bytes || secret), no padding.
func EncodeOpaqueToken(id string, secret [SecretSize]byte) (string, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return "", ErrTokenFormat
	}

	var raw [opaqueTokenRawSize]byte
	copy(raw[:16], uid[:])
	copy(raw[16:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeOpaqueToken splits an opaque token back into record id and secret.
func DecodeOpaqueToken(token string) (string, [SecretSize]byte, error) {
	var secret [SecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, ErrTokenFormat
	}
	if len(raw) != opaqueTokenRawSize {
		return "", secret, ErrTokenFormat
	}

	var uid uuid.UUID
	copy(uid[:], raw[:16])
	copy(secret[:], raw[16:])
	return uid.String(), secret, nil
}

// NewChallengeID returns a compact random identifier for short-lived
// challenges (pending-2FA markers, WebAuthn ceremonies).
func NewChallengeID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// BackupCodeAlphabet excludes characters that read ambiguously when a user
// transcribes a printed code (0/O, 1/I/L).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBackupCode produces a random code of length chars from
// BackupCodeAlphabet, grouped with a hyphen for readability when length is
// even and at least 8 (e.g. ABCD-EFGH).
func NewBackupCode(length int) (string, error) {
	if length < 6 || length > 32 {
		return "", errors.New("invalid backup code length")
	}

	var b strings.Builder
	b.Grow(length + 1)
	alphabetLen := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		if i > 0 && length >= 8 && length%2 == 0 && i == length/2 {
			b.WriteByte('-')
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CanonicalizeBackupCode strips separators and whitespace and upper-cases
// user input before hashing or comparison.
func CanonicalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
