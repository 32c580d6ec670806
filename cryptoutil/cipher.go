package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

const keySize = 32

var (
	// ErrInvalidKey is returned when the cipher key is not 32 bytes.
	ErrInvalidKey = errors.New("cipher key must be 32 bytes")
	// ErrCiphertextFormat is returned when a ciphertext is too short or fails authentication.
	ErrCiphertextFormat = errors.New("invalid ciphertext")
)

// Cipher performs AES-256-GCM encryption of at-rest secrets (TOTP secrets,
// client IPs, device fingerprints). Ciphertexts are nonce-prefixed and
// self-authenticating.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher constructs a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce||ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed ciphertext produced by Encrypt.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) < c.aead.NonceSize() {
		return nil, ErrCiphertextFormat
	}
	nonce, sealed := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrCiphertextFormat
	}
	return plain, nil
}

// EncryptString is Encrypt for string plaintexts.
func (c *Cipher) EncryptString(plaintext string) ([]byte, error) {
	return c.Encrypt([]byte(plaintext))
}

// DecryptString is Decrypt returning a string.
func (c *Cipher) DecryptString(data []byte) (string, error) {
	plain, err := c.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
