// Package adaptive provides adaptive encryption with automatic algorithm selection.
//
// It selects the optimal cipher based on hardware capabilities:
// - AES-GCM when AES-NI is available
// - ChaCha20-Poly1305 otherwise
package adaptive

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"

	// CipherAuto selects a cipher from the hardware at construction time.
	CipherAuto CipherType = "auto"
)

// TagLength is the authentication tag size of every supported cipher.
const TagLength = 16

// Errors returned by ciphers in this package.
var (
	// ErrIntegrity is returned when authentication of a ciphertext fails.
	// No plaintext is ever returned alongside it.
	ErrIntegrity = errors.New("adaptive: message authentication failed")

	// ErrNonceSize is returned when a nonce has the wrong length.
	ErrNonceSize = errors.New("adaptive: invalid nonce size")

	// ErrTagSize is returned when a tag has the wrong length.
	ErrTagSize = errors.New("adaptive: invalid tag size")
)

// Cipher provides authenticated encryption with caller-supplied nonces.
//
// The ciphertext and the authentication tag are returned separately so they
// can be persisted as distinct fields.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Encrypt seals plaintext under nonce, binding additionalData.
	Encrypt(nonce, plaintext, additionalData []byte) (ciphertext, tag []byte, err error)

	// Decrypt opens ciphertext and tag under nonce, checking additionalData.
	Decrypt(nonce, ciphertext, tag, additionalData []byte) ([]byte, error)

	// NonceSize returns the nonce size in bytes.
	NonceSize() int

	// TagSize returns the authentication tag size in bytes.
	TagSize() int
}

// New creates a new adaptive cipher with the given key.
//
// It automatically selects the optimal algorithm based on hardware.
func New(key []byte) (Cipher, error) {
	if hasAESNI() {
		return NewAESGCM(key)
	}
	return NewChaCha20(key)
}

// NewWithType creates a cipher of the specified type.
func NewWithType(key []byte, cipherType CipherType) (Cipher, error) {
	switch cipherType {
	case CipherAESGCM:
		return NewAESGCM(key)
	case CipherChaCha20:
		return NewChaCha20(key)
	case CipherAuto, "":
		return New(key)
	default:
		return nil, errors.New("unknown cipher type: " + string(cipherType))
	}
}

// ParseType parses a configured cipher name.
func ParseType(s string) (CipherType, error) {
	switch t := CipherType(s); t {
	case CipherAESGCM, CipherChaCha20, CipherAuto:
		return t, nil
	case "":
		return CipherAuto, nil
	default:
		return "", fmt.Errorf("unknown cipher type: %q", s)
	}
}

// Resolve turns CipherAuto into the concrete type New would pick.
func Resolve(t CipherType) CipherType {
	if t != CipherAuto && t != "" {
		return t
	}
	if hasAESNI() {
		return CipherAESGCM
	}
	return CipherChaCha20
}

// NewNonce returns a fresh random nonce sized for c.
func NewNonce(c Cipher) ([]byte, error) {
	nonce := make([]byte, c.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("adaptive: generate nonce: %w", err)
	}
	return nonce, nil
}

// hasAESNI checks if AES-NI hardware acceleration is available.
// On amd64 and arm64, Go's crypto/aes uses hardware acceleration when available.
func hasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}

// baseCipher provides common functionality for ciphers.
type baseCipher struct {
	aead cipher.AEAD
}

// NonceSize returns the nonce size in bytes.
func (c *baseCipher) NonceSize() int {
	return c.aead.NonceSize()
}

// TagSize returns the authentication tag size in bytes.
func (c *baseCipher) TagSize() int {
	return c.aead.Overhead()
}

// encrypt seals plaintext and splits the trailing tag off the AEAD output.
func (c *baseCipher) encrypt(nonce, plaintext, additionalData []byte) ([]byte, []byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, nil, ErrNonceSize
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, additionalData)
	split := len(sealed) - c.aead.Overhead()

	ciphertext := make([]byte, split)
	copy(ciphertext, sealed[:split])
	tag := make([]byte, c.aead.Overhead())
	copy(tag, sealed[split:])
	return ciphertext, tag, nil
}

// decrypt rejoins ciphertext and tag and performs authenticated decryption.
func (c *baseCipher) decrypt(nonce, ciphertext, tag, additionalData []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, ErrNonceSize
	}
	if len(tag) != c.aead.Overhead() {
		return nil, ErrTagSize
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, additionalData)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
