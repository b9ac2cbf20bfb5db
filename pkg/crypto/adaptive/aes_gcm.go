// Package adaptive provides adaptive encryption with automatic algorithm selection.
package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// AESGCM implements AES-GCM authenticated encryption.
type AESGCM struct {
	baseCipher
}

// NewAESGCM creates a new AES-GCM cipher.
//
// Key must be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256.
func NewAESGCM(key []byte) (*AESGCM, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, errors.New("invalid key size for AES-GCM: must be 16, 24, or 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESGCM{
		baseCipher: baseCipher{aead: aead},
	}, nil
}

// Type returns the cipher type.
func (c *AESGCM) Type() CipherType {
	return CipherAESGCM
}

// Encrypt seals plaintext with additional data under nonce.
func (c *AESGCM) Encrypt(nonce, plaintext, additionalData []byte) ([]byte, []byte, error) {
	return c.encrypt(nonce, plaintext, additionalData)
}

// Decrypt opens ciphertext and tag with additional data under nonce.
func (c *AESGCM) Decrypt(nonce, ciphertext, tag, additionalData []byte) ([]byte, error) {
	return c.decrypt(nonce, ciphertext, tag, additionalData)
}
