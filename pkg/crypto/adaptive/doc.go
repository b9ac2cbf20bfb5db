// Package adaptive provides authenticated encryption for credvault records.
//
// This package implements a cipher abstraction that automatically
// selects the best available encryption algorithm based on hardware
// capabilities.
//
// Supported Algorithms:
//
//   - AES-256-GCM: Preferred when hardware AES support is available
//   - ChaCha20-Poly1305: Fallback for systems without AES-NI
//
// Nonces are supplied by the caller and must never repeat for a key.
// Ciphertext and tag are returned as separate slices so a store can
// persist them as self-describing fields:
//
//	c, err := adaptive.New(key)
//	nonce, err := adaptive.NewNonce(c)
//	ct, tag, err := c.Encrypt(nonce, plaintext, aad)
//	plaintext, err := c.Decrypt(nonce, ct, tag, aad)
package adaptive
