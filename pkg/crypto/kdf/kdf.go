// Package kdf derives vault keys from master passphrases.
package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Derivation errors.
var (
	ErrInvalidParameters = errors.New("kdf: parameters below safety floor")
	ErrCostTooHigh       = errors.New("kdf: parameters above cost ceiling")
	ErrKeyTooShort       = errors.New("kdf: master key too short")
)

const (
	// SaltLength is the salt length generated by NewSalt.
	SaltLength = 16

	// KeyLength is the derived key length used by the vault.
	KeyLength = 32
)

// Params are the Argon2id cost parameters persisted in the vault header.
type Params struct {
	Time      uint32 // passes over memory
	MemoryKiB uint32 // memory cost in KiB
	Threads   uint8  // parallelism
	KeyLen    uint32 // output length in bytes
}

// DefaultParams returns the parameters used for new vaults.
func DefaultParams() Params {
	return Params{
		Time:      3,
		MemoryKiB: 64 * 1024,
		Threads:   4,
		KeyLen:    KeyLength,
	}
}

// Floor is the minimum acceptable cost for a derivation.
type Floor struct {
	Time       uint32
	MemoryKiB  uint32
	Threads    uint8
	KeyLen     uint32
	SaltLength int
}

// DefaultFloor is enforced by Derive.
var DefaultFloor = Floor{
	Time:       1,
	MemoryKiB:  8 * 1024,
	Threads:    1,
	KeyLen:     KeyLength,
	SaltLength: SaltLength,
}

// Check reports whether p and salt satisfy the floor.
func (f Floor) Check(p Params, salt []byte) error {
	switch {
	case p.Time < f.Time:
		return fmt.Errorf("%w: time %d < %d", ErrInvalidParameters, p.Time, f.Time)
	case p.MemoryKiB < f.MemoryKiB:
		return fmt.Errorf("%w: memory %d KiB < %d KiB", ErrInvalidParameters, p.MemoryKiB, f.MemoryKiB)
	case p.Threads < f.Threads:
		return fmt.Errorf("%w: threads %d < %d", ErrInvalidParameters, p.Threads, f.Threads)
	case p.KeyLen < f.KeyLen:
		return fmt.Errorf("%w: key length %d < %d", ErrInvalidParameters, p.KeyLen, f.KeyLen)
	case len(salt) < f.SaltLength:
		return fmt.Errorf("%w: salt length %d < %d", ErrInvalidParameters, len(salt), f.SaltLength)
	}
	return nil
}

// Ceiling is the maximum cost a derivation may request. Parameters read
// from a vault file are untrusted, and Argon2 allocates MemoryKiB up front.
type Ceiling struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
}

// DefaultCeiling is enforced by Derive and DeriveWithFloor.
var DefaultCeiling = Ceiling{
	Time:      64,
	MemoryKiB: 4 * 1024 * 1024,
	Threads:   64,
	KeyLen:    64,
}

// Check reports whether p stays within the ceiling.
func (c Ceiling) Check(p Params) error {
	switch {
	case p.Time > c.Time:
		return fmt.Errorf("%w: time %d > %d", ErrCostTooHigh, p.Time, c.Time)
	case p.MemoryKiB > c.MemoryKiB:
		return fmt.Errorf("%w: memory %d KiB > %d KiB", ErrCostTooHigh, p.MemoryKiB, c.MemoryKiB)
	case p.Threads > c.Threads:
		return fmt.Errorf("%w: threads %d > %d", ErrCostTooHigh, p.Threads, c.Threads)
	case p.KeyLen > c.KeyLen:
		return fmt.Errorf("%w: key length %d > %d", ErrCostTooHigh, p.KeyLen, c.KeyLen)
	}
	return nil
}

// Derive derives a key from passphrase and salt using Argon2id.
//
// The result is deterministic for identical inputs. The caller owns the
// passphrase buffer and should zero it after use.
func Derive(passphrase, salt []byte, p Params) ([]byte, error) {
	return DeriveWithFloor(passphrase, salt, p, DefaultFloor)
}

// DeriveWithFloor is Derive with a caller supplied floor. DefaultCeiling
// still applies.
func DeriveWithFloor(passphrase, salt []byte, p Params, floor Floor) ([]byte, error) {
	if err := floor.Check(p, salt); err != nil {
		return nil, err
	}
	if err := DefaultCeiling.Check(p); err != nil {
		return nil, err
	}
	return argon2.IDKey(passphrase, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen), nil
}

// NewSalt returns SaltLength random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("kdf: generate salt: %w", err)
	}
	return salt, nil
}

// Subkey derives a purpose-bound subkey from a master key using HKDF-SHA256.
func Subkey(masterKey []byte, info string, length int) ([]byte, error) {
	if len(masterKey) < KeyLength {
		return nil, ErrKeyTooShort
	}

	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("kdf: derive subkey: %w", err)
	}
	return key, nil
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
