package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Credential constraints.
const (
	MaxLabelLength    = 256
	MaxUsernameLength = 1024
	MaxPasswordLength = 4096
)

// Credential is the decrypted view of one stored secret.
//
// Instances are produced transiently by a session and are never persisted
// in this form.
type Credential struct {
	// ID is the record identifier, assigned sequentially from 1.
	ID uint64 `json:"id"`

	// Label names the service or site. Stored in plaintext for listing.
	Label string `json:"label"`

	// Username is stored encrypted.
	Username string `json:"username"`

	// Password is stored encrypted.
	Password string `json:"password"`

	// CreatedAt is the creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// ModifiedAt is the last modification timestamp (Unix milliseconds).
	ModifiedAt int64 `json:"modified_at"`
}

// Validate checks the credential against length constraints.
// Returns ErrInvalidParameters with details describing each violation.
func (c *Credential) Validate() error {
	var violations []string

	if c.Label == "" {
		violations = append(violations, "label is required")
	}
	if len(c.Label) > MaxLabelLength {
		violations = append(violations, "label exceeds 256 bytes")
	}
	if !utf8.ValidString(c.Label) {
		violations = append(violations, "label is not valid utf-8")
	}
	if len(c.Username) > MaxUsernameLength {
		violations = append(violations, "username exceeds 1024 bytes")
	}
	if c.Password == "" {
		violations = append(violations, "password is required")
	}
	if len(c.Password) > MaxPasswordLength {
		violations = append(violations, "password exceeds 4096 bytes")
	}

	if len(violations) > 0 {
		return ErrInvalidParameters.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Summary returns the listing view of the credential.
func (c *Credential) Summary() RecordSummary {
	return RecordSummary{
		ID:         c.ID,
		Label:      c.Label,
		CreatedAt:  c.CreatedAt,
		ModifiedAt: c.ModifiedAt,
	}
}

// ModifiedAtTime returns ModifiedAt as time.Time.
func (c *Credential) ModifiedAtTime() time.Time {
	return time.UnixMilli(c.ModifiedAt)
}

// RecordSummary is a listing entry. Producing it requires no decryption.
type RecordSummary struct {
	ID         uint64 `json:"id"`
	Label      string `json:"label"`
	CreatedAt  int64  `json:"created_at"`
	ModifiedAt int64  `json:"modified_at"`
}

// VaultInfo describes a vault's immutable header attributes.
type VaultInfo struct {
	Path      string `json:"path"`
	Version   uint16 `json:"version"`
	Cipher    string `json:"cipher"`
	Salt      []byte `json:"-"`
	KDFTime   uint32 `json:"kdf_time"`
	KDFMemory uint32 `json:"kdf_memory_kib"`
	KDFThread uint8  `json:"kdf_threads"`
	CreatedAt int64  `json:"created_at"`
	Records   int    `json:"records"`
}

// CreatedAtTime returns CreatedAt as time.Time.
func (v *VaultInfo) CreatedAtTime() time.Time {
	return time.UnixMilli(v.CreatedAt)
}

// SessionState is the lock state of a vault session.
type SessionState int

const (
	// StateLocked permits no decrypt operations.
	StateLocked SessionState = iota

	// StateUnlocked holds a verified key.
	StateUnlocked
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}
