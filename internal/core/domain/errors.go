// Package domain defines the core domain models for credvault.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a vault error with a structured error code.
// Codes have the form CV-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "CV-REC-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidParameters indicates invalid input or cost parameters below the floor.
	ErrInvalidParameters = NewDomainError("CV-ARG-4000", "invalid parameters")
)

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrWrongPassphrase indicates the derived key failed the canary check.
	ErrWrongPassphrase = NewDomainError("CV-AUTH-4010", "wrong passphrase")

	// ErrSessionLocked indicates the session is locked or timed out.
	ErrSessionLocked = NewDomainError("CV-AUTH-4230", "session locked")

	// ErrLockedOut indicates too many failed unlock attempts.
	ErrLockedOut = NewDomainError("CV-AUTH-4290", "too many failed unlock attempts")
)

// ============================================================================
// Record Errors (REC)
// ============================================================================

var (
	// ErrNotFound indicates the requested record or vault does not exist.
	ErrNotFound = NewDomainError("CV-REC-4040", "not found")
)

// ============================================================================
// Vault Errors (VAULT)
// ============================================================================

var (
	// ErrAlreadyExists indicates a vault already exists at the path.
	ErrAlreadyExists = NewDomainError("CV-VAULT-4090", "vault already exists")
)

// ============================================================================
// Data Integrity Errors (DATA)
// ============================================================================

var (
	// ErrIntegrityFailure indicates a record failed authentication.
	ErrIntegrityFailure = NewDomainError("CV-DATA-4220", "record integrity check failed")
)

// ============================================================================
// Storage Errors (STORE)
// ============================================================================

var (
	// ErrCorruptStore indicates the store and its backup are unreadable.
	ErrCorruptStore = NewDomainError("CV-STORE-5000", "corrupt store")

	// ErrStoreWrite indicates a mutation could not be persisted.
	// The previous version of the store is still intact.
	ErrStoreWrite = NewDomainError("CV-STORE-5001", "store write failed")
)

// ============================================================================
// Audit Errors (AUDIT)
// ============================================================================

var (
	// ErrAuditChainBroken indicates the audit hash chain does not verify.
	ErrAuditChainBroken = NewDomainError("CV-AUDIT-5000", "audit chain broken")
)
