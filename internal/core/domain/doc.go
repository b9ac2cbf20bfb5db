// Package domain defines the core domain models for credvault.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Credential: decrypted view of a stored secret, with validation
//   - RecordSummary: listing entry that needs no decryption
//   - VaultInfo: immutable vault header attributes
//   - Errors: the vault error taxonomy with stable codes
package domain
