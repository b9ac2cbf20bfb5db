// Package kdf derives vault keys from master passphrases.
//
// Derivation uses Argon2id, a memory-hard password hashing function, with
// cost parameters stored next to the salt in the vault header. Parameters
// below a safety floor are rejected with ErrInvalidParameters so a vault
// can never be created or opened with a trivially cheap derivation.
//
// Subkeys for individual purposes are expanded from the master key with
// HKDF-SHA256.
package kdf
