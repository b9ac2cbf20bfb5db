// Package service implements vault sessions on top of the record store.
//
// A Manager creates and unlocks vaults. Unlocking derives the master key
// with Argon2id, verifies it against the vault canary and returns a
// Session holding a record subkey. Sessions encrypt each credential under
// a fresh nonce, lock themselves after an idle timeout and record every
// operation in the vault's audit log.
//
// Repeated unlock failures lock the vault out for an exponentially
// growing cooldown. The failure count is rebuilt from the audit log when
// a vault is first opened, so restarting the process does not reset it.
package service
