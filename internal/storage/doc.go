// Package storage provides the embedded key-value layer used by the audit
// log.
//
// KVEngine is the abstraction; BadgerEngine is the on-disk implementation
// and the memory subpackage provides an in-process one for tests and for
// vaults opened without a persistent audit trail.
//
// Vault records themselves live in the recordstore subpackage, which owns
// its own file format.
package storage
