// Package memory provides an in-process storage.KVEngine.
//
// Data lives in a pkg/cmap sharded map and is lost on Close. It backs the
// audit log in tests and when a vault is configured without a persistent
// audit trail.
package memory
