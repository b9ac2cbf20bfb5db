// Package audit records vault operations in a tamper-evident log.
//
// Entries are encoded with protowire and chained by SHA-256: each entry's
// hash covers its predecessor's hash and its own fields. A separate head
// record names the last sequence number and hash so that dropping entries
// from the end is caught as well.
//
// Storage layout in the KVEngine:
//
//	e/<seq, 8 bytes big-endian>  encoded entry
//	m/head                       seq || hash of the last entry
//
// The log never stores secrets: entries carry record ids, event names,
// outcomes and error codes only.
package audit
