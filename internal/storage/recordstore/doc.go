// Package recordstore persists a vault as a single self-verifying file.
//
// A vault file holds a header (format version, cipher, KDF salt and
// parameters, next record id), a canary block and one block per record.
// Labels and timestamps are kept in plaintext for listing; usernames and
// passwords only ever exist here as ciphertext sealed by the caller.
//
// Every mutation writes a complete new image to a temp file, verifies it,
// keeps the previous image as <path>.bak and renames the new file into
// place. Readers therefore see either the old or the new image.
package recordstore
