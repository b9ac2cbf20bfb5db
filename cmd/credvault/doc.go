// Package main provides the entry point for credvault.
//
// credvault keeps usernames and passwords in a local file encrypted under
// a key derived from one master passphrase:
//
//   - init, info, list, add, get, update, delete for the records
//   - generate for random passwords
//   - audit verify and audit list for the tamper-evident log
//   - shell for an interactive session with an idle timeout
//
// Usage:
//
//	credvault init
//	credvault add --label github --username octocat --generate 24
//	credvault get 1 --field password
//	credvault --output json list --locked
package main
