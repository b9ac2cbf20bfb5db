// Package passgen generates random passwords.
//
// Characters are drawn uniformly from crypto/rand. Every enabled
// character class appears at least once when the length allows it.
package passgen
