// Package logger provides structured logging for credvault.
//
//   - logger.go: log/slog setup, level control and the global logger
//   - context.go: logger and operation ID propagation through context
//   - redact.go: redaction of passphrases, passwords and key material
//
// Output defaults to text on stderr at warn level so that command output on
// stdout stays clean.
package logger
