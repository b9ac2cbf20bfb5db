// Package repl implements the line loop behind "credvault shell".
//
// The loop reads a line, splits it into words with shell-style quoting and
// hands the words to an Executor. It knows nothing about vaults: the
// command package supplies the executor, the command names and the prompt.
package repl
