// Package command defines the credvault command line.
//
// Commands are built with urfave/cli/v2. The root Before hook loads the
// configuration and wires the logger, metrics registry and vault manager
// into an env stored in the app metadata; After closes the manager.
//
// Vault commands unlock, act and lock again. The shell command keeps one
// session open and runs the same commands line by line.
package command
