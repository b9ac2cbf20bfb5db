// Package shutdown runs cleanup hooks when the process is asked to stop.
//
// The interactive shell registers hooks that lock open sessions and
// close the vault manager, then calls Wait. Hooks run once, in reverse
// registration order, on SIGINT, SIGTERM, context cancellation or an
// explicit Shutdown call.
package shutdown
