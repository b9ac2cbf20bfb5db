// Package confloader loads layered configuration with koanf.
//
// Sources are applied in order, later ones winning:
//
//  1. Values already present in the target struct (defaults)
//  2. A YAML configuration file
//  3. Environment variables with the CREDVAULT_ prefix
//  4. Explicit overrides, usually command-line flags
//
// Environment names map to keys by splitting off the section at the
// first underscore: CREDVAULT_SESSION_IDLE_TIMEOUT sets
// session.idle_timeout.
package confloader
