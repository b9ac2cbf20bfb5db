// Package config defines the credvault configuration.
//
//   - config.go: Config struct definition
//   - default.go: default values and path expansion
//   - verify.go: validation
//   - convert.go: mapping onto the vault service configuration
//
// Configuration is loaded by internal/infra/confloader from a YAML file,
// CREDVAULT_ environment variables and command-line flags.
package config
