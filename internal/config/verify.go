package config

import (
	"errors"
	"fmt"

	"github.com/yndnr/credvault/internal/telemetry/logger"
	"github.com/yndnr/credvault/pkg/crypto/adaptive"
	"github.com/yndnr/credvault/pkg/crypto/kdf"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Verify validates cfg and reports every problem found.
func Verify(cfg *Config) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if cfg.Vault.Path == "" {
		fail("vault.path is required")
	}
	if _, err := adaptive.ParseType(cfg.Vault.Cipher); err != nil {
		fail("vault.cipher %q is not supported", cfg.Vault.Cipher)
	}

	params := kdf.Params{
		Time:      cfg.KDF.Time,
		MemoryKiB: cfg.KDF.MemoryKiB,
		Threads:   cfg.KDF.Threads,
		KeyLen:    kdf.KeyLength,
	}
	if err := kdf.DefaultFloor.Check(params, make([]byte, kdf.SaltLength)); err != nil {
		fail("kdf: %v", err)
	}
	if err := kdf.DefaultCeiling.Check(params); err != nil {
		fail("kdf: %v", err)
	}

	s := cfg.Session
	if s.IdleTimeout < 0 {
		fail("session.idle_timeout must not be negative")
	}
	if s.MaxFailures < 1 {
		fail("session.max_failures must be at least 1")
	}
	if s.Cooldown <= 0 {
		fail("session.cooldown must be positive")
	}
	if s.MaxCooldown < s.Cooldown {
		fail("session.max_cooldown must be at least session.cooldown")
	}
	if s.UnlockRate < 0 {
		fail("session.unlock_rate must not be negative")
	}
	if s.UnlockRate > 0 && s.UnlockBurst < 1 {
		fail("session.unlock_burst must be at least 1")
	}
	if s.MinPassphraseScore < 0 || s.MinPassphraseScore > 4 {
		fail("session.min_passphrase_score must be between 0 and 4")
	}

	switch cfg.Audit.Backend {
	case "badger", "memory":
	default:
		fail("audit.backend %q is not supported", cfg.Audit.Backend)
	}

	if !logger.ValidLevel(cfg.Log.Level) {
		fail("log.level %q is not supported", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		fail("log.format %q is not supported", cfg.Log.Format)
	}

	return errors.Join(errs...)
}
