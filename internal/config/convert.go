package config

import (
	"github.com/yndnr/credvault/internal/core/service"
	"github.com/yndnr/credvault/pkg/crypto/adaptive"
	"github.com/yndnr/credvault/pkg/crypto/kdf"
)

// ServiceConfig maps cfg onto the vault manager configuration. cfg must
// have passed Verify.
func (cfg *Config) ServiceConfig() (service.Config, error) {
	cipher, err := adaptive.ParseType(cfg.Vault.Cipher)
	if err != nil {
		return service.Config{}, err
	}
	auditDir, err := ExpandPath(cfg.Audit.Dir)
	if err != nil {
		return service.Config{}, err
	}

	out := service.DefaultConfig()
	out.KDF = kdf.Params{
		Time:      cfg.KDF.Time,
		MemoryKiB: cfg.KDF.MemoryKiB,
		Threads:   cfg.KDF.Threads,
		KeyLen:    kdf.KeyLength,
	}
	out.Cipher = cipher
	out.IdleTimeout = cfg.Session.IdleTimeout
	out.Lockout = service.LockoutPolicy{
		MaxFailures: cfg.Session.MaxFailures,
		Cooldown:    cfg.Session.Cooldown,
		MaxCooldown: cfg.Session.MaxCooldown,
		Rate:        cfg.Session.UnlockRate,
		Burst:       cfg.Session.UnlockBurst,
	}
	out.MinPassphraseScore = cfg.Session.MinPassphraseScore
	out.Backup = cfg.Vault.Backup
	out.Watch = cfg.Vault.Watch
	out.Audit = service.AuditConfig{
		Enabled: cfg.Audit.Enabled,
		Backend: cfg.Audit.Backend,
		Dir:     auditDir,
	}
	return out, nil
}

// VaultPath returns the vault path with ~ expanded.
func (cfg *Config) VaultPath() (string, error) {
	return ExpandPath(cfg.Vault.Path)
}
