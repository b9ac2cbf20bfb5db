package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultDir        = "~/.credvault"
	DefaultVaultPath  = DefaultDir + "/vault.db"
	DefaultConfigFile = DefaultDir + "/config.yaml"

	DefaultCipher = "auto"

	DefaultKDFTime      = 3
	DefaultKDFMemoryKiB = 64 * 1024
	DefaultKDFThreads   = 4

	DefaultIdleTimeout = 5 * time.Minute
	DefaultMaxFailures = 5
	DefaultCooldown    = 30 * time.Second
	DefaultMaxCooldown = 30 * time.Minute
	DefaultUnlockRate  = 2
	DefaultUnlockBurst = 5

	DefaultAuditBackend = "badger"

	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Vault: VaultSection{
			Path:   DefaultVaultPath,
			Cipher: DefaultCipher,
			Backup: true,
			Watch:  true,
		},
		KDF: KDFSection{
			Time:      DefaultKDFTime,
			MemoryKiB: DefaultKDFMemoryKiB,
			Threads:   DefaultKDFThreads,
		},
		Session: SessionSection{
			IdleTimeout: DefaultIdleTimeout,
			MaxFailures: DefaultMaxFailures,
			Cooldown:    DefaultCooldown,
			MaxCooldown: DefaultMaxCooldown,
			UnlockRate:  DefaultUnlockRate,
			UnlockBurst: DefaultUnlockBurst,
		},
		Audit: AuditSection{
			Enabled: true,
			Backend: DefaultAuditBackend,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
