package config

import "time"

// Config is the root configuration.
type Config struct {
	Vault   VaultSection   `koanf:"vault" yaml:"vault" json:"vault"`
	KDF     KDFSection     `koanf:"kdf" yaml:"kdf" json:"kdf"`
	Session SessionSection `koanf:"session" yaml:"session" json:"session"`
	Audit   AuditSection   `koanf:"audit" yaml:"audit" json:"audit"`
	Log     LogSection     `koanf:"log" yaml:"log" json:"log"`
}

// VaultSection selects the vault file and how it is written.
type VaultSection struct {
	Path string `koanf:"path" yaml:"path" json:"path"`

	// Cipher for new vaults: auto, aes-gcm or chacha20-poly1305.
	Cipher string `koanf:"cipher" yaml:"cipher" json:"cipher"`

	// Backup keeps the previous image as <path>.bak on every write.
	Backup bool `koanf:"backup" yaml:"backup" json:"backup"`

	// Watch reloads the vault when another process replaces the file.
	Watch bool `koanf:"watch" yaml:"watch" json:"watch"`
}

// KDFSection holds the Argon2id cost for new vaults.
type KDFSection struct {
	Time      uint32 `koanf:"time" yaml:"time" json:"time"`
	MemoryKiB uint32 `koanf:"memory_kib" yaml:"memory_kib" json:"memory_kib"`
	Threads   uint8  `koanf:"threads" yaml:"threads" json:"threads"`
}

// SessionSection configures idle locking and unlock throttling.
type SessionSection struct {
	IdleTimeout        time.Duration `koanf:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
	MaxFailures        int           `koanf:"max_failures" yaml:"max_failures" json:"max_failures"`
	Cooldown           time.Duration `koanf:"cooldown" yaml:"cooldown" json:"cooldown"`
	MaxCooldown        time.Duration `koanf:"max_cooldown" yaml:"max_cooldown" json:"max_cooldown"`
	UnlockRate         float64       `koanf:"unlock_rate" yaml:"unlock_rate" json:"unlock_rate"`
	UnlockBurst        int           `koanf:"unlock_burst" yaml:"unlock_burst" json:"unlock_burst"`
	MinPassphraseScore int           `koanf:"min_passphrase_score" yaml:"min_passphrase_score" json:"min_passphrase_score"`
}

// AuditSection configures the audit log.
type AuditSection struct {
	Enabled bool `koanf:"enabled" yaml:"enabled" json:"enabled"`

	// Dir holds audit directories. Empty keeps each next to its vault.
	Dir string `koanf:"dir" yaml:"dir" json:"dir"`

	// Backend is badger or memory.
	Backend string `koanf:"backend" yaml:"backend" json:"backend"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}
