package config

import (
	"github.com/yndnr/credvault/internal/infra/confloader"
)

// LoadOptions selects the sources read by Load.
type LoadOptions struct {
	// File is the YAML configuration file. Empty uses DefaultConfigFile.
	File string

	// Required makes a missing File an error.
	Required bool

	// Overrides are applied last, keyed by dotted path.
	Overrides map[string]any
}

// Load builds a configuration from the defaults, the configuration file,
// CREDVAULT_ environment variables and overrides, then verifies it.
func Load(opts LoadOptions) (*Config, error) {
	file := opts.File
	if file == "" {
		file = DefaultConfigFile
	}
	file, err := ExpandPath(file)
	if err != nil {
		return nil, err
	}

	fileOpt := confloader.WithOptionalConfigFile(file)
	if opts.Required {
		fileOpt = confloader.WithConfigFile(file)
	}
	cfg := Default()
	loader := confloader.NewLoader(fileOpt, confloader.WithOverrides(opts.Overrides))
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
