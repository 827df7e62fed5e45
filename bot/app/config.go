// Package app assembles the photo-edit bot from the reusable core:
// configuration, infrastructure bootstrap and Telegram wiring.
package app

import (
	coreconfig "github.com/m3rciful/editbot/core/config"
	coredatabase "github.com/m3rciful/editbot/core/database"
)

// Config is the core configuration plus bot-specific sections.
// An empty database host keeps the bot fully stateless.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the YAML config, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Load(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	return &cfg, nil
}
