// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
)

// Loader loads configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty, in which case only
// environment variables and defaults apply.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration and validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return AppConfig{}, fmt.Errorf("config file %s: %w", l.configPath, err)
		}
		loaded, err := loadFile(l.configPath, cfg)
		if err != nil {
			return AppConfig{}, err
		}
		cfg = loaded
	}

	cfg = applyEnv(cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
