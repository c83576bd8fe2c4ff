// Package config loads the immutable system configuration from a YAML file.
// The file is read once at startup; everything downstream receives the
// resulting core.Config by value and nothing reloads at runtime.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stepcore/core"
)

// Load reads, defaults and validates a configuration file.
func Load(path string) (core.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes. Missing keys fall back to the
// defaults; a present but invalid key fails validation.
func Parse(data []byte) (core.Config, error) {
	cfg := core.DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return core.Config{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}
