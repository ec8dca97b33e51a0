// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the user-level configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file is absent or partial.
const (
	DefaultModel       = "grok-beta"
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2048
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the user-level settings file, stored as YAML under the
// application home directory.
type Config struct {
	Model       string  `yaml:"model" validate:"required"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gt=0"`

	// Endpoint overrides the default API base URL. Empty means the
	// provider default.
	Endpoint string `yaml:"endpoint,omitempty"`

	// AutoLog enables the interaction log file.
	AutoLog bool `yaml:"auto_log"`

	// DangerousCommandsRequireFlag keeps the --force requirement for
	// DANGEROUS shell commands. Turning it off is equivalent to always
	// passing --force.
	DangerousCommandsRequireFlag bool `yaml:"dangerous_commands_require_flag"`

	// HooksDir and PluginsDir default to subdirectories of the
	// application home when empty.
	HooksDir   string `yaml:"hooks_dir,omitempty"`
	PluginsDir string `yaml:"plugins_dir,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:                        DefaultModel,
		Temperature:                  DefaultTemperature,
		MaxTokens:                    DefaultMaxTokens,
		AutoLog:                      true,
		DangerousCommandsRequireFlag: true,
	}
}

// Home returns the application home directory (~/.eleven), honoring
// the ELEVEN_HOME environment variable for tests and sandboxes.
func Home() string {
	if h := os.Getenv("ELEVEN_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".eleven"
	}
	return filepath.Join(home, ".eleven")
}

// Path returns the config file location under the application home.
func Path() string {
	return filepath.Join(Home(), "eleven.yaml")
}

// Load reads the config file at path, filling defaults for anything
// unset and validating the result.
//
// Description:
//
//	A missing file is not an error: the defaults are written back so
//	the user has a file to edit. A file that exists but fails to parse
//	or validate is an error, loudly, rather than silently running with
//	half-applied settings.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if writeErr := Save(path, cfg); writeErr != nil {
			return cfg, fmt.Errorf("write default config: %w", writeErr)
		}
		return withDirDefaults(cfg, path), nil
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return withDirDefaults(cfg, path), nil
}

func withDirDefaults(cfg Config, path string) Config {
	if cfg.HooksDir == "" {
		cfg.HooksDir = filepath.Join(filepath.Dir(path), "hooks")
	}
	if cfg.PluginsDir == "" {
		cfg.PluginsDir = filepath.Join(filepath.Dir(path), "plugins")
	}
	return cfg
}

// Save writes cfg as YAML at path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
