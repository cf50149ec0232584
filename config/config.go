// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

// Package config loads and saves the persistent kernelstub configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// DefaultPath is where the configuration is stored.
const DefaultPath = "/etc/kernelstub/config.toml"

// DefaultKernelOptions are used when the user never chose any.
const DefaultKernelOptions = "quiet loglevel=0 systemd.show_status=false splash"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// appFs is our default FS
var appFs afero.Fs = afero.NewOsFs()

// Config is the user configuration.
type Config struct {
	KernelOptions string `toml:"kernel_options"`
	ESPPath       string `toml:"esp_path"`
	SetupLoader   bool   `toml:"setup_loader"`
	ManageMode    bool   `toml:"manage_mode"`
	ForceUpdate   bool   `toml:"force_update"`
	Unified       bool   `toml:"unified"`
}

// Default returns the configuration of a fresh installation.
func Default() Config {
	return Config{
		KernelOptions: DefaultKernelOptions,
		ESPPath:       "/boot/efi",
	}
}

// Load reads the configuration at path. Missing keys keep their default
// value, and a missing file yields Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := afero.ReadFile(appFs, path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration can be used for an installation.
func (c Config) Validate() error {
	if c.ESPPath == "" {
		return fmt.Errorf("%w: esp_path is empty", ErrInvalidConfig)
	}
	if !filepath.IsAbs(c.ESPPath) {
		return fmt.Errorf("%w: esp_path %q is not absolute", ErrInvalidConfig, c.ESPPath)
	}
	if strings.ContainsAny(c.KernelOptions, "\r\n") {
		return fmt.Errorf("%w: kernel_options must be a single line", ErrInvalidConfig)
	}
	return nil
}

// Save writes the configuration to path.
func Save(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := appFs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return afero.WriteFile(appFs, path, data, 0644)
}
