// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Lux core.
//
// Configuration is loaded from a single YAML file specified by:
//   - LUX_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Lux core.
type Config struct {
	// API configures the remote catalog service and presence hub.
	API APIConfig `yaml:"api"`

	// Paths configures local directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Relay configures the local credential relay server.
	Relay RelayConfig `yaml:"relay"`

	// Presence configures the presence hub client.
	Presence PresenceConfig `yaml:"presence"`
}

// APIConfig configures the remote services the core talks to.
type APIConfig struct {
	// BaseURL is the catalog API base URL (e.g., "https://api.lux.gg").
	BaseURL string `yaml:"base_url"`

	// HubURL is the presence hub websocket URL
	// (e.g., "wss://hub.lux.gg/v1/events").
	HubURL string `yaml:"hub_url"`

	// AuthURL is the browser-based login page the UI opens during the
	// start-auth flow.
	AuthURL string `yaml:"auth_url"`

	// Timeout bounds each catalog API request. Archive downloads are
	// exempt — they stream for as long as the transfer takes.
	// Default: 5s.
	Timeout string `yaml:"timeout"`
}

// PathsConfig configures local directory locations.
type PathsConfig struct {
	// Root is the base directory for Lux data.
	Root string `yaml:"root"`

	// Apps is where application bundles are installed. Each app gets a
	// subdirectory named by its catalog id.
	Apps string `yaml:"apps"`

	// State is where the installed-apps registry, the credential file,
	// and the install identity live.
	State string `yaml:"state"`
}

// RelayConfig configures the local credential relay.
type RelayConfig struct {
	// PortMin and PortMax bound the loopback port range the relay
	// binds within. A launched process discovers the chosen port via
	// the LUX_RELAY_PORT environment variable.
	PortMin int `yaml:"port_min"`
	PortMax int `yaml:"port_max"`
}

// PresenceConfig configures the presence hub client.
type PresenceConfig struct {
	// ReconnectInterval is the fixed delay between reconnection
	// attempts after a non-fatal disconnect. Default: 5s.
	ReconnectInterval string `yaml:"reconnect_interval"`

	// DefaultStatus is the presence status asserted on connect before
	// the user sets one. Default: "lux".
	DefaultStatus string `yaml:"default_status"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file; the file only needs to
// carry the values that differ.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "lux")

	return &Config{
		API: APIConfig{
			Timeout: "5s",
		},
		Paths: PathsConfig{
			Root:  defaultRoot,
			Apps:  filepath.Join(defaultRoot, "apps"),
			State: filepath.Join(defaultRoot, "state"),
		},
		Relay: RelayConfig{
			PortMin: 33400,
			PortMax: 33500,
		},
		Presence: PresenceConfig{
			ReconnectInterval: "5s",
			DefaultStatus:     "lux",
		},
	}
}

// Load loads configuration from the LUX_CONFIG environment variable.
// There is no fallback — if LUX_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("LUX_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("LUX_CONFIG environment variable not set; " +
			"set it to the path of your lux.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("api.base_url is required"))
	}
	if c.API.HubURL == "" {
		errs = append(errs, fmt.Errorf("api.hub_url is required"))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Relay.PortMin <= 0 || c.Relay.PortMax > 65535 || c.Relay.PortMin > c.Relay.PortMax {
		errs = append(errs, fmt.Errorf("relay port range [%d, %d] is invalid", c.Relay.PortMin, c.Relay.PortMax))
	}
	if _, err := time.ParseDuration(c.API.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("api.timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.Presence.ReconnectInterval); err != nil {
		errs = append(errs, fmt.Errorf("presence.reconnect_interval: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// APITimeout returns the parsed catalog request timeout. Call Validate
// first; an unparsable value falls back to 5 seconds here.
func (c *Config) APITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// ReconnectInterval returns the parsed presence reconnect delay. Call
// Validate first; an unparsable value falls back to 5 seconds here.
func (c *Config) ReconnectInterval() time.Duration {
	d, err := time.ParseDuration(c.Presence.ReconnectInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.Apps, c.Paths.State} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
