// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lux.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://api.example.test
  hub_url: wss://hub.example.test/v1/events
paths:
  root: /tmp/lux-test
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.API.BaseURL != "https://api.example.test" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != "5s" {
		t.Errorf("Timeout default = %q, want 5s", cfg.API.Timeout)
	}
	if cfg.Relay.PortMin != 33400 || cfg.Relay.PortMax != 33500 {
		t.Errorf("relay port defaults = [%d, %d]", cfg.Relay.PortMin, cfg.Relay.PortMax)
	}
	if cfg.Presence.DefaultStatus != "lux" {
		t.Errorf("DefaultStatus default = %q", cfg.Presence.DefaultStatus)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile should fail for a missing file")
	}
}

func TestLoadRequiresEnvironment(t *testing.T) {
	t.Setenv("LUX_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load should fail when LUX_CONFIG is unset")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "https://api.example.test"
	cfg.API.HubURL = "wss://hub.example.test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Paths.Root = ""
	cfg.Relay.PortMin = 50000
	cfg.Relay.PortMax = 40000
	cfg.Presence.ReconnectInterval = "not-a-duration"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail")
	}
	for _, fragment := range []string{"base_url", "hub_url", "paths.root", "port range", "reconnect_interval"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("Validate error missing %q: %v", fragment, err)
		}
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	cfg.Presence.ReconnectInterval = "250ms"
	if got := cfg.ReconnectInterval(); got != 250*time.Millisecond {
		t.Errorf("ReconnectInterval = %v", got)
	}
	if got := cfg.APITimeout(); got != 5*time.Second {
		t.Errorf("APITimeout = %v", got)
	}
}

func TestEnsurePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "lux")
	cfg := Default()
	cfg.Paths.Root = root
	cfg.Paths.Apps = filepath.Join(root, "apps")
	cfg.Paths.State = filepath.Join(root, "state")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, path := range []string{cfg.Paths.Root, cfg.Paths.Apps, cfg.Paths.State} {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory at %s", path)
		}
	}
}
