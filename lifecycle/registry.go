// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// InstalledApp is one entry in the installed-apps registry. The
// registry is the sole source of truth for "is installed": an id
// present here implies its InstallPath exists on disk.
type InstalledApp struct {
	// Name is the display name recorded at install time.
	Name string `json:"name"`

	// Version is the catalog version tag that was installed.
	Version string `json:"version"`

	// InstallPath is the absolute install directory.
	InstallPath string `json:"installPath"`

	// BinaryPath is the launchable executable relative to InstallPath.
	BinaryPath string `json:"binaryPath"`
}

// Registry is the installed-apps registry file: a single JSON object
// keyed by app id, rewritten in full on every mutation. The registry
// assumes a single core instance per machine; there is no cross-process
// file lock.
type Registry struct {
	path string

	mu sync.Mutex
}

// NewRegistry creates a registry backed by the file at path. The file
// is created on the first mutation; a missing file reads as empty.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// All returns every registry entry.
func (r *Registry) All() (map[string]InstalledApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Get returns the entry for id and whether it exists.
func (r *Registry) Get(id string) (InstalledApp, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return InstalledApp{}, false, err
	}
	entry, ok := entries[id]
	return entry, ok, nil
}

// Put writes the entry for id, replacing any existing one.
func (r *Registry) Put(id string, app InstalledApp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	entries[id] = app
	return r.save(entries)
}

// Delete removes the entry for id. Removing an absent id is not an
// error.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	delete(entries, id)
	return r.save(entries)
}

func (r *Registry) load() (map[string]InstalledApp, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return make(map[string]InstalledApp), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reading registry %s: %w", r.path, err)
	}

	var entries map[string]InstalledApp
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("lifecycle: parsing registry %s: %w", r.path, err)
	}
	if entries == nil {
		entries = make(map[string]InstalledApp)
	}
	return entries, nil
}

func (r *Registry) save(entries map[string]InstalledApp) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("lifecycle: encoding registry: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("lifecycle: writing registry %s: %w", r.path, err)
	}
	return nil
}
