// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, dir string, hostname string) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{
		Dir:      dir,
		Hostname: func() (string, error) { return hostname, nil },
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t, t.TempDir(), "atlas")

	if err := store.Save("jwt-token-value"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := store.Load(); got != "jwt-token-value" {
		t.Errorf("Load = %q, want %q", got, "jwt-token-value")
	}
}

func TestLoadColdStart(t *testing.T) {
	dir := t.TempDir()
	first := newTestStore(t, dir, "atlas")
	if err := first.Save("jwt-token-value"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store with no in-memory cache must decrypt from disk.
	second := newTestStore(t, dir, "atlas")
	if got := second.Load(); got != "jwt-token-value" {
		t.Errorf("Load after cold start = %q, want %q", got, "jwt-token-value")
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t, t.TempDir(), "atlas")
	if got := store.Load(); got != "" {
		t.Errorf("Load with no file = %q, want empty", got)
	}
}

func TestClearRemovesCredential(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir, "atlas")
	if err := store.Save("jwt-token-value"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := store.Load(); got != "" {
		t.Errorf("Load after Clear = %q, want empty", got)
	}
	if _, err := os.Stat(filepath.Join(dir, tokenFile)); !os.IsNotExist(err) {
		t.Errorf("token file should be deleted, stat err = %v", err)
	}

	// Clearing again with no file present is not an error.
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestLoadRejectsForeignDevice(t *testing.T) {
	dir := t.TempDir()
	origin := newTestStore(t, dir, "atlas")
	if err := origin.Save("jwt-token-value"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Same install id and files, different hostname: the derived key
	// differs, decryption fails, and the stale file is discarded.
	foreign := newTestStore(t, dir, "prometheus")
	if got := foreign.Load(); got != "" {
		t.Errorf("Load on foreign device = %q, want empty", got)
	}
	if _, err := os.Stat(filepath.Join(dir, tokenFile)); !os.IsNotExist(err) {
		t.Errorf("stale token file should be removed, stat err = %v", err)
	}
}

func TestLoadRejectsGarbageFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, tokenFile), []byte("not a ciphertext"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := newTestStore(t, dir, "atlas")
	if got := store.Load(); got != "" {
		t.Errorf("Load of garbage file = %q, want empty", got)
	}
	if _, err := os.Stat(filepath.Join(dir, tokenFile)); !os.IsNotExist(err) {
		t.Errorf("garbage token file should be removed, stat err = %v", err)
	}
}

func TestSaveRejectsEmptyToken(t *testing.T) {
	store := newTestStore(t, t.TempDir(), "atlas")
	if err := store.Save(""); err == nil {
		t.Fatal("Save of empty token should fail")
	}
}

func TestCurrentReflectsCacheOnly(t *testing.T) {
	dir := t.TempDir()
	first := newTestStore(t, dir, "atlas")
	if err := first.Save("jwt-token-value"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := newTestStore(t, dir, "atlas")
	if got := second.Current(); got != "" {
		t.Errorf("Current before Load = %q, want empty", got)
	}
	second.Load()
	if got := second.Current(); got != "jwt-token-value" {
		t.Errorf("Current after Load = %q", got)
	}
}

func TestInstallIDStableAcrossUses(t *testing.T) {
	path := filepath.Join(t.TempDir(), identityFile)

	first, err := loadOrCreateInstallID(path)
	if err != nil {
		t.Fatalf("first loadOrCreateInstallID: %v", err)
	}
	if len(first) != installIDBytes*2 {
		t.Errorf("install id length = %d, want %d", len(first), installIDBytes*2)
	}

	second, err := loadOrCreateInstallID(path)
	if err != nil {
		t.Fatalf("second loadOrCreateInstallID: %v", err)
	}
	if first != second {
		t.Errorf("install id changed between uses: %q != %q", first, second)
	}
}
