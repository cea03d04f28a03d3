// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle orchestrates application install, update, verify,
// uninstall, and launch against the remote catalog and the local
// filesystem.
//
// Every public operation is serialized through a single-flight
// operation lock: a second call while one is outstanding fails
// immediately with ErrOperationInProgress, it is never queued. The
// installed-apps registry file is the sole source of truth for "is
// installed" and is rewritten in full on every mutation.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/lux-foundation/lux/catalog"
	"github.com/lux-foundation/lux/lib/binhash"
	"github.com/lux-foundation/lux/relay"
)

// relayPortEnv is the environment variable handing the relay port to
// the launched process.
const relayPortEnv = "LUX_RELAY_PORT"

// tokenSubject is the relay subject a launched process uses to request
// the session credential.
const tokenSubject = "token"

// AppSummary is one row of the merged catalog/registry listing.
type AppSummary struct {
	ID        string `json:"uid"`
	Name      string `json:"name"`
	Installed bool   `json:"isInstalled"`
}

// ManagerConfig holds configuration for creating a Manager.
type ManagerConfig struct {
	// Catalog is the remote catalog client.
	Catalog *catalog.Client

	// Registry is the installed-apps registry.
	Registry *Registry

	// AppsDir is the directory under which per-app install directories
	// are created.
	AppsDir string

	// Relay is the credential relay started for launched processes.
	Relay *relay.Server

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Manager implements the lifecycle operations. Safe for concurrent
// use; concurrent operations are rejected, not serialized.
type Manager struct {
	catalog  *catalog.Client
	registry *Registry
	appsDir  string
	relay    *relay.Server
	logger   *slog.Logger

	lock operationLock
}

// NewManager creates a lifecycle manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Catalog == nil {
		return nil, fmt.Errorf("lifecycle: Catalog is required")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("lifecycle: Registry is required")
	}
	if config.AppsDir == "" {
		return nil, fmt.Errorf("lifecycle: AppsDir is required")
	}
	if config.Relay == nil {
		return nil, fmt.Errorf("lifecycle: Relay is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		catalog:  config.Catalog,
		registry: config.Registry,
		appsDir:  config.AppsDir,
		relay:    config.Relay,
		logger:   logger,
	}, nil
}

// PlatformKey is the archive map key for the running platform.
func PlatformKey() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

// List merges the remote catalog listing with local registry
// membership.
func (m *Manager) List(ctx context.Context) ([]AppSummary, error) {
	release, err := m.lock.acquire("list", "")
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := m.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: %w: %w", ErrCatalogUnavailable, err)
	}
	installed, err := m.registry.All()
	if err != nil {
		return nil, err
	}

	summaries := make([]AppSummary, 0, len(entries))
	for _, entry := range entries {
		_, ok := installed[entry.ID]
		summaries = append(summaries, AppSummary{
			ID:        entry.ID,
			Name:      entry.Name,
			Installed: ok,
		})
	}
	return summaries, nil
}

// Install downloads, verifies, and extracts the platform archive for
// id, then records it in the registry. Progress percentages are
// forwarded to onProgress during the download; onProgress may be nil.
//
// A failure after the install directory is created leaves a partial,
// unregistered directory behind. It is not cleaned up automatically —
// the registry never references it, and the remains are useful when
// diagnosing a failed install.
func (m *Manager) Install(ctx context.Context, id string, onProgress catalog.ProgressFunc) error {
	release, err := m.lock.acquire("install", id)
	if err != nil {
		return err
	}
	defer release()

	detail, err := m.catalog.Detail(ctx, id)
	if err != nil {
		return fmt.Errorf("lifecycle: fetching detail for install: %w", err)
	}
	archive, ok := detail.Archives[PlatformKey()]
	if !ok {
		return fmt.Errorf("lifecycle: %w: %s has no %s archive", ErrPlatformUnsupported, id, PlatformKey())
	}

	extension, err := archiveExtension(archive.URL)
	if err != nil {
		return err
	}

	installPath := filepath.Join(m.appsDir, id)
	if err := os.MkdirAll(installPath, 0755); err != nil {
		return fmt.Errorf("lifecycle: creating install directory %s: %w", installPath, err)
	}

	archivePath := filepath.Join(m.appsDir, id+".download"+extension)
	m.logger.Info("downloading archive",
		"app_id", id,
		"url", archive.URL,
		"destination", archivePath,
	)
	if err := m.catalog.Download(ctx, archive.URL, archivePath, onProgress); err != nil {
		return fmt.Errorf("lifecycle: downloading archive for %s: %w", id, err)
	}

	digest, err := binhash.HashFile(archivePath)
	if err != nil {
		return fmt.Errorf("lifecycle: hashing downloaded archive: %w", err)
	}
	if !strings.EqualFold(binhash.FormatDigest(digest), archive.Hash) {
		// The mismatched download stays on disk for inspection; it is
		// never extracted or registered.
		return fmt.Errorf("lifecycle: %w: archive for %s computed %s, declared %s",
			ErrIntegrityMismatch, id, binhash.FormatDigest(digest), archive.Hash)
	}

	if err := extractArchive(archivePath, installPath); err != nil {
		return err
	}
	if err := os.Remove(archivePath); err != nil {
		return fmt.Errorf("lifecycle: removing archive %s: %w", archivePath, err)
	}

	if err := m.registry.Put(id, InstalledApp{
		Name:        detail.Name,
		Version:     detail.LatestTag,
		InstallPath: installPath,
		BinaryPath:  archive.BinaryPath,
	}); err != nil {
		return err
	}

	m.logger.Info("app installed", "app_id", id, "version", detail.LatestTag)
	return nil
}

// Uninstall removes the install directory and the registry entry.
// Removal of an already-absent directory is not an error.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	release, err := m.lock.acquire("uninstall", id)
	if err != nil {
		return err
	}
	defer release()

	record, ok, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lifecycle: uninstall %s: %w", id, ErrNotInstalled)
	}

	if err := os.RemoveAll(record.InstallPath); err != nil {
		return fmt.Errorf("lifecycle: removing %s: %w", record.InstallPath, err)
	}
	if err := m.registry.Delete(id); err != nil {
		return err
	}

	m.logger.Info("app uninstalled", "app_id", id)
	return nil
}

// CheckForUpdates reports whether the catalog's latest version tag
// differs from the installed version. No mutation.
func (m *Manager) CheckForUpdates(ctx context.Context, id string) (bool, error) {
	release, err := m.lock.acquire("check-updates", id)
	if err != nil {
		return false, err
	}
	defer release()

	record, ok, err := m.registry.Get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("lifecycle: check updates for %s: %w", id, ErrNotInstalled)
	}

	detail, err := m.catalog.Detail(ctx, id)
	if err != nil {
		return false, fmt.Errorf("lifecycle: fetching detail for update check: %w", err)
	}
	return detail.LatestTag != record.Version, nil
}

// VerifyFiles recomputes the install directory's aggregate hash and
// compares it against the catalog's declared tree hash. Returns the
// comparison result; never repairs.
func (m *Manager) VerifyFiles(ctx context.Context, id string) (bool, error) {
	release, err := m.lock.acquire("verify", id)
	if err != nil {
		return false, err
	}
	defer release()

	record, ok, err := m.registry.Get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("lifecycle: verify %s: %w", id, ErrNotInstalled)
	}

	detail, err := m.catalog.Detail(ctx, id)
	if err != nil {
		return false, fmt.Errorf("lifecycle: fetching detail for verify: %w", err)
	}
	archive, archiveOK := detail.Archives[PlatformKey()]
	if !archiveOK {
		return false, fmt.Errorf("lifecycle: %w: %s has no %s archive", ErrPlatformUnsupported, id, PlatformKey())
	}

	digest, err := binhash.HashTree(record.InstallPath)
	if err != nil {
		return false, fmt.Errorf("lifecycle: hashing install directory: %w", err)
	}
	return strings.EqualFold(binhash.FormatDigest(digest), archive.TreeHash), nil
}

// Launch spawns the installed binary as a detached process, starts the
// credential relay, and registers a one-shot responder that answers
// the process's token request with the given credential. The relay is
// stopped when the process exits.
//
// The manager does not own the spawned process beyond that: it is in
// its own session and survives this process exiting.
func (m *Manager) Launch(ctx context.Context, id string, credential string) error {
	release, err := m.lock.acquire("launch", id)
	if err != nil {
		return err
	}
	defer release()

	record, ok, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lifecycle: launch %s: %w", id, ErrNotInstalled)
	}

	binary := filepath.Join(record.InstallPath, record.BinaryPath)
	if _, err := os.Stat(binary); err != nil {
		return fmt.Errorf("lifecycle: resolving binary for %s: %w", id, err)
	}

	// Start (or reuse) the relay before the spawn so the port is in
	// the child's environment. Start while running returns the
	// existing port rather than binding a second listener.
	port, err := m.relay.Start()
	if err != nil {
		return fmt.Errorf("lifecycle: starting relay: %w", err)
	}

	// One-shot: answer the first token request, then unsubscribe. The
	// relay's done channel bounds the wait when the process never asks.
	relayDone := m.relay.Done()
	requests, cancelSubscription := m.relay.Subscribe(tokenSubject)
	go func() {
		defer cancelSubscription()
		select {
		case _, ok := <-requests:
			if ok {
				m.relay.Send(tokenSubject, map[string]string{"token": credential})
			}
		case <-relayDone:
		}
	}()

	command := exec.Command(binary)
	command.Dir = record.InstallPath
	command.Env = append(os.Environ(), relayPortEnv+"="+strconv.Itoa(port))
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := command.Start(); err != nil {
		cancelSubscription()
		m.relay.Stop()
		return fmt.Errorf("lifecycle: starting %s: %w", binary, err)
	}

	m.logger.Info("app launched",
		"app_id", id,
		"binary", binary,
		"pid", command.Process.Pid,
		"relay_port", port,
	)

	// Reap the child and tie the relay session to its lifetime.
	go func() {
		err := command.Wait()
		m.logger.Info("launched app exited", "app_id", id, "error", err)
		m.relay.Stop()
	}()

	return nil
}
