// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package session composes the Lux core behind the request/response
// and push-event boundary the UI layer consumes. The coordinator owns
// the single relay server and presence client instances, wires the
// credential store into both the catalog client and the presence dial,
// and forwards every bus event (hub pass-throughs, connection notices)
// to subscribers of Events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/lux-foundation/lux/catalog"
	"github.com/lux-foundation/lux/credential"
	"github.com/lux-foundation/lux/lib/clock"
	"github.com/lux-foundation/lux/lib/config"
	"github.com/lux-foundation/lux/lib/eventbus"
	"github.com/lux-foundation/lux/lifecycle"
	"github.com/lux-foundation/lux/presence"
	"github.com/lux-foundation/lux/relay"
)

// registryFile is the installed-apps registry name under the state
// directory.
const registryFile = "installed_apps.json"

// ErrNotAuthenticated means the operation requires a session token and
// none is stored. The UI routes this into the auth flow.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// AuthStatus is the answer to StartAuth: whether a valid credential is
// already present, and the login page to open when it is not.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	AuthURL       string `json:"authUrl"`
}

// CoordinatorConfig holds configuration for creating a Coordinator.
type CoordinatorConfig struct {
	// Config is the loaded core configuration. Required.
	Config *config.Config

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Clock drives time-dependent behavior (presence reconnect,
	// credential timestamps). If nil, clock.Real() is used.
	Clock clock.Clock
}

// Coordinator is the composition root of the core. One instance per
// process; the relay server and presence client it owns are the
// process-wide singletons.
type Coordinator struct {
	config   *config.Config
	store    *credential.Store
	catalog  *catalog.Client
	manager  *lifecycle.Manager
	relay    *relay.Server
	presence *presence.Client
	bus      *eventbus.Bus
	logger   *slog.Logger
}

// New builds the coordinator and everything under it. Data directories
// are created if absent; no network traffic happens until an operation
// is called.
func New(coordinatorConfig CoordinatorConfig) (*Coordinator, error) {
	cfg := coordinatorConfig.Config
	if cfg == nil {
		return nil, fmt.Errorf("session: Config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session: invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, fmt.Errorf("session: preparing data directories: %w", err)
	}

	logger := coordinatorConfig.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeSource := coordinatorConfig.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}

	store, err := credential.NewStore(credential.StoreConfig{
		Dir:    cfg.Paths.State,
		Logger: logger,
		Clock:  timeSource,
	})
	if err != nil {
		return nil, err
	}

	catalogClient, err := catalog.NewClient(catalog.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	relayServer := relay.NewServer(relay.ServerConfig{
		PortMin: cfg.Relay.PortMin,
		PortMax: cfg.Relay.PortMax,
		Logger:  logger,
	})

	registry := lifecycle.NewRegistry(filepath.Join(cfg.Paths.State, registryFile))
	manager, err := lifecycle.NewManager(lifecycle.ManagerConfig{
		Catalog:  catalogClient,
		Registry: registry,
		AppsDir:  cfg.Paths.Apps,
		Relay:    relayServer,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	presenceClient, err := presence.NewClient(presence.ClientConfig{
		HubURL:            cfg.API.HubURL,
		Token:             store.Load,
		Bus:               bus,
		ReconnectInterval: cfg.ReconnectInterval(),
		DefaultStatus:     cfg.Presence.DefaultStatus,
		Logger:            logger,
		Clock:             timeSource,
	})
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		config:   cfg,
		store:    store,
		catalog:  catalogClient,
		manager:  manager,
		relay:    relayServer,
		presence: presenceClient,
		bus:      bus,
		logger:   logger,
	}, nil
}

// Close tears down the long-lived components: the presence connection
// and any active relay session.
func (c *Coordinator) Close() {
	c.presence.Close()
	c.relay.Stop()
}

// Events returns a channel carrying every core push event — hub
// pass-throughs, presence notices — and a cancel function releasing
// the subscription.
func (c *Coordinator) Events() (<-chan eventbus.Message, func()) {
	return c.bus.SubscribeAll()
}

// Apps lists the catalog merged with local install state.
func (c *Coordinator) Apps(ctx context.Context) ([]lifecycle.AppSummary, error) {
	return c.manager.List(ctx)
}

// AppDetail fetches the full catalog descriptor for one application.
func (c *Coordinator) AppDetail(ctx context.Context, id string) (*catalog.EntryDetail, error) {
	return c.catalog.Detail(ctx, id)
}

// Install installs an application, forwarding download progress.
func (c *Coordinator) Install(ctx context.Context, id string, onProgress catalog.ProgressFunc) error {
	return c.manager.Install(ctx, id, onProgress)
}

// Uninstall removes an installed application.
func (c *Coordinator) Uninstall(ctx context.Context, id string) error {
	return c.manager.Uninstall(ctx, id)
}

// CheckForUpdates reports whether a newer version is published.
func (c *Coordinator) CheckForUpdates(ctx context.Context, id string) (bool, error) {
	return c.manager.CheckForUpdates(ctx, id)
}

// VerifyFiles checks the installed tree against the catalog's declared
// hash.
func (c *Coordinator) VerifyFiles(ctx context.Context, id string) (bool, error) {
	return c.manager.VerifyFiles(ctx, id)
}

// Launch starts an installed application, handing it the stored
// session token over the relay.
func (c *Coordinator) Launch(ctx context.Context, id string) error {
	token := c.store.Load()
	if token == "" {
		return ErrNotAuthenticated
	}
	return c.manager.Launch(ctx, id, token)
}

// RelayDone returns a channel closed when the active relay session
// ends, or nil when no launch has started one. Callers that must
// outlive a launched process (the headless CLI) wait on it before
// exiting — the relay dies with this process.
func (c *Coordinator) RelayDone() <-chan struct{} {
	return c.relay.Done()
}

// ConnectPresence opens the presence hub connection. Fails when no
// credential is stored — the dial would only bounce off the hub's
// auth check.
func (c *Coordinator) ConnectPresence() error {
	if c.store.Load() == "" {
		return ErrNotAuthenticated
	}
	c.presence.Connect()
	return nil
}

// Presence returns the friends presence map.
func (c *Coordinator) Presence() map[string]presence.FriendStatus {
	return c.presence.Presence()
}

// SetPresence sets the local presence status.
func (c *Coordinator) SetPresence(status string) {
	c.presence.SetPresence(status)
}

// Me fetches the authenticated account.
func (c *Coordinator) Me(ctx context.Context) (*catalog.User, error) {
	token := c.store.Load()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return c.catalog.Me(ctx, token)
}

// Friends fetches the friend list.
func (c *Coordinator) Friends(ctx context.Context) ([]catalog.Friend, error) {
	token := c.store.Load()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return c.catalog.Friends(ctx, token)
}

// AddFriend sends a friend request by username.
func (c *Coordinator) AddFriend(ctx context.Context, username string) error {
	token := c.store.Load()
	if token == "" {
		return ErrNotAuthenticated
	}
	return c.catalog.AddFriend(ctx, token, username)
}

// RemoveFriend removes a friend by public id.
func (c *Coordinator) RemoveFriend(ctx context.Context, publicID string) error {
	token := c.store.Load()
	if token == "" {
		return ErrNotAuthenticated
	}
	return c.catalog.RemoveFriend(ctx, token, publicID)
}

// StartAuth begins the login flow: reports whether a stored credential
// already authenticates this installation, and if not, the login page
// for the UI to open.
func (c *Coordinator) StartAuth() AuthStatus {
	return AuthStatus{
		Authenticated: c.store.Load() != "",
		AuthURL:       c.config.API.AuthURL,
	}
}

// CompleteAuth finishes the login flow with the redirect URL the login
// page lands on. The session token travels in the redirect's "token"
// query parameter; it is persisted and the presence connection is
// opened.
func (c *Coordinator) CompleteAuth(redirectURL string) error {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("session: parsing redirect url: %w", err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		return fmt.Errorf("session: redirect url carries no token")
	}

	if err := c.store.Save(token); err != nil {
		return err
	}
	c.logger.Info("authentication completed")
	c.presence.Connect()
	return nil
}

// Logout clears the stored credential and closes the presence
// connection.
func (c *Coordinator) Logout() error {
	c.presence.Close()
	return c.store.Clear()
}
