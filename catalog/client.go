// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog is the HTTP client for the remote application
// catalog: listing installable entries, fetching per-platform archive
// details, streaming archive downloads, and the social endpoints
// (account, friends) that share the same API surface.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lux-foundation/lux/lib/netutil"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the catalog API base URL (e.g., "https://api.lux.gg").
	BaseURL string

	// Timeout bounds each JSON API request. Zero means 5 seconds.
	// Archive downloads are not subject to this timeout — they are
	// bounded only by their context.
	Timeout time.Duration

	// HTTPClient is used for JSON API requests. If nil, a client with
	// the configured timeout is created.
	HTTPClient *http.Client

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client is a catalog API client. It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	downloadClient *http.Client
	logger         *slog.Logger
}

// NewClient creates a catalog client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("catalog: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("catalog: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		// Downloads stream for as long as the transfer takes; the
		// only bound is the caller's context.
		downloadClient: &http.Client{},
		logger:         logger,
	}, nil
}

// List fetches the full catalog listing.
func (c *Client) List(ctx context.Context) ([]Entry, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/apps", "", nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing apps: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("catalog: parsing app listing: %w", err)
	}
	return entries, nil
}

// Detail fetches the full descriptor for one application.
func (c *Client) Detail(ctx context.Context, id string) (*EntryDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("catalog: app id is required")
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/apps/"+url.PathEscape(id), "", nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetching detail for %s: %w", id, err)
	}

	var detail EntryDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("catalog: parsing detail for %s: %w", id, err)
	}
	return &detail, nil
}

// Me fetches the authenticated account.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/users/me", token, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetching account: %w", err)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("catalog: parsing account: %w", err)
	}
	return &user, nil
}

// Friends fetches the authenticated user's friend list.
func (c *Client) Friends(ctx context.Context, token string) ([]Friend, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/friends", token, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetching friends: %w", err)
	}

	var friends []Friend
	if err := json.Unmarshal(body, &friends); err != nil {
		return nil, fmt.Errorf("catalog: parsing friends: %w", err)
	}
	return friends, nil
}

// AddFriend sends a friend request by username.
func (c *Client) AddFriend(ctx context.Context, token, username string) error {
	payload := map[string]string{"friend_username": username}
	if _, err := c.doRequest(ctx, http.MethodPost, "/friends/add", token, payload); err != nil {
		return fmt.Errorf("catalog: adding friend %q: %w", username, err)
	}
	return nil
}

// RemoveFriend removes a friend by public id.
func (c *Client) RemoveFriend(ctx context.Context, token, publicID string) error {
	payload := map[string]string{"friend_public_id": publicID}
	if _, err := c.doRequest(ctx, http.MethodPost, "/friends/remove", token, payload); err != nil {
		return fmt.Errorf("catalog: removing friend %q: %w", publicID, err)
	}
	return nil
}

// doRequest performs a JSON API request and returns the response body.
// On 2xx, returns the body. On any other status, returns an *APIError.
// token may be empty for unauthenticated endpoints.
func (c *Client) doRequest(ctx context.Context, method, path, token string, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("User-Agent", netutil.UserAgent())
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: response.StatusCode,
			Endpoint:   path,
			Body:       netutil.ErrorBody(response.Body),
		}
	}

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return responseBody, nil
}
