// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("NewClient should fail without BaseURL")
	}
}

func TestList(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/apps" {
			t.Errorf("path = %q, want /api/apps", r.URL.Path)
		}
		if agent := r.Header.Get("User-Agent"); !strings.HasPrefix(agent, "lux/") {
			t.Errorf("User-Agent = %q, want lux/ prefix", agent)
		}
		json.NewEncoder(w).Encode([]Entry{
			{ID: "starfall", Name: "Starfall"},
			{ID: "driftline", Name: "Driftline"},
		})
	}))

	entries, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "starfall" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestDetail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/apps/starfall" {
			t.Errorf("path = %q, want /api/apps/starfall", r.URL.Path)
		}
		json.NewEncoder(w).Encode(EntryDetail{
			Entry:     Entry{ID: "starfall", Name: "Starfall"},
			LatestTag: "v2.1.0",
			Archives: map[string]Archive{
				"linux-amd64": {URL: "https://cdn.example/starfall.zip", Hash: "abc", BinaryPath: "starfall"},
			},
		})
	}))

	detail, err := client.Detail(context.Background(), "starfall")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if detail.LatestTag != "v2.1.0" {
		t.Errorf("LatestTag = %q", detail.LatestTag)
	}
	if _, ok := detail.Archives["linux-amd64"]; !ok {
		t.Errorf("Archives = %+v, want linux-amd64 key", detail.Archives)
	}
}

func TestDetailRequiresID(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())
	if _, err := client.Detail(context.Background(), ""); err == nil {
		t.Fatal("Detail should fail with empty id")
	}
}

func TestAPIErrorOnServerFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "catalog is down", http.StatusServiceUnavailable)
	}))

	_, err := client.List(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("List error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Body, "catalog is down") {
		t.Errorf("Body = %q", apiErr.Body)
	}
}

func TestMeSendsBearerToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer sekrit" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewEncoder(w).Encode(User{PublicID: "u-1", Username: "ada"})
	}))

	user, err := client.Me(context.Background(), "sekrit")
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if user.Username != "ada" {
		t.Errorf("Username = %q", user.Username)
	}
}

func TestAddFriendPostsPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/friends/add" {
			t.Errorf("%s %s, want POST /friends/add", r.Method, r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		if payload["friend_username"] != "grace" {
			t.Errorf("payload = %v", payload)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.AddFriend(context.Background(), "sekrit", "grace"); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
}

func TestDownloadReportsProgress(t *testing.T) {
	content := make([]byte, 64*1024)
	for i := range content {
		content[i] = byte(i)
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Write(content)
	}))

	destination := filepath.Join(t.TempDir(), "bundle.zip")
	var lastPercent float64
	err := client.Download(context.Background(), client.baseURL+"/archive", destination, func(percent float64) {
		if percent < lastPercent {
			t.Errorf("progress went backwards: %f after %f", percent, lastPercent)
		}
		lastPercent = percent
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if lastPercent != 100 {
		t.Errorf("final progress = %f, want 100", lastPercent)
	}

	written, err := os.ReadFile(destination)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(written) != len(content) {
		t.Errorf("wrote %d bytes, want %d", len(written), len(content))
	}
}

func TestDownloadUnknownLengthSkipsProgress(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flush before writing so the response is chunked with no
		// Content-Length header.
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write([]byte("archive bytes"))
	}))

	destination := filepath.Join(t.TempDir(), "bundle.zip")
	calls := 0
	err := client.Download(context.Background(), client.baseURL+"/archive", destination, func(float64) {
		calls++
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if calls != 0 {
		t.Errorf("progress callbacks = %d, want 0 for unknown length", calls)
	}

	written, err := os.ReadFile(destination)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(written) != "archive bytes" {
		t.Errorf("content = %q", written)
	}
}

func TestDownloadServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))

	err := client.Download(context.Background(), client.baseURL+"/archive", filepath.Join(t.TempDir(), "x"), nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Download error = %v, want *APIError", err)
	}
}
