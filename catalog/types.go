// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

// Entry is one installable application as returned by the catalog
// listing endpoint. Entries are remote-sourced and immutable from the
// client's perspective — fetched on demand, never cached beyond a
// single listing call.
type Entry struct {
	// ID is the catalog's stable identifier for the application. It
	// keys the installed-apps registry and names the install directory.
	ID string `json:"uid"`

	// Name is the human-readable display name.
	Name string `json:"name"`
}

// EntryDetail is the full descriptor for one application, including
// its per-platform archives.
type EntryDetail struct {
	Entry

	// Archives maps a platform-architecture key (e.g. "linux-amd64")
	// to the downloadable bundle for that platform. A missing key
	// means the application does not support that platform.
	Archives map[string]Archive `json:"archives"`

	// LatestTag is the version tag of the newest published build.
	// Compared against the registry's stored version to decide whether
	// an update is available.
	LatestTag string `json:"latest_tag"`
}

// Archive is one per-platform downloadable bundle.
type Archive struct {
	// URL is where the archive bytes are fetched from.
	URL string `json:"url"`

	// Hash is the hex SHA256 digest of the archive file itself,
	// verified after download before extraction.
	Hash string `json:"hash"`

	// TreeHash is the hex aggregate SHA256 digest of the extracted
	// file tree (per-file digests folded in lexicographic path order).
	// Used by file verification after install.
	TreeHash string `json:"tree_hash"`

	// BinaryPath is the path of the launchable executable relative to
	// the install directory.
	BinaryPath string `json:"binary_path"`
}

// User is the authenticated account returned by the /users/me
// endpoint.
type User struct {
	// PublicID is the account's stable public identifier.
	PublicID string `json:"public_id"`

	// Username is the display handle.
	Username string `json:"username"`
}

// Friend is one entry in the authenticated user's friend list.
type Friend struct {
	// FriendID is the friend's public identifier. Matches the keys of
	// the presence map maintained by the presence client.
	FriendID string `json:"friend_id"`

	// Username is the friend's display handle.
	Username string `json:"username"`
}
