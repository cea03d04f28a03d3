// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import "errors"

// Sentinel errors classifying lifecycle operation failures. Callers
// match with errors.Is; each is wrapped with operation context at the
// point of failure.
var (
	// ErrNotInstalled means the operation requires a registry entry
	// that is absent.
	ErrNotInstalled = errors.New("app is not installed")

	// ErrPlatformUnsupported means the catalog has no archive for the
	// running platform and architecture.
	ErrPlatformUnsupported = errors.New("no archive for this platform")

	// ErrIntegrityMismatch means a computed hash disagrees with the
	// catalog's declared hash.
	ErrIntegrityMismatch = errors.New("content hash mismatch")

	// ErrOperationInProgress means another lifecycle operation holds
	// the lock. The caller should retry later, not immediately.
	ErrOperationInProgress = errors.New("another operation is in progress")

	// ErrCatalogUnavailable means the catalog listing could not be
	// fetched.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)
