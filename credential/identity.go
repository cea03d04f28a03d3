// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// installIDBytes is the entropy of a freshly generated install
// identity. 16 bytes hex-encodes to a 32-character id.
const installIDBytes = 16

// loadOrCreateInstallID returns the per-installation identifier stored
// at path, generating and persisting a new one on first use. The id is
// created once and never rotated — rotating it would orphan the
// encrypted credential file.
func loadOrCreateInstallID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
		// An empty identity file is unusable; fall through and
		// regenerate.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading install identity %s: %w", path, err)
	}

	raw := make([]byte, installIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating install identity: %w", err)
	}
	id := hex.EncodeToString(raw)

	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return "", fmt.Errorf("writing install identity %s: %w", path, err)
	}
	return id, nil
}
