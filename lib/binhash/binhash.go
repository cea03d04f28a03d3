// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// HashFile computes the SHA256 digest of the file at path. The file is
// streamed through the hash function in chunks (via io.Copy) to keep
// memory usage constant regardless of file size.
func HashFile(path string) ([32]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return [32]byte{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// HashTree computes an aggregate SHA256 digest over every regular file
// under root. Each file's individual digest is folded into a cumulative
// hash in lexicographic path order, so the result is independent of the
// platform's directory enumeration order. Symlinks, directories, and
// other non-regular entries contribute nothing.
//
// The aggregate covers file contents only — not names, permissions, or
// layout. Renaming a file without changing its bytes does not change
// the tree digest. This matches the reference digests published by the
// catalog, which are produced the same way at packaging time.
func HashTree(root string) ([32]byte, error) {
	hasher := sha256.New()

	// filepath.WalkDir visits entries in lexical order within each
	// directory, which makes the fold order deterministic across
	// platforms and filesystems.
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		digest, err := HashFile(path)
		if err != nil {
			return err
		}
		hasher.Write(digest[:])
		return nil
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("hashing tree %s: %w", root, err)
	}

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// FormatDigest returns the hex-encoded string representation of a
// SHA256 digest. This is the canonical format used in catalog
// metadata, the installed-apps registry, and log output.
func FormatDigest(digest [32]byte) string {
	return hex.EncodeToString(digest[:])
}

// ParseDigest parses a hex-encoded SHA256 digest string into a
// 32-byte array. Returns an error if the string is not a valid
// 64-character hex encoding of 32 bytes.
func ParseDigest(hexString string) ([32]byte, error) {
	var digest [32]byte
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing hash digest: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("hash digest is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}
