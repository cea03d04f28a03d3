// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

func TestHashFile(t *testing.T) {
	content := []byte("hello, lux")
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	want := sha256.Sum256(content)
	if got != want {
		t.Errorf("HashFile = %x, want %x", got, want)
	}
}

func TestHashFileDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, []byte("determinism check"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	first, err := HashFile(path)
	if err != nil {
		t.Fatalf("first HashFile: %v", err)
	}
	second, err := HashFile(path)
	if err != nil {
		t.Fatalf("second HashFile: %v", err)
	}
	if first != second {
		t.Errorf("HashFile not deterministic: %x != %x", first, second)
	}
}

func TestHashFileNonexistent(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("HashFile should fail for nonexistent file")
	}
}

func TestHashFileLarge(t *testing.T) {
	// Ensure streaming works for files larger than typical buffers.
	content := make([]byte, 256*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "large-archive")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	want := sha256.Sum256(content)
	if got != want {
		t.Errorf("HashFile(large) = %x, want %x", got, want)
	}
}

// writeTree creates a small installed-app layout for tree hash tests.
func writeTree(t *testing.T, root string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, "data"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	files := map[string]string{
		"app":             "binary bytes",
		"data/assets.pak": "asset bytes",
		"data/config.ini": "config bytes",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0755); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
}

func TestHashTreeDeterministic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	first, err := HashTree(root)
	if err != nil {
		t.Fatalf("first HashTree: %v", err)
	}
	second, err := HashTree(root)
	if err != nil {
		t.Fatalf("second HashTree: %v", err)
	}
	if first != second {
		t.Errorf("HashTree not deterministic: %x != %x", first, second)
	}
}

func TestHashTreeDetectsModification(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	before, err := HashTree(root)
	if err != nil {
		t.Fatalf("HashTree: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "data", "assets.pak"), []byte("tampered"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	after, err := HashTree(root)
	if err != nil {
		t.Fatalf("HashTree after modification: %v", err)
	}
	if before == after {
		t.Error("HashTree should change when a file is modified")
	}
}

func TestHashTreeIndependentOfCreationOrder(t *testing.T) {
	// Two trees with identical content written in different order must
	// hash identically — the fold is over sorted paths, not creation
	// or enumeration order.
	first := t.TempDir()
	for _, name := range []string{"a.bin", "b.bin", "c.bin"} {
		if err := os.WriteFile(filepath.Join(first, name), []byte(name+" content"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	second := t.TempDir()
	for _, name := range []string{"c.bin", "a.bin", "b.bin"} {
		if err := os.WriteFile(filepath.Join(second, name), []byte(name+" content"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	firstDigest, err := HashTree(first)
	if err != nil {
		t.Fatalf("HashTree(first): %v", err)
	}
	secondDigest, err := HashTree(second)
	if err != nil {
		t.Fatalf("HashTree(second): %v", err)
	}
	if firstDigest != secondDigest {
		t.Errorf("HashTree depends on creation order: %x != %x", firstDigest, secondDigest)
	}
}

func TestHashTreeSkipsNonRegularFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root)

	before, err := HashTree(root)
	if err != nil {
		t.Fatalf("HashTree: %v", err)
	}

	// A symlink pointing at an existing file must not change the digest.
	if err := os.Symlink(filepath.Join(root, "app"), filepath.Join(root, "app-link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	after, err := HashTree(root)
	if err != nil {
		t.Fatalf("HashTree with symlink: %v", err)
	}
	if before != after {
		t.Errorf("HashTree should ignore symlinks: %x != %x", before, after)
	}
}

func TestHashTreeEmptyDirectory(t *testing.T) {
	digest, err := HashTree(t.TempDir())
	if err != nil {
		t.Fatalf("HashTree(empty): %v", err)
	}
	want := sha256.Sum256(nil)
	if digest != want {
		t.Errorf("HashTree(empty) = %x, want hash of no input %x", digest, want)
	}
}

func TestFormatParseDigestRoundTrip(t *testing.T) {
	original := sha256.Sum256([]byte("round-trip"))
	formatted := FormatDigest(original)
	if len(formatted) != 64 {
		t.Errorf("FormatDigest length = %d, want 64", len(formatted))
	}

	parsed, err := ParseDigest(formatted)
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if parsed != original {
		t.Errorf("ParseDigest round-trip failed: %x != %x", parsed, original)
	}
}

func TestParseDigestInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not hex", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"},
		{"too short", "abcd"},
		{"empty", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseDigest(test.input); err == nil {
				t.Errorf("ParseDigest(%q) should fail", test.input)
			}
		})
	}
}
