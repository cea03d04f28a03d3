// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// archiveExtension returns the archive suffix implied by the download
// URL's path.
func archiveExtension(archiveURL string) (string, error) {
	parsed, err := url.Parse(archiveURL)
	if err != nil {
		return "", fmt.Errorf("lifecycle: parsing archive url %q: %w", archiveURL, err)
	}
	name := path.Base(parsed.Path)
	switch {
	case strings.HasSuffix(name, ".tar.zst"):
		return ".tar.zst", nil
	case strings.HasSuffix(name, ".zip"):
		return ".zip", nil
	default:
		return "", fmt.Errorf("lifecycle: unsupported archive format %q", name)
	}
}

// extractArchive unpacks the downloaded archive into destination,
// dispatching on the archive's file extension.
func extractArchive(archivePath, destination string) error {
	switch {
	case strings.HasSuffix(archivePath, ".tar.zst"):
		return extractTarZst(archivePath, destination)
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, destination)
	default:
		return fmt.Errorf("lifecycle: unsupported archive format %q", filepath.Base(archivePath))
	}
}

func extractZip(archivePath, destination string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("lifecycle: opening zip %s: %w", archivePath, err)
	}
	defer reader.Close()

	reader.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	for _, file := range reader.File {
		target, err := safeJoin(destination, file.Name)
		if err != nil {
			return err
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("lifecycle: creating directory %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("lifecycle: creating directory for %s: %w", target, err)
		}
		source, err := file.Open()
		if err != nil {
			return fmt.Errorf("lifecycle: opening %s in zip: %w", file.Name, err)
		}
		if err := writeExtracted(target, source, file.Mode()); err != nil {
			source.Close()
			return err
		}
		source.Close()
	}
	return nil
}

func extractTarZst(archivePath, destination string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("lifecycle: opening archive %s: %w", archivePath, err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return fmt.Errorf("lifecycle: creating zstd reader: %w", err)
	}
	defer decoder.Close()

	tarReader := tar.NewReader(decoder)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lifecycle: reading tar entry: %w", err)
		}

		target, err := safeJoin(destination, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("lifecycle: creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("lifecycle: creating directory for %s: %w", target, err)
			}
			if err := writeExtracted(target, tarReader, header.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// Symlinks, devices, and other special entries do not
			// belong in an application archive.
			return fmt.Errorf("lifecycle: unsupported tar entry type %d for %s",
				header.Typeflag, header.Name)
		}
	}
}

func writeExtracted(target string, source io.Reader, mode os.FileMode) error {
	destination, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("lifecycle: creating %s: %w", target, err)
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return fmt.Errorf("lifecycle: writing %s: %w", target, err)
	}
	if err := destination.Close(); err != nil {
		return fmt.Errorf("lifecycle: finishing %s: %w", target, err)
	}
	return nil
}

// safeJoin resolves an archive member name under root, rejecting
// absolute paths and parent-directory escapes.
func safeJoin(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("lifecycle: archive entry %q escapes the install directory", name)
	}
	return filepath.Join(root, cleaned), nil
}
