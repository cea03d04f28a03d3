// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"runtime"
)

// Version is the client version reported in the User-Agent header.
// Overridden at build time via -ldflags "-X ...netutil.Version=1.2.3".
var Version = "dev"

// UserAgent returns the platform-qualified user-agent string sent with
// every catalog request and the presence hub handshake, e.g.
// "lux/1.2.3 (X11; Linux amd64)". The hub uses it to distinguish
// client builds in its connection logs.
func UserAgent() string {
	return fmt.Sprintf("lux/%s (%s)", Version, osInfo())
}

// osInfo renders the parenthesized platform segment. The shapes follow
// the conventions browsers established for each platform, which is
// what the backend's log tooling already parses.
func osInfo() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows NT; " + runtime.GOARCH
	case "darwin":
		return "Macintosh; Mac OS X; " + runtime.GOARCH
	case "linux":
		return "X11; Linux " + runtime.GOARCH
	default:
		return runtime.GOOS + " " + runtime.GOARCH
	}
}
