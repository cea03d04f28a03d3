// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source. Real() delegates
// to the time package; Fake() stands still until a test calls Advance,
// making delay-driven behavior (reconnect backoff, timeouts)
// deterministic under test.
package clock
