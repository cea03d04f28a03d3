// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential persists the session token, encrypted with a key
// derived from this installation's identity. The token file produced
// on one device is useless on another: the encryption passphrase is a
// BLAKE3 digest over the install id, hostname, OS, and architecture,
// and the decrypted record additionally embeds the hostname it was
// written on.
//
// The store never surfaces decryption or validation failures to its
// callers. A record that cannot be read, decrypted, or validated is
// equivalent to no record at all — the stale file is removed and the
// caller sees an empty token, which upstream treats as "not logged
// in" and routes into the auth flow.
package credential
