// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes SHA256 content digests for downloaded
// archives and installed application trees. Single files are hashed by
// streaming (constant memory); directory trees are hashed by folding
// per-file digests into one aggregate in lexicographic path order, so
// the digest a packaging host publishes matches what any client
// recomputes regardless of filesystem enumeration order.
package binhash
