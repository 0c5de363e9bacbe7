// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyed provides containers addressed by 32-byte binary keys.
//
// Swarm identities (Ed25519 public keys) and topics are both opaque
// 32-byte values. [Key] is the comparable array form used everywhere
// those values are indexed: the connection table, in-progress attempts,
// the peer registry, banned identities, and joined topics.
//
// [Map] and [Set] iterate in insertion order. Gossip forwarding walks
// the connection table, and a stable order makes that walk (and the
// tests that observe it) deterministic. Re-setting an existing key
// keeps its original position.
//
// The containers are not safe for concurrent use. Every owner in this
// module either serialises access through an actor or guards the
// container with its own mutex.
package keyed
