// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the module's CBOR configuration.
//
// The swarm speaks two serialization formats:
//
//   - JSON at the bootstrap relay's HTTP boundary, where browsers and
//     other non-Go clients post {publicKey, signal} requests.
//   - CBOR inside the swarm: the WebRTC session description carried in
//     an encrypted signal payload, and the authentication handshake
//     exchanged on a freshly opened data channel.
//
// The gossip frames themselves (announce and signal messages) use a
// hand-laid binary layout in package wire because their signatures
// cover exact bytes.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical value always produces identical bytes. The decoder caps
// container sizes; every input it sees arrived from an untrusted peer.
//
// Types that cross both formats (transport.Signal) use `json` tags;
// fxamacker/cbor reads them as a fallback when `cbor` tags are absent.
// Types that are CBOR-only use `cbor` tags. Never both on one field.
package codec
