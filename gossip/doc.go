// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gossip floods topic announcements and targeted signals
// across a swarm's open connections.
//
// Two message kinds travel through the [Engine]:
//
//   - Announcements ([wire.TopicMessage]) carry the origin's
//     capabilities and joined topics, signed by the origin. Every
//     receiver verifies the signature and updates its peer registry.
//   - Signals ([wire.SignalMessage]) carry a session description
//     encrypted for one target identity. Intermediate peers forward
//     them without being able to read them.
//
// Both kinds are deduplicated by (origin, messageID) in a bounded LRU
// cache and forwarded with TTL-1 to every connection except the one
// the message arrived on and the origin's own connection. A message
// that arrives with TTL 0 is still consumed locally but never
// forwarded. Messages from ourselves are ignored.
//
// The Engine is not safe for concurrent use; the swarm drives it from
// a single actor.
package gossip
