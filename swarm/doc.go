// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package swarm finds peers by topic and keeps direct WebRTC
// connections to them.
//
// A [Swarm] joins 32-byte topics and announces them over gossip to every
// peer it is connected to. Announcements flood through the swarm with a
// hop limit; when one arrives from a peer whose topics overlap ours and
// that can accept WebRTC, the swarm dials it. Session negotiation data
// for that dial travels as encrypted gossip signals addressed to the
// peer, relayed by intermediate nodes that cannot read it. A node with
// no connections reaches the swarm through a bootstrap [Relay]: a
// well-known peer that answers WebRTC offers over plain HTTP.
//
// All lifecycle state (open connections, in-progress attempts, joined
// topics, timers) belongs to one actor. Public methods hand work to it
// and wait; transport callbacks and timers enqueue work without
// waiting. Methods whose names start with an underscore run only on the
// actor.
//
// Admission is bounded by Options: total and WebRTC peer caps, a cap on
// parallel attempts (excess dials are deferred, not dropped), a retry
// budget per peer with jittered backoff, and an application firewall.
//
// Every new stream is mutually authenticated with the peers' Ed25519
// identities before it is promoted to a [Connection]. A Connection
// multiplexes three lanes over the stream: application bytes (exposed
// through Read and Write), announcements and signals.
//
// Applications learn about peers and connections through [Observer]
// values registered with [Swarm.Subscribe]. Observers run on their own
// actor, in event order, and may call back into the swarm.
package swarm
