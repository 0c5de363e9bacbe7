// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport establishes the direct peer-to-peer byte streams a
// swarm runs its connections over.
//
// A [Session] is one connection attempt. It is created by a
// [SessionFactory] with a role: the initiator produces an offer, the
// responder consumes it and produces an answer. Signaling data leaves a
// session through [Callbacks].OnSignal and enters through
// [Session].Signal; how it travels between the two peers (encrypted
// gossip, the bootstrap relay's HTTP exchange) is the caller's concern.
// When the stream is up the session reports it through
// [Callbacks].OnConnect as a net.Conn. Failure before that point is
// reported through [Callbacks].OnError. Callbacks run on transport
// goroutines and must not block.
//
// [RTCFactory] is the production implementation: pion/webrtc
// PeerConnections using vanilla ICE (all candidates gathered before the
// SDP is emitted, so negotiation takes exactly one offer and one answer)
// and a single ordered, reliable data channel per session. The data
// channel is detached and wrapped as a [DataChannelConn], which turns
// SCTP's message-oriented reads into a byte stream.
//
// [MemoryFabric] implements SessionFactory over net.Pipe for tests. Its
// signals are opaque tokens that resolve to the same pipe on both ends.
//
// [Authenticate] runs a mutual Ed25519 challenge-response over a freshly
// connected stream. Both ends send a random nonce and sign the other's
// nonce together with the identity they expect to be talking to, which
// stops a valid signature for one peer from being replayed to another.
//
// [ICEConfig] holds STUN/TURN server configuration; [NewICEConfig]
// converts plain server entries into pion's form.
package transport
