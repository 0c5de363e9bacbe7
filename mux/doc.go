// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mux carries several typed message lanes over one byte stream.
//
// A swarm connection is a single authenticated data channel. The mux
// splits it into lanes (raw application data, gossip announcements,
// gossip signals) so each lane can have its own encoding and handler.
//
// Every frame is a 5-byte header followed by the payload:
//
//	[1 byte lane] [4 bytes payload length, big-endian uint32] [payload]
//
// Lane 0 is reserved for control. The first frame each side sends is an
// open frame on lane 0 whose payload is the protocol name; a peer that
// opens with a different name is disconnected with
// [ErrProtocolMismatch]. Frames on lanes with no registered handler are
// dropped.
//
// Writes go through a per-channel queue drained by one writer
// goroutine. [Message.Send] never blocks: if the queue is full it
// returns [ErrQueueFull], which suits best-effort gossip. Callers that
// need backpressure (the data lane) use [Message.SendWait].
//
// Inbound frames are dispatched synchronously in arrival order on the
// reader goroutine, so messages on one lane are handled in send order.
// A handler that blocks stalls every lane of the channel.
package mux
