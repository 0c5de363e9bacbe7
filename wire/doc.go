// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the binary encodings of gossip messages.
//
// Every message starts with a fixed 65-byte header:
//
//	origin[32] || messageID[32] || ttl[1]
//
// followed by a kind-specific body. Variable-length fields are prefixed
// with an unsigned varint length; fixed-size fields (keys, signatures)
// are written raw. Topic lists are a varint count followed by that many
// 32-byte topics.
//
//	TopicMessage  = header || len || payload || signature[64]
//	TopicPayload  = capabilities[1] || count || topic[32]*
//	SignalMessage = header || target[32] || len || payload
//	SignalPayload = capabilities[1] || count || topic[32]* || initiator[1] || len || signal
//
// TopicPayload is the exact byte string the origin signs, so it travels
// inside TopicMessage as opaque bytes and is decoded only after the
// signature verifies. SignalPayload is encrypted for the target and
// travels as an identity envelope.
//
// Decoders reject truncated input, trailing bytes, and lengths beyond
// the package limits with [ErrTruncated] or [ErrOversized].
package wire
