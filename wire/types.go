// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/bureau-foundation/rtcswarm/lib/keyed"
)

// Protocol is the name exchanged when a connection's lanes open. Both
// ends must agree on it.
const Protocol = "RTC_BRIDGED_SWARM"

// MaxTTL is the hop budget of a freshly originated message.
const MaxTTL = 255

// Capabilities is a bitmask of the transports a peer can be reached
// over.
type Capabilities uint8

const (
	// CapabilityDHT marks a peer reachable through a DHT.
	CapabilityDHT Capabilities = 1 << iota
	// CapabilityRTC marks a peer that can open WebRTC connections.
	CapabilityRTC

	// CapabilitiesFull is a relay-class peer reachable both ways.
	CapabilitiesFull = CapabilityDHT | CapabilityRTC
)

// Has reports whether every bit in other is set in c.
func (c Capabilities) Has(other Capabilities) bool {
	return c&other == other
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c.Has(CapabilityDHT) {
		parts = append(parts, "dht")
	}
	if c.Has(CapabilityRTC) {
		parts = append(parts, "rtc")
	}
	if unknown := c &^ CapabilitiesFull; unknown != 0 {
		parts = append(parts, "0x"+hex.EncodeToString([]byte{byte(unknown)}))
	}
	return strings.Join(parts, "|")
}

// MessageID identifies a message among those sent by one origin.
type MessageID [32]byte

// NewMessageID returns a random starting identifier. Starting at a
// random point keeps a restarted node from reusing identifiers its
// neighbours still hold in their duplicate caches.
func NewMessageID() MessageID {
	var id MessageID
	if _, err := rand.Read(id[:]); err != nil {
		panic("wire: crypto/rand failed: " + err.Error())
	}
	return id
}

// Next returns id+1, treating the identifier as a big-endian unsigned
// integer that wraps to zero after all ones.
func (id MessageID) Next() MessageID {
	for i := len(id) - 1; i >= 0; i-- {
		id[i]++
		if id[i] != 0 {
			break
		}
	}
	return id
}

func (id MessageID) String() string {
	return hex.EncodeToString(id[:])
}

// Header is the common prefix of every gossip message.
type Header struct {
	Origin    keyed.Key
	MessageID MessageID
	TTL       uint8
}

// CacheKey is the origin||messageID pair used for duplicate detection.
func (h Header) CacheKey() [64]byte {
	var key [64]byte
	copy(key[:32], h.Origin[:])
	copy(key[32:], h.MessageID[:])
	return key
}

// TopicMessage is a signed announcement of an origin's capabilities
// and joined topics.
type TopicMessage struct {
	Header
	// Payload is an encoded TopicPayload, signed by Origin.
	Payload   []byte
	Signature [64]byte
}

// Forwarded returns a copy of m with TTL decremented. The payload slice
// is shared; neither copy mutates it.
func (m *TopicMessage) Forwarded() *TopicMessage {
	forwarded := *m
	forwarded.TTL--
	return &forwarded
}

// TopicPayload is the signed content of a TopicMessage.
type TopicPayload struct {
	Capabilities Capabilities
	Topics       []keyed.Key
}

// SignalMessage carries an encrypted SignalPayload toward Target.
type SignalMessage struct {
	Header
	Target keyed.Key
	// Payload is an identity envelope only Target can open.
	Payload []byte
}

// Forwarded returns a copy of m with TTL decremented.
func (m *SignalMessage) Forwarded() *SignalMessage {
	forwarded := *m
	forwarded.TTL--
	return &forwarded
}

// SignalPayload is the plaintext of a SignalMessage.
type SignalPayload struct {
	Capabilities Capabilities
	Topics       []keyed.Key
	// Initiator is true when the sender is the offering side of the
	// session. The receiver takes the opposite role.
	Initiator bool
	// Signal is the encoded session description.
	Signal []byte
}
