// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package peer tracks what a swarm knows about remote identities.
//
// An [Info] is the single live record for one public key: announced
// capabilities and topics, connection attempt count, negotiated role,
// and whether the local application asked for the peer explicitly.
// The [Registry] hands out Info records and guarantees at most one per
// identity while any holder references it. Holders (an in-progress
// attempt, an open connection, an explicit join) are counted
// explicitly; Registry.Sweep evicts records with no holders that have
// been idle longer than the configured timeout. A later lookup of an
// evicted identity allocates a fresh record.
//
// Bans live in the registry rather than on the record, so a ban
// survives eviction.
//
// Info and Registry are safe for concurrent use. The swarm mutates them
// from its actor; observers may read them from any goroutine.
package peer

import (
	"sync"

	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/wire"
)

// Role is the side a peer took in the most recent session negotiation.
type Role uint8

const (
	// RoleUnknown means no attempt has been made yet.
	RoleUnknown Role = iota
	// RoleInitiator means the remote peer sent the offer.
	RoleInitiator
	// RoleResponder means the remote peer answered our offer.
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// Info is the record for one remote identity.
type Info struct {
	// PublicKey is the peer's identity. Immutable.
	PublicKey keyed.Key

	registry *Registry

	mu           sync.RWMutex
	capabilities wire.Capabilities
	topics       keyed.Set
	attempts     int
	role         Role
	explicit     bool
}

// Capabilities returns the most recently announced capabilities.
func (i *Info) Capabilities() wire.Capabilities {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.capabilities
}

// Topics returns the most recently announced topics in announcement
// order.
func (i *Info) Topics() []keyed.Key {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.topics.Slice()
}

// HasTopic reports whether the peer announced topic.
func (i *Info) HasTopic(topic keyed.Key) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.topics.Has(topic)
}

// Overlaps reports whether the peer announced any topic in topics.
func (i *Info) Overlaps(topics *keyed.Set) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.topics.Overlaps(topics)
}

// Update replaces the announced capabilities and topics. Returns true
// if either changed. A changed topic set also resets the attempt
// counter so an abandoned peer becomes dialable again.
func (i *Info) Update(capabilities wire.Capabilities, topics []keyed.Key) bool {
	incoming := keyed.NewSet(topics...)

	i.mu.Lock()
	defer i.mu.Unlock()

	changed := capabilities != i.capabilities
	i.capabilities = capabilities
	topicsChanged := incoming.Len() != i.topics.Len()
	if !topicsChanged {
		for topic := range incoming.All() {
			if !i.topics.Has(topic) {
				topicsChanged = true
				break
			}
		}
	}
	if topicsChanged {
		i.topics = *incoming
		i.attempts = 0
	}
	return changed || topicsChanged
}

// Attempts returns the number of consecutive failed connection attempts.
func (i *Info) Attempts() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.attempts
}

// IncrementAttempts records a failed attempt and returns the new count.
func (i *Info) IncrementAttempts() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attempts++
	return i.attempts
}

// ResetAttempts clears the failure count after a successful connection.
func (i *Info) ResetAttempts() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attempts = 0
}

// Role returns the peer's side in the latest negotiation.
func (i *Info) Role() Role {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.role
}

// SetRole records the peer's side in a negotiation.
func (i *Info) SetRole(role Role) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.role = role
}

// Explicit reports whether the application joined this peer directly.
func (i *Info) Explicit() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.explicit
}

// SetExplicit marks or clears explicit interest in the peer.
func (i *Info) SetExplicit(explicit bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.explicit = explicit
}

// Ban prevents any future connection to this identity, including after
// the record is evicted.
func (i *Info) Ban() {
	if i.registry != nil {
		i.registry.Ban(i.PublicKey)
	}
}

// Banned reports whether the identity is banned.
func (i *Info) Banned() bool {
	return i.registry != nil && i.registry.IsBanned(i.PublicKey)
}

// RTCCapable reports whether the peer can open WebRTC connections.
func (i *Info) RTCCapable() bool {
	return i.Capabilities().Has(wire.CapabilityRTC)
}
