// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"sync"
	"time"

	"github.com/bureau-foundation/rtcswarm/lib/clock"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/wire"
)

// DefaultIdleTimeout is how long an unheld record survives without
// activity. It exceeds the announce interval plus jitter, so a peer
// that keeps announcing is never evicted between announcements.
const DefaultIdleTimeout = 35 * time.Minute

// Registry hands out one Info per identity.
type Registry struct {
	clock       clock.Clock
	idleTimeout time.Duration

	mu      sync.Mutex
	entries keyed.Map[*entry]
	banned  keyed.Set
}

type entry struct {
	info    *Info
	holders int
	touched time.Time
}

// NewRegistry creates a registry. A nil clock uses clock.Real(); a
// non-positive idleTimeout uses DefaultIdleTimeout.
func NewRegistry(c clock.Clock, idleTimeout time.Duration) *Registry {
	if c == nil {
		c = clock.Real()
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{clock: c, idleTimeout: idleTimeout}
}

// Get returns the live record for key without creating one.
func (r *Registry) Get(key keyed.Key) (*Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries.Get(key)
	if !ok {
		return nil, false
	}
	return e.info, true
}

// Lookup returns the live record for key, creating it if needed.
// Returns true if the record was created.
func (r *Registry) Lookup(key keyed.Key) (*Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, created := r.lookupLocked(key)
	return e.info, created
}

func (r *Registry) lookupLocked(key keyed.Key) (*entry, bool) {
	now := r.clock.Now()
	if e, ok := r.entries.Get(key); ok {
		e.touched = now
		return e, false
	}
	e := &entry{info: &Info{PublicKey: key, registry: r}, touched: now}
	r.entries.Set(key, e)
	return e, true
}

// Upsert records an announcement from key. Returns the record, whether
// it was created, and whether its capabilities or topic set changed.
func (r *Registry) Upsert(key keyed.Key, capabilities wire.Capabilities, topics []keyed.Key) (*Info, bool, bool) {
	r.mu.Lock()
	e, created := r.lookupLocked(key)
	r.mu.Unlock()
	changed := e.info.Update(capabilities, topics)
	return e.info, created, changed
}

// Hold marks info as referenced. Held records are never swept.
func (r *Registry) Hold(info *Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries.Get(info.PublicKey)
	if !ok || e.info != info {
		// Evicted while the caller held a stale pointer: reinstate it so
		// the one-record-per-identity invariant holds.
		e = &entry{info: info}
		r.entries.Set(info.PublicKey, e)
	}
	e.holders++
	e.touched = r.clock.Now()
}

// Release drops one reference taken by Hold.
func (r *Registry) Release(info *Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries.Get(info.PublicKey)
	if !ok || e.info != info || e.holders == 0 {
		return
	}
	e.holders--
	e.touched = r.clock.Now()
}

// Holders returns the current reference count for key.
func (r *Registry) Holders(key keyed.Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries.Get(key); ok {
		return e.holders
	}
	return 0
}

// Sweep evicts unheld records idle for longer than the idle timeout
// and returns how many were evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.clock.Now().Add(-r.idleTimeout)
	evicted := 0
	for key, e := range r.entries.All() {
		if e.holders == 0 && e.touched.Before(cutoff) {
			r.entries.Delete(key)
			evicted++
		}
	}
	return evicted
}

// Ban records key as banned.
func (r *Registry) Ban(key keyed.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned.Add(key)
}

// Unban lifts a ban.
func (r *Registry) Unban(key keyed.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned.Delete(key)
}

// IsBanned reports whether key is banned.
func (r *Registry) IsBanned(key keyed.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.banned.Has(key)
}

// All returns every live record in creation order.
func (r *Registry) All() []*Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Info, 0, r.entries.Len())
	for e := range r.entries.Values() {
		out = append(out, e.info)
	}
	return out
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Len()
}

// Clear drops every record. Bans are kept.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Clear()
}
