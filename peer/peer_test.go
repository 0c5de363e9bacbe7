// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/rtcswarm/lib/clock"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/wire"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestRegistry() (*Registry, *clock.FakeClock) {
	fake := clock.Fake(epoch)
	return NewRegistry(fake, 10*time.Minute), fake
}

func TestLookupDeduplicates(t *testing.T) {
	registry, _ := newTestRegistry()
	key := keyed.Fill(1)

	first, created := registry.Lookup(key)
	if !created {
		t.Error("first Lookup did not create")
	}
	second, created := registry.Lookup(key)
	if created {
		t.Error("second Lookup created a new record")
	}
	if first != second {
		t.Error("two lookups returned different records")
	}
	if got, ok := registry.Get(key); !ok || got != first {
		t.Error("Get did not return the live record")
	}
	if _, ok := registry.Get(keyed.Fill(2)); ok {
		t.Error("Get created a record")
	}
}

func TestUpsertReportsChange(t *testing.T) {
	registry, _ := newTestRegistry()
	key := keyed.Fill(1)
	topicA, topicB := keyed.Fill(0xaa), keyed.Fill(0xbb)

	info, created, changed := registry.Upsert(key, wire.CapabilityRTC, []keyed.Key{topicA})
	if !created || !changed {
		t.Errorf("first upsert: created=%v changed=%v, want true true", created, changed)
	}
	if info.Capabilities() != wire.CapabilityRTC || !info.HasTopic(topicA) {
		t.Errorf("record not updated: caps=%v topics=%v", info.Capabilities(), info.Topics())
	}

	_, created, changed = registry.Upsert(key, wire.CapabilitiesFull, []keyed.Key{topicA})
	if created || !changed {
		t.Errorf("new capabilities: created=%v changed=%v, want false true", created, changed)
	}
	if info.Capabilities() != wire.CapabilitiesFull {
		t.Error("capabilities not refreshed on unchanged topics")
	}

	_, _, changed = registry.Upsert(key, wire.CapabilitiesFull, []keyed.Key{topicA})
	if changed {
		t.Error("identical announcement reported as a change")
	}

	_, _, changed = registry.Upsert(key, wire.CapabilitiesFull, []keyed.Key{topicB, topicA})
	if !changed {
		t.Error("added topic not reported as a change")
	}
	if got := info.Topics(); !slices.Equal(got, []keyed.Key{topicB, topicA}) {
		t.Errorf("Topics() = %v", got)
	}
}

func TestTopicChangeResetsAttempts(t *testing.T) {
	registry, _ := newTestRegistry()
	info, _ := registry.Lookup(keyed.Fill(1))
	info.IncrementAttempts()
	if got := info.IncrementAttempts(); got != 2 {
		t.Fatalf("IncrementAttempts = %d, want 2", got)
	}
	if !info.Update(wire.CapabilityRTC, nil) {
		t.Error("capability change not reported")
	}
	if info.Attempts() != 2 {
		t.Error("capability change with an unchanged (empty) topic set reset attempts")
	}
	info.Update(wire.CapabilityRTC, []keyed.Key{keyed.Fill(9)})
	if info.Attempts() != 0 {
		t.Errorf("Attempts() after topic change = %d, want 0", info.Attempts())
	}
}

func TestOverlaps(t *testing.T) {
	registry, _ := newTestRegistry()
	info, _, _ := registry.Upsert(keyed.Fill(1), wire.CapabilityRTC, []keyed.Key{keyed.Fill(0xaa)})
	if !info.Overlaps(keyed.NewSet(keyed.Fill(0xaa), keyed.Fill(0xcc))) {
		t.Error("overlapping topic sets reported disjoint")
	}
	if info.Overlaps(keyed.NewSet(keyed.Fill(0xcc))) {
		t.Error("disjoint topic sets reported overlapping")
	}
}

func TestRoleAndExplicit(t *testing.T) {
	registry, _ := newTestRegistry()
	info, _ := registry.Lookup(keyed.Fill(1))
	if info.Role() != RoleUnknown {
		t.Errorf("initial role = %v", info.Role())
	}
	info.SetRole(RoleResponder)
	if info.Role() != RoleResponder || info.Role().String() != "responder" {
		t.Errorf("role = %v", info.Role())
	}
	info.SetExplicit(true)
	if !info.Explicit() {
		t.Error("explicit flag not set")
	}
}

func TestBanOutlivesEviction(t *testing.T) {
	registry, fake := newTestRegistry()
	key := keyed.Fill(1)
	info, _ := registry.Lookup(key)
	info.Ban()
	if !info.Banned() || !registry.IsBanned(key) {
		t.Fatal("ban not recorded")
	}

	fake.Advance(time.Hour)
	if evicted := registry.Sweep(); evicted != 1 {
		t.Fatalf("Sweep() = %d, want 1", evicted)
	}
	fresh, created := registry.Lookup(key)
	if !created || fresh == info {
		t.Error("lookup after eviction did not allocate a fresh record")
	}
	if !fresh.Banned() {
		t.Error("ban lost on eviction")
	}
	registry.Unban(key)
	if fresh.Banned() {
		t.Error("Unban did not lift the ban")
	}
}

func TestSweepRespectsHoldersAndIdleTime(t *testing.T) {
	registry, fake := newTestRegistry()
	held, _ := registry.Lookup(keyed.Fill(1))
	registry.Lookup(keyed.Fill(2))
	registry.Hold(held)

	fake.Advance(5 * time.Minute)
	if evicted := registry.Sweep(); evicted != 0 {
		t.Errorf("Sweep() before idle timeout = %d, want 0", evicted)
	}

	// Activity refreshes the idle timer.
	registry.Lookup(keyed.Fill(2))
	fake.Advance(6 * time.Minute)
	if evicted := registry.Sweep(); evicted != 0 {
		t.Errorf("Sweep() after refresh = %d, want 0", evicted)
	}

	fake.Advance(10 * time.Minute)
	if evicted := registry.Sweep(); evicted != 1 {
		t.Errorf("Sweep() = %d, want 1 (unheld record only)", evicted)
	}
	if got, ok := registry.Get(keyed.Fill(1)); !ok || got != held {
		t.Error("held record was evicted")
	}

	registry.Release(held)
	if registry.Holders(held.PublicKey) != 0 {
		t.Errorf("Holders = %d after release", registry.Holders(held.PublicKey))
	}
	fake.Advance(11 * time.Minute)
	registry.Sweep()
	if registry.Len() != 0 {
		t.Errorf("Len() = %d, want 0", registry.Len())
	}
}

func TestHoldReinstatesEvictedRecord(t *testing.T) {
	registry, fake := newTestRegistry()
	info, _ := registry.Lookup(keyed.Fill(1))
	fake.Advance(time.Hour)
	registry.Sweep()

	registry.Hold(info)
	if got, ok := registry.Get(info.PublicKey); !ok || got != info {
		t.Error("Hold did not reinstate the caller's record")
	}
	if registry.Holders(info.PublicKey) != 1 {
		t.Errorf("Holders = %d, want 1", registry.Holders(info.PublicKey))
	}
}

func TestReleaseOfStaleRecordIsNoop(t *testing.T) {
	registry, fake := newTestRegistry()
	stale, _ := registry.Lookup(keyed.Fill(1))
	fake.Advance(time.Hour)
	registry.Sweep()
	fresh, _ := registry.Lookup(keyed.Fill(1))
	registry.Hold(fresh)

	registry.Release(stale)
	if registry.Holders(fresh.PublicKey) != 1 {
		t.Error("releasing a stale record dropped the fresh record's hold")
	}
}

func TestClearKeepsBans(t *testing.T) {
	registry, _ := newTestRegistry()
	registry.Lookup(keyed.Fill(1))
	registry.Ban(keyed.Fill(2))
	if n := registry.Clear(); n != 1 {
		t.Errorf("Clear() = %d, want 1", n)
	}
	if registry.Len() != 0 || len(registry.All()) != 0 {
		t.Error("records survived Clear")
	}
	if !registry.IsBanned(keyed.Fill(2)) {
		t.Error("Clear dropped bans")
	}
}
