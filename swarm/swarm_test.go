// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Arceliar/phony"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/rtcswarm/lib/clock"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/lib/telemetry"
	"github.com/bureau-foundation/rtcswarm/lib/testutil"
	"github.com/bureau-foundation/rtcswarm/peer"
	"github.com/bureau-foundation/rtcswarm/transport"
	"github.com/bureau-foundation/rtcswarm/wire"
)

const testTimeout = 10 * time.Second

var testTopic = keyed.Fill(0xAA)

func newTestSwarm(t *testing.T, fabric *transport.MemoryFabric, configure func(*Options)) *Swarm {
	t.Helper()
	options := Options{Sessions: fabric, Logger: testutil.Logger(t)}
	if configure != nil {
		configure(&options)
	}
	s, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recorder collects observer events on buffered channels.
type recorder struct {
	peers       chan *peer.Info
	connections chan *Connection
	bootstraps  chan BootstrapNode
}

func record(s *Swarm) *recorder {
	r := &recorder{
		peers:       make(chan *peer.Info, 64),
		connections: make(chan *Connection, 64),
		bootstraps:  make(chan BootstrapNode, 64),
	}
	s.Subscribe(ObserverFuncs{
		Peer:       func(info *peer.Info) { r.peers <- info },
		Connection: func(c *Connection, _ *peer.Info) { r.connections <- c },
		Bootstrap:  func(node BootstrapNode) { r.bootstraps <- node },
	})
	return r
}

// waitConnection returns the next connection event for remote.
func (r *recorder) waitConnection(t *testing.T, remote keyed.Key) *Connection {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case c := <-r.connections:
			if c.RemotePublicKey() == remote {
				return c
			}
		case <-deadline:
			t.Fatalf("no connection to %s within %v", remote.Short(), testTimeout)
		}
	}
}

// drain waits until everything queued on the actor so far has run.
func drain(s *Swarm) {
	phony.Block(s, func() {})
}

// attachPair links a and b with an authenticated in-memory stream.
func attachPair(t *testing.T, a, b *Swarm) (*Connection, *Connection) {
	t.Helper()
	left, right := net.Pipe()
	type result struct {
		conn *Connection
		err  error
	}
	results := make(chan result, 1)
	go func() {
		conn, err := b.Attach(right, a.PublicKey(), false)
		results <- result{conn, err}
	}()
	fromA, err := a.Attach(left, b.PublicKey(), true)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	r := testutil.RequireReceive(t, results, testTimeout, "waiting for remote attach")
	if r.err != nil {
		t.Fatalf("remote Attach: %v", r.err)
	}
	return fromA, r.conn
}

// addFakeConnections registers n placeholder connections of kind so
// admission sees them. They are removed before the swarm closes.
func addFakeConnections(t *testing.T, s *Swarm, n int, kind ConnectionType) {
	t.Helper()
	var keys []keyed.Key
	phony.Block(s, func() {
		for i := range n {
			key := keyed.Fill(byte(0x10 + i))
			keys = append(keys, key)
			s.connections.Set(key, &Connection{remote: key, kind: kind})
		}
	})
	t.Cleanup(func() {
		phony.Block(s, func() {
			for _, key := range keys {
				s.connections.Delete(key)
			}
		})
	})
}

func TestShouldConnect(t *testing.T) {
	candidate := keyed.Fill(0x01)
	tests := []struct {
		name      string
		configure func(*Options)
		setup     func(t *testing.T, s *Swarm)
		caps      wire.Capabilities
		topics    []keyed.Key
		want      bool
	}{
		{
			name:   "overlapping topics",
			caps:   wire.CapabilityRTC,
			topics: []keyed.Key{testTopic},
			want:   true,
		},
		{
			name:   "no overlap",
			caps:   wire.CapabilityRTC,
			topics: []keyed.Key{keyed.Fill(0xBB)},
			want:   false,
		},
		{
			name:   "not RTC capable",
			caps:   wire.CapabilityDHT,
			topics: []keyed.Key{testTopic},
			want:   false,
		},
		{
			name:      "firewalled",
			configure: func(o *Options) { o.Firewall = func(remote keyed.Key) bool { return remote == candidate } },
			caps:      wire.CapabilityRTC,
			topics:    []keyed.Key{testTopic},
			want:      false,
		},
		{
			name:   "banned",
			setup:  func(t *testing.T, s *Swarm) { s.Registry().Ban(candidate) },
			caps:   wire.CapabilityRTC,
			topics: []keyed.Key{testTopic},
			want:   false,
		},
		{
			name:      "below RTC cap",
			configure: func(o *Options) { o.MaxRTCPeers = 3 },
			setup:     func(t *testing.T, s *Swarm) { addFakeConnections(t, s, 2, TypeRTC) },
			caps:      wire.CapabilityRTC,
			topics:    []keyed.Key{testTopic},
			want:      true,
		},
		{
			name:      "at RTC cap",
			configure: func(o *Options) { o.MaxRTCPeers = 3 },
			setup:     func(t *testing.T, s *Swarm) { addFakeConnections(t, s, 3, TypeRTC) },
			caps:      wire.CapabilityRTC,
			topics:    []keyed.Key{testTopic},
			want:      false,
		},
		{
			name:      "stream connections do not count toward RTC cap",
			configure: func(o *Options) { o.MaxRTCPeers = 3 },
			setup:     func(t *testing.T, s *Swarm) { addFakeConnections(t, s, 3, TypeStream) },
			caps:      wire.CapabilityRTC,
			topics:    []keyed.Key{testTopic},
			want:      true,
		},
		{
			name:      "at total cap",
			configure: func(o *Options) { o.MaxPeers = 4; o.MaxRTCPeers = 4 },
			setup:     func(t *testing.T, s *Swarm) { addFakeConnections(t, s, 4, TypeStream) },
			caps:      wire.CapabilityRTC,
			topics:    []keyed.Key{testTopic},
			want:      false,
		},
		{
			name: "explicit peer without overlap",
			setup: func(t *testing.T, s *Swarm) {
				info, _ := s.Registry().Lookup(candidate)
				info.SetExplicit(true)
			},
			caps: wire.CapabilityRTC,
			want: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fabric := transport.NewMemoryFabric()
			s := newTestSwarm(t, fabric, test.configure)
			if _, err := s.Join(testTopic); err != nil {
				t.Fatalf("Join: %v", err)
			}
			s.Registry().Upsert(candidate, test.caps, test.topics)
			if test.setup != nil {
				test.setup(t, s)
			}
			if got := s.ShouldConnect(candidate); got != test.want {
				t.Errorf("ShouldConnect = %v, want %v", got, test.want)
			}
		})
	}
}

func TestRelayNeverDials(t *testing.T) {
	relay, err := NewRelay(Options{Sessions: transport.NewMemoryFabric(), Logger: testutil.Logger(t)}, nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	defer relay.Close()

	candidate := keyed.Fill(0x01)
	info, _ := relay.Registry().Lookup(candidate)
	info.SetExplicit(true)
	info.Update(wire.CapabilityRTC, nil)
	if relay.ShouldConnect(candidate) {
		t.Error("relay would dial")
	}
	if relay.Capabilities() != wire.CapabilitiesFull {
		t.Errorf("relay capabilities = %v, want %v", relay.Capabilities(), wire.CapabilitiesFull)
	}
}

func TestConnectDefersAtParallelCap(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	fabric := transport.NewMemoryFabric()
	fabric.SetSilent(true)
	s := newTestSwarm(t, fabric, func(o *Options) {
		o.Clock = fake
		o.MaxParallel = 1
		o.ParallelDelay = time.Second
		o.ConnectionTimeout = 10 * time.Second
		o.RetryTimeout = time.Minute
		o.Jitter = -1
	})
	if _, err := s.Join(testTopic); err != nil {
		t.Fatalf("Join: %v", err)
	}
	first, _, _ := s.Registry().Upsert(keyed.Fill(0x01), wire.CapabilityRTC, []keyed.Key{testTopic})
	second, _, _ := s.Registry().Upsert(keyed.Fill(0x02), wire.CapabilityRTC, []keyed.Key{testTopic})

	state := func() (attempting, deferred bool, retrying bool) {
		phony.Block(s, func() {
			attempting = s.attempts.Has(second.PublicKey)
			deferred = s.deferred.Has(second.PublicKey)
			retrying = s.retries.Has(first.PublicKey)
		})
		return
	}

	phony.Block(s, func() {
		s._connect(first)
		s._connect(second)
	})
	if attempting, deferred, _ := state(); attempting || !deferred {
		t.Fatalf("second peer: attempting=%v deferred=%v, want deferred only", attempting, deferred)
	}

	// Still capped: each deferral re-arms.
	for range 9 {
		fake.Advance(time.Second)
		drain(s)
		if attempting, deferred, _ := state(); attempting || !deferred {
			t.Fatalf("second peer: attempting=%v deferred=%v while capped", attempting, deferred)
		}
	}

	// The first attempt times out in the same tick the deferral fires.
	fake.Advance(time.Second)
	drain(s)
	attempting, deferred, retrying := state()
	if !attempting || deferred {
		t.Errorf("second peer: attempting=%v deferred=%v, want attempting", attempting, deferred)
	}
	if !retrying {
		t.Error("first peer has no retry scheduled after timing out")
	}
	if first.Attempts() != 1 {
		t.Errorf("first peer attempts = %d, want 1", first.Attempts())
	}
}

func TestFailedDialRetriesUntilMaxAttempts(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	fabric := transport.NewMemoryFabric()
	fabric.SetSilent(true)
	s := newTestSwarm(t, fabric, func(o *Options) {
		o.Clock = fake
		o.MaxAttempts = 3
		o.ConnectionTimeout = 10 * time.Second
		o.RetryTimeout = time.Minute
		o.Jitter = -1
	})
	if _, err := s.Join(testTopic); err != nil {
		t.Fatalf("Join: %v", err)
	}
	info, _, _ := s.Registry().Upsert(keyed.Fill(0x01), wire.CapabilityRTC, []keyed.Key{testTopic})
	phony.Block(s, func() { s._connect(info) })

	check := func(wantAttempting, wantRetry bool) {
		t.Helper()
		var attempting, retrying bool
		phony.Block(s, func() {
			attempting = s.attempts.Has(info.PublicKey)
			retrying = s.retries.Has(info.PublicKey)
		})
		if attempting != wantAttempting || retrying != wantRetry {
			t.Fatalf("attempting=%v retrying=%v, want %v/%v (attempts %d)",
				attempting, retrying, wantAttempting, wantRetry, info.Attempts())
		}
	}

	check(true, false)
	for round := 1; round <= 3; round++ {
		fake.Advance(10 * time.Second)
		drain(s)
		if info.Attempts() != round {
			t.Fatalf("after failure %d: attempts = %d", round, info.Attempts())
		}
		if round == 3 {
			check(false, false)
			break
		}
		check(false, true)

		fake.Advance(time.Minute)
		drain(s)
		check(true, false)
	}

	// A topic change makes the abandoned peer dialable again.
	phony.Block(s, func() {
		_, _, changed := s.registry.Upsert(info.PublicKey, wire.CapabilityRTC, []keyed.Key{testTopic, keyed.Fill(0xCC)})
		s._onPeerAnnounce(info, false, changed)
	})
	check(true, false)
	if info.Attempts() != 0 {
		t.Errorf("attempts after topic change = %d, want 0", info.Attempts())
	}
}

func TestDiscoverySessionRefcount(t *testing.T) {
	s := newTestSwarm(t, transport.NewMemoryFabric(), nil)

	before := promtest.ToFloat64(telemetry.Announces)
	first, err := s.Join(testTopic)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	second, err := s.Join(testTopic)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if first.discovery != second.discovery {
		t.Fatal("sessions on the same topic do not share a subscription")
	}
	if got := promtest.ToFloat64(telemetry.Announces) - before; got != 1 {
		t.Errorf("announces after two joins = %v, want 1", got)
	}

	if err := first.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if topics := s.Topics(); len(topics) != 1 || topics[0] != testTopic {
		t.Fatalf("topics after first destroy = %v, want [%s]", topics, testTopic.Short())
	}
	if got := promtest.ToFloat64(telemetry.Announces) - before; got != 1 {
		t.Errorf("announces after first destroy = %v, want 1", got)
	}

	if err := second.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if topics := s.Topics(); len(topics) != 0 {
		t.Fatalf("topics after last destroy = %v, want none", topics)
	}
	if got := promtest.ToFloat64(telemetry.Announces) - before; got != 2 {
		t.Errorf("announces after last destroy = %v, want 2", got)
	}

	second.Destroy()
	if got := promtest.ToFloat64(telemetry.Announces) - before; got != 2 {
		t.Errorf("double destroy announced again: %v", got)
	}
	if err := first.Refresh(); !errors.Is(err, ErrSessionDestroyed) {
		t.Errorf("Refresh on destroyed session = %v, want ErrSessionDestroyed", err)
	}

	third, err := s.Join(testTopic)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if third.discovery == first.discovery {
		t.Error("rejoin reused an ended subscription")
	}
}

func TestLeaveDestroysAllSessions(t *testing.T) {
	s := newTestSwarm(t, transport.NewMemoryFabric(), nil)
	first, _ := s.Join(testTopic)
	second, _ := s.Join(testTopic)

	before := promtest.ToFloat64(telemetry.Announces)
	if err := s.Leave(testTopic); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if got := promtest.ToFloat64(telemetry.Announces) - before; got != 1 {
		t.Errorf("announces on leave = %v, want 1", got)
	}
	for _, session := range []*DiscoverySession{first, second} {
		if err := session.Refresh(); !errors.Is(err, ErrSessionDestroyed) {
			t.Errorf("Refresh after Leave = %v, want ErrSessionDestroyed", err)
		}
	}
}

func TestFlush(t *testing.T) {
	t.Run("no topics no connections no relays", func(t *testing.T) {
		s := newTestSwarm(t, transport.NewMemoryFabric(), nil)
		if _, err := s.Flush(context.Background()); !errors.Is(err, ErrNoBootstrap) {
			t.Errorf("Flush = %v, want ErrNoBootstrap", err)
		}
	})

	t.Run("connected without topics", func(t *testing.T) {
		fabric := transport.NewMemoryFabric()
		a := newTestSwarm(t, fabric, nil)
		b := newTestSwarm(t, fabric, nil)
		attachPair(t, a, b)
		ok, err := a.Flush(context.Background())
		if err != nil || !ok {
			t.Errorf("Flush = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("topics time out without connections", func(t *testing.T) {
		fake := clock.Fake(time.Unix(1_700_000_000, 0))
		s := newTestSwarm(t, transport.NewMemoryFabric(), func(o *Options) {
			o.Clock = fake
			o.FlushTimeout = 30 * time.Second
		})
		session, err := s.Join(testTopic)
		if err != nil {
			t.Fatalf("Join: %v", err)
		}
		pending := fake.PendingCount()

		results := make(chan bool, 1)
		go func() {
			ok, _ := session.Flushed(context.Background())
			results <- ok
		}()
		fake.WaitForTimers(pending + 1)
		fake.Advance(30 * time.Second)
		if ok := testutil.RequireReceive(t, results, testTimeout, "waiting for flush"); ok {
			t.Error("Flush = true with no connections")
		}
	})

	t.Run("topics resolve on a new connection", func(t *testing.T) {
		fake := clock.Fake(time.Unix(1_700_000_000, 0))
		fabric := transport.NewMemoryFabric()
		a := newTestSwarm(t, fabric, func(o *Options) { o.Clock = fake })
		b := newTestSwarm(t, fabric, nil)
		if _, err := a.Join(testTopic); err != nil {
			t.Fatalf("Join: %v", err)
		}
		pending := fake.PendingCount()

		results := make(chan bool, 1)
		go func() {
			ok, _ := a.Flush(context.Background())
			results <- ok
		}()
		fake.WaitForTimers(pending + 1)
		attachPair(t, a, b)
		fake.Advance(DefaultFlushTimeout)
		if ok := testutil.RequireReceive(t, results, testTimeout, "waiting for flush"); !ok {
			t.Error("Flush = false after a connection opened")
		}
	})
}

func TestAttachCarriesApplicationData(t *testing.T) {
	fabric := transport.NewMemoryFabric()
	a := newTestSwarm(t, fabric, nil)
	b := newTestSwarm(t, fabric, nil)
	events := record(b)

	fromA, fromB := attachPair(t, a, b)
	if fromA.Type() != TypeStream || !fromA.Initiator() || fromB.Initiator() {
		t.Fatalf("type=%v initiator=%v/%v", fromA.Type(), fromA.Initiator(), fromB.Initiator())
	}
	if c := events.waitConnection(t, a.PublicKey()); c != fromB {
		t.Error("connection event carries a different connection")
	}

	// Larger than one data frame, so it arrives in pieces.
	payload := bytes.Repeat([]byte("swarm data "), 20_000)
	go fromA.Write(payload)
	received := make([]byte, len(payload))
	if _, err := io.ReadFull(fromB, received); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(received, payload) {
		t.Fatal("payload corrupted in transit")
	}

	fromA.Close()
	testutil.RequireClosed(t, fromB.Done(), testTimeout, "remote close")
	testutil.Eventually(t, testTimeout, func() bool { return len(b.Connections()) == 0 }, "connection forgotten")
	if _, err := fromB.Read(make([]byte, 1)); err == nil {
		t.Error("Read after close succeeded")
	}
}

func TestAttachRejectsDuplicateAndBanned(t *testing.T) {
	fabric := transport.NewMemoryFabric()
	a := newTestSwarm(t, fabric, nil)
	b := newTestSwarm(t, fabric, nil)
	fromA, _ := attachPair(t, a, b)

	if err := a.Ban(b.PublicKey()); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	testutil.RequireClosed(t, fromA.Done(), testTimeout, "banned connection closing")

	left, right := net.Pipe()
	defer right.Close()
	if _, err := a.Attach(left, b.PublicKey(), true); !errors.Is(err, ErrRejected) {
		t.Errorf("Attach to banned peer = %v, want ErrRejected", err)
	}
}

func TestPromoteRechecksCapacity(t *testing.T) {
	fabric := transport.NewMemoryFabric()
	s := newTestSwarm(t, fabric, func(o *Options) { o.MaxRTCPeers = 1 })
	first, _, _ := s.Registry().Upsert(keyed.Fill(0x01), wire.CapabilityRTC, []keyed.Key{testTopic})
	second, _, _ := s.Registry().Upsert(keyed.Fill(0x02), wire.CapabilityRTC, []keyed.Key{testTopic})
	third, _, _ := s.Registry().Upsert(keyed.Fill(0x03), wire.CapabilityRTC, nil)

	var streams []net.Conn
	pipe := func() net.Conn {
		local, remote := net.Pipe()
		streams = append(streams, local, remote)
		return local
	}
	t.Cleanup(func() {
		for _, stream := range streams {
			stream.Close()
		}
	})

	var firstErr, secondErr, streamErr error
	var rtc int
	phony.Block(s, func() {
		// Both attempts were admitted while the swarm was empty.
		_, firstErr = s._promote(pipe(), first, true, TypeRTC)
		_, secondErr = s._promote(pipe(), second, true, TypeRTC)
		_, streamErr = s._promote(pipe(), third, true, TypeStream)
		rtc = s._rtcCount()
	})
	if firstErr != nil {
		t.Fatalf("first promote: %v", firstErr)
	}
	if !errors.Is(secondErr, ErrRejected) {
		t.Errorf("second promote error = %v, want ErrRejected", secondErr)
	}
	if streamErr != nil {
		t.Errorf("attached stream rejected: %v", streamErr)
	}
	if rtc != 1 {
		t.Errorf("rtc connections = %d, want 1", rtc)
	}
}

func TestParallelAttemptsRespectRTCLimit(t *testing.T) {
	fabric := transport.NewMemoryFabric()
	hub := newTestSwarm(t, fabric, func(o *Options) { o.MaxRTCPeers = 1 })
	middle := newTestSwarm(t, fabric, nil)
	first := newTestSwarm(t, fabric, nil)
	second := newTestSwarm(t, fabric, nil)

	attachPair(t, hub, middle)
	attachPair(t, middle, first)
	attachPair(t, middle, second)
	for _, s := range []*Swarm{first, second} {
		if _, err := s.Join(testTopic); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}
	testutil.Eventually(t, testTimeout, func() bool {
		for _, s := range []*Swarm{first, second} {
			info, ok := hub.Registry().Get(s.PublicKey())
			if !ok || !info.HasTopic(testTopic) {
				return false
			}
		}
		return true
	}, "hub learning both topic members")

	// Joining dials both members at once; both attempts finish.
	if _, err := hub.Join(testTopic); err != nil {
		t.Fatalf("Join: %v", err)
	}
	peak := 0
	testutil.Eventually(t, testTimeout, func() bool {
		var rtc, attempts int
		phony.Block(hub, func() {
			rtc = hub._rtcCount()
			attempts = hub.attempts.Len()
		})
		peak = max(peak, rtc)
		return rtc == 1 && attempts == 0
	}, "hub settling at one rtc connection")
	if peak > 1 {
		t.Errorf("hub reached %d rtc connections, limit is 1", peak)
	}
}

func TestGossipSignalDialsOverlappingPeer(t *testing.T) {
	fabric := transport.NewMemoryFabric()
	a := newTestSwarm(t, fabric, nil)
	middle := newTestSwarm(t, fabric, nil)
	b := newTestSwarm(t, fabric, nil)
	eventsA, eventsB := record(a), record(b)

	attachPair(t, a, middle)
	attachPair(t, middle, b)

	if _, err := a.Join(testTopic); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := b.Join(testTopic); err != nil {
		t.Fatalf("Join: %v", err)
	}

	fromA := eventsA.waitConnection(t, b.PublicKey())
	fromB := eventsB.waitConnection(t, a.PublicKey())
	if fromA.Type() != TypeRTC || fromB.Type() != TypeRTC {
		t.Errorf("types = %v/%v, want rtc", fromA.Type(), fromB.Type())
	}
	if fromA.Initiator() == fromB.Initiator() {
		t.Error("both ends claim the same role")
	}

	go fromB.Write([]byte("hello"))
	buffer := make([]byte, 5)
	if _, err := io.ReadFull(fromA, buffer); err != nil || string(buffer) != "hello" {
		t.Errorf("read %q, %v", buffer, err)
	}
	if middle.ShouldConnect(a.PublicKey()) {
		t.Error("node without topics would dial")
	}
}

func TestJoinPeerDialsWithoutTopics(t *testing.T) {
	fabric := transport.NewMemoryFabric()
	a := newTestSwarm(t, fabric, nil)
	middle := newTestSwarm(t, fabric, nil)
	b := newTestSwarm(t, fabric, nil)
	eventsA := record(a)

	attachPair(t, a, middle)
	attachPair(t, middle, b)

	// a learns b's capabilities from its announcement.
	testutil.Eventually(t, testTimeout, func() bool {
		info, ok := a.Registry().Get(b.PublicKey())
		return ok && info.RTCCapable()
	}, "a learning about b")

	if err := a.JoinPeer(b.PublicKey()); err != nil {
		t.Fatalf("JoinPeer: %v", err)
	}
	c := eventsA.waitConnection(t, b.PublicKey())
	if c.Type() != TypeRTC {
		t.Errorf("type = %v, want rtc", c.Type())
	}
	if err := a.LeavePeer(b.PublicKey()); err != nil {
		t.Fatalf("LeavePeer: %v", err)
	}
	if info, _ := a.Registry().Get(b.PublicKey()); info.Explicit() {
		t.Error("peer still explicit after LeavePeer")
	}
}

func TestJoinPeerBeforeAnnounceDials(t *testing.T) {
	fabric := transport.NewMemoryFabric()
	a := newTestSwarm(t, fabric, nil)
	middle := newTestSwarm(t, fabric, nil)
	b := newTestSwarm(t, fabric, nil)
	eventsA := record(a)

	// The record exists before b has announced anything, so the
	// first dial is skipped for lack of capabilities.
	if err := a.JoinPeer(b.PublicKey()); err != nil {
		t.Fatalf("JoinPeer: %v", err)
	}
	info, ok := a.Registry().Get(b.PublicKey())
	if !ok || info.RTCCapable() {
		t.Fatalf("unexpected record before announce: ok=%v", ok)
	}

	attachPair(t, a, middle)
	attachPair(t, middle, b)

	c := eventsA.waitConnection(t, b.PublicKey())
	if c.Type() != TypeRTC {
		t.Errorf("type = %v, want rtc", c.Type())
	}
}

func TestObserverUnsubscribe(t *testing.T) {
	fabric := transport.NewMemoryFabric()
	a := newTestSwarm(t, fabric, nil)
	b := newTestSwarm(t, fabric, nil)
	c := newTestSwarm(t, fabric, nil)

	connections := make(chan *Connection, 8)
	unsubscribe := a.Subscribe(ObserverFuncs{Connection: func(conn *Connection, _ *peer.Info) { connections <- conn }})
	attachPair(t, a, b)
	testutil.RequireReceive(t, connections, testTimeout, "first connection")

	unsubscribe()
	attachPair(t, a, c)
	testutil.RequireNoReceive(t, connections, 100*time.Millisecond, "event after unsubscribe")
}

func TestCloseTearsDown(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	fabric := transport.NewMemoryFabric()
	a := newTestSwarm(t, fabric, func(o *Options) { o.Clock = fake })
	b := newTestSwarm(t, fabric, nil)
	session, _ := a.Join(testTopic)
	fromA, fromB := attachPair(t, a, b)

	fabric.SetSilent(true)
	info, _, _ := a.Registry().Upsert(keyed.Fill(0x01), wire.CapabilityRTC, []keyed.Key{testTopic})
	phony.Block(a, func() { a._connect(info) })

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	testutil.RequireClosed(t, fromA.Done(), testTimeout, "local connection closing")
	testutil.RequireClosed(t, fromB.Done(), testTimeout, "remote connection closing")

	if fabric.Pending() != 0 {
		t.Errorf("%d sessions still pending", fabric.Pending())
	}
	if fake.PendingCount() != 0 {
		t.Errorf("%d timers still armed", fake.PendingCount())
	}
	if a.Registry().Len() != 0 {
		t.Errorf("registry has %d records", a.Registry().Len())
	}
	if err := session.Refresh(); !errors.Is(err, ErrClosed) {
		t.Errorf("Refresh after Close = %v, want ErrClosed", err)
	}
	if _, err := a.Join(testTopic); !errors.Is(err, ErrClosed) {
		t.Errorf("Join after Close = %v, want ErrClosed", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestTopicFromString(t *testing.T) {
	hex := testTopic.String()
	if got := TopicFromString(hex); got != testTopic {
		t.Errorf("hex topic = %s, want %s", got, testTopic)
	}
	named := TopicFromString("chat")
	if named != TopicFromString("chat") {
		t.Error("topic derivation is not deterministic")
	}
	if named == TopicFromString("chat2") || named.IsZero() {
		t.Error("distinct names map to the same topic")
	}
}
