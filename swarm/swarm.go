// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/Arceliar/phony"

	"github.com/bureau-foundation/rtcswarm/gossip"
	"github.com/bureau-foundation/rtcswarm/lib/clock"
	"github.com/bureau-foundation/rtcswarm/lib/identity"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/lib/telemetry"
	"github.com/bureau-foundation/rtcswarm/peer"
	"github.com/bureau-foundation/rtcswarm/transport"
	"github.com/bureau-foundation/rtcswarm/wire"
)

var (
	// ErrClosed is returned by operations on a closed swarm.
	ErrClosed = errors.New("swarm: closed")

	// ErrNoBootstrap is returned when bootstrap is requested but no
	// relays are configured.
	ErrNoBootstrap = errors.New("swarm: no bootstrap relays configured")

	// ErrConnectionTimeout fails an attempt that did not connect
	// within Options.ConnectionTimeout.
	ErrConnectionTimeout = errors.New("swarm: connection attempt timed out")

	// ErrRejected is returned when admission refuses a peer.
	ErrRejected = errors.New("swarm: peer rejected")

	errSuperseded = errors.New("swarm: attempt superseded")
)

// Swarm is one node in the swarm: its gossip engine, peer registry,
// open connections and in-progress attempts.
//
// All mutable state is owned by the embedded actor. Methods prefixed
// with an underscore must only run on it; exported methods hop onto it
// with phony.Block.
type Swarm struct {
	phony.Inbox

	keyPair      identity.KeyPair
	self         keyed.Key
	options      Options
	sessions     transport.SessionFactory
	clock        clock.Clock
	logger       *slog.Logger
	registry     *peer.Registry
	gossip       *gossip.Engine
	events       observers
	capabilities wire.Capabilities

	ctx    context.Context
	cancel context.CancelFunc

	// Actor state.
	connections    keyed.Map[*Connection]
	attempts       keyed.Map[*attempt]
	deferred       keyed.Map[*clock.Timer]
	retries        keyed.Map[*clock.Timer]
	topics         keyed.Set
	discoveries    keyed.Map[*discovery]
	announceTimer  *clock.Timer
	bootstrapRun   *bootstrapRun
	bootstrapTimer *clock.Timer
	flushes        []*flushWaiter
	closed         bool
}

// New creates a swarm and starts its periodic announcements. When
// bootstrap relays are configured it contacts them immediately.
func New(options Options) (*Swarm, error) {
	options, err := options.withDefaults()
	if err != nil {
		return nil, err
	}

	s := &Swarm{
		keyPair:      options.KeyPair,
		self:         options.KeyPair.ID(),
		options:      options,
		sessions:     options.Sessions,
		clock:        options.Clock,
		registry:     peer.NewRegistry(options.Clock, options.PeerIdleTimeout),
		capabilities: wire.CapabilityRTC,
	}
	if options.relay {
		s.capabilities = wire.CapabilitiesFull
	}
	s.logger = options.Logger.With("self", s.self.Short())
	s.gossip, err = gossip.NewEngine(s.keyPair, engineHost{s}, s.registry, gossip.Options{Logger: s.logger})
	if err != nil {
		return nil, fmt.Errorf("swarm: %w", err)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.Act(nil, func() {
		s._scheduleAnnounce()
		if !s.options.relay && len(s.options.Bootstrap) > 0 {
			s._startBootstrap()
		}
	})
	return s, nil
}

// run executes f on the actor, failing with ErrClosed after Close.
func (s *Swarm) run(f func() error) error {
	var err error
	phony.Block(s, func() {
		if s.closed {
			err = ErrClosed
			return
		}
		err = f()
	})
	return err
}

// PublicKey returns the swarm's identity.
func (s *Swarm) PublicKey() keyed.Key { return s.self }

// KeyPair returns the swarm's signing keypair.
func (s *Swarm) KeyPair() identity.KeyPair { return s.keyPair }

// Capabilities returns what this node advertises.
func (s *Swarm) Capabilities() wire.Capabilities { return s.capabilities }

// Registry returns the peer registry.
func (s *Swarm) Registry() *peer.Registry { return s.registry }

// Subscribe registers an observer. The returned function unsubscribes.
func (s *Swarm) Subscribe(observer Observer) func() {
	return s.events.add(observer)
}

// Connections returns the open connections in the order they opened.
func (s *Swarm) Connections() []*Connection {
	var connections []*Connection
	phony.Block(s, func() {
		for c := range s.connections.Values() {
			connections = append(connections, c)
		}
	})
	return connections
}

// Connection returns the open connection to remote, if any.
func (s *Swarm) Connection(remote keyed.Key) (*Connection, bool) {
	var (
		c  *Connection
		ok bool
	)
	phony.Block(s, func() { c, ok = s.connections.Get(remote) })
	return c, ok
}

// Peers returns every known peer record.
func (s *Swarm) Peers() []*peer.Info { return s.registry.All() }

// Topics returns the joined topics.
func (s *Swarm) Topics() []keyed.Key {
	var topics []keyed.Key
	phony.Block(s, func() { topics = s.topics.Slice() })
	return topics
}

// ShouldConnect reports whether the swarm would dial remote now.
func (s *Swarm) ShouldConnect(remote keyed.Key) bool {
	var ok bool
	phony.Block(s, func() {
		if info, found := s.registry.Get(remote); found {
			ok = s._shouldConnect(info)
		}
	})
	return ok
}

// JoinPeer marks remote as explicit and dials it if it is reachable
// over WebRTC, regardless of topic overlap.
func (s *Swarm) JoinPeer(remote keyed.Key) error {
	return s.run(func() error {
		if remote == s.self {
			return fmt.Errorf("%w: cannot join self", ErrRejected)
		}
		info, created := s.registry.Lookup(remote)
		if created {
			s._emitPeer(info)
		}
		if !info.Explicit() {
			info.SetExplicit(true)
			s.registry.Hold(info)
		}
		s._connect(info)
		return nil
	})
}

// LeavePeer clears the explicit mark set by JoinPeer. An open
// connection is left alone.
func (s *Swarm) LeavePeer(remote keyed.Key) error {
	return s.run(func() error {
		info, ok := s.registry.Get(remote)
		if !ok || !info.Explicit() {
			return nil
		}
		info.SetExplicit(false)
		s.registry.Release(info)
		return nil
	})
}

// Ban refuses remote from now on and tears down any connection or
// attempt with it.
func (s *Swarm) Ban(remote keyed.Key) error {
	return s.run(func() error {
		s.registry.Ban(remote)
		if a, ok := s.attempts.Get(remote); ok {
			s._abandon(a, ErrRejected)
		}
		if c, ok := s.connections.Get(remote); ok {
			c.Close()
		}
		return nil
	})
}

// Attach promotes a caller-provided stream to a connection after
// mutual authentication. Attached streams are TypeStream and do not
// count toward MaxRTCPeers.
func (s *Swarm) Attach(stream net.Conn, remote keyed.Key, initiator bool) (*Connection, error) {
	err := s.run(func() error {
		if !s._admit(remote) || s.connections.Len() >= s.options.MaxPeers {
			return ErrRejected
		}
		return nil
	})
	if err != nil {
		stream.Close()
		return nil, err
	}

	if err := transport.Authenticate(stream, s.keyPair, s.self, remote); err != nil {
		stream.Close()
		return nil, err
	}

	var c *Connection
	err = s.run(func() error {
		info, created := s.registry.Lookup(remote)
		if created {
			s._emitPeer(info)
		}
		var err error
		c, err = s._promote(stream, info, initiator, TypeStream)
		return err
	})
	if err != nil {
		stream.Close()
		return nil, err
	}
	return c, nil
}

// Close tears the swarm down: timers are cancelled, attempts and
// connections destroyed, discovery sessions ended and the peer table
// cleared.
func (s *Swarm) Close() error {
	phony.Block(s, func() {
		if s.closed {
			return
		}
		s.closed = true
		s.cancel()

		s.announceTimer.Stop()
		s.bootstrapTimer.Stop()
		for timer := range s.deferred.Values() {
			timer.Stop()
		}
		s.deferred.Clear()
		for timer := range s.retries.Values() {
			timer.Stop()
		}
		s.retries.Clear()

		for a := range s.attempts.Values() {
			a.timer.Stop()
			a.session.Close()
			s._settle(a, ErrClosed)
		}
		s.attempts.Clear()

		for c := range s.connections.Values() {
			c.Close()
			telemetry.Connections.WithLabelValues("closed").Inc()
			telemetry.OpenConnections.Dec()
		}
		s.connections.Clear()

		for d := range s.discoveries.Values() {
			d.end()
		}
		s.discoveries.Clear()
		s.topics.Clear()

		for _, waiter := range s.flushes {
			waiter.timer.Stop()
			waiter.done <- false
		}
		s.flushes = nil

		s.registry.Clear()
		s.logger.Info("swarm closed")
	})
	return nil
}

// _jitter returns a random delay in [0, Options.Jitter).
func (s *Swarm) _jitter() time.Duration {
	if s.options.Jitter <= 0 {
		return 0
	}
	return rand.N(s.options.Jitter)
}

func (s *Swarm) _emitPeer(info *peer.Info) {
	s.events.emit(func(o Observer) { o.OnPeer(info) })
}

// _scheduleAnnounce arms the periodic announcement. Each firing
// announces, sweeps idle peer records and re-arms.
func (s *Swarm) _scheduleAnnounce() {
	s.announceTimer.Stop()
	delay := s.options.AnnounceInterval + s._jitter()
	s.announceTimer = s.clock.AfterFunc(delay, func() {
		s.Act(nil, func() {
			if s.closed {
				return
			}
			s._announce()
			if evicted := s.registry.Sweep(); evicted > 0 {
				s.logger.Debug("evicted idle peers", "count", evicted)
			}
			s._scheduleAnnounce()
		})
	})
}

func (s *Swarm) _announce() {
	if err := s.gossip.Announce(); err != nil {
		s.logger.Warn("announce failed", "error", err)
	}
}

// _onAnnounce and _onGossipSignal ignore traffic from connections the
// swarm has already dropped.
func (s *Swarm) _onAnnounce(c *Connection, message *wire.TopicMessage) {
	if current, ok := s.connections.Get(c.remote); !ok || current != c {
		return
	}
	s.gossip.OnAnnounce(message, c.remote)
}

func (s *Swarm) _onGossipSignal(c *Connection, message *wire.SignalMessage) {
	if current, ok := s.connections.Get(c.remote); !ok || current != c {
		return
	}
	s.gossip.OnSignal(message, c.remote)
}

// _onPeerAnnounce reacts to a verified announcement: new identities are
// reported and peers whose capabilities or topics changed are
// considered for dialing.
func (s *Swarm) _onPeerAnnounce(info *peer.Info, created, changed bool) {
	if created {
		s._emitPeer(info)
	}
	if created || changed {
		s._connect(info)
	}
}

// engineHost exposes actor state to the gossip engine. The engine is
// only ever driven from the actor, so reads need no synchronisation.
type engineHost struct {
	s *Swarm
}

var _ gossip.Host = engineHost{}

func (h engineHost) Capabilities() wire.Capabilities { return h.s.capabilities }

func (h engineHost) Topics() []keyed.Key { return h.s.topics.Slice() }

func (h engineHost) Links() []gossip.Link {
	links := make([]gossip.Link, 0, h.s.connections.Len())
	for c := range h.s.connections.Values() {
		links = append(links, c)
	}
	return links
}

func (h engineHost) OnPeerAnnounce(info *peer.Info, created, changed bool) {
	h.s._onPeerAnnounce(info, created, changed)
}

func (h engineHost) OnSignal(origin keyed.Key, payload *wire.SignalPayload) {
	h.s._onSignal(origin, payload)
}
