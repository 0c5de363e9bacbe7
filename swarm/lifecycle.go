// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"fmt"
	"net"

	"github.com/bureau-foundation/rtcswarm/lib/clock"
	"github.com/bureau-foundation/rtcswarm/lib/codec"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/lib/telemetry"
	"github.com/bureau-foundation/rtcswarm/peer"
	"github.com/bureau-foundation/rtcswarm/transport"
	"github.com/bureau-foundation/rtcswarm/wire"
)

// attempt is one in-progress transport negotiation. It lives in the
// attempts table from creation until it connects, fails or is
// abandoned.
type attempt struct {
	info      *peer.Info
	session   transport.Session
	initiator bool
	direction string
	timer     *clock.Timer
	connected bool

	// node is set for bootstrap attempts.
	node *BootstrapNode

	// sideband receives local signals instead of gossip, for bootstrap
	// attempts whose offer is posted to a relay.
	sideband chan transport.Signal

	// done receives the attempt's outcome once, if non-nil.
	done chan error

	// Relayed responder attempts may be joined by repeated HTTP
	// requests. answered is closed once answer is set and ended once
	// err is, so every request sees the same outcome.
	answer   transport.Signal
	answered chan struct{}
	ended    chan struct{}
	err      error
}

// _admit applies the checks shared by every direction: the identity is
// not ours, not banned and not vetoed by the firewall.
func (s *Swarm) _admit(remote keyed.Key) bool {
	if s.closed || remote == s.self || s.registry.IsBanned(remote) {
		return false
	}
	if s.options.Firewall != nil && s.options.Firewall(remote) {
		return false
	}
	return true
}

// _rtcCount returns the number of open WebRTC connections.
func (s *Swarm) _rtcCount() int {
	count := 0
	for c := range s.connections.Values() {
		if c.kind == TypeRTC {
			count++
		}
	}
	return count
}

// _hasCapacity reports whether another WebRTC connection fits under
// both caps.
func (s *Swarm) _hasCapacity() bool {
	return s._rtcCount() < s.options.MaxRTCPeers && s.connections.Len() < s.options.MaxPeers
}

// _shouldConnect is outbound admission. Relays never dial.
func (s *Swarm) _shouldConnect(info *peer.Info) bool {
	if s.options.relay || !s._admit(info.PublicKey) {
		return false
	}
	if !info.RTCCapable() || !s._hasCapacity() {
		return false
	}
	if s.attempts.Has(info.PublicKey) || s.connections.Has(info.PublicKey) {
		return false
	}
	return info.Explicit() || info.Overlaps(&s.topics)
}

// _shouldAccept is inbound admission. A peer whose attempt is already
// in progress is always accepted so its negotiation can continue.
func (s *Swarm) _shouldAccept(remote keyed.Key) bool {
	if !s._admit(remote) {
		return false
	}
	if s.attempts.Has(remote) {
		return true
	}
	return s._hasCapacity() &&
		!s.connections.Has(remote) &&
		s.attempts.Len() < s.options.MaxParallel
}

// _connect dials info if admission allows. When the parallel cap is
// reached the dial is deferred by ParallelDelay and re-evaluated.
func (s *Swarm) _connect(info *peer.Info) {
	if !s._shouldConnect(info) {
		return
	}
	key := info.PublicKey
	if s.attempts.Len() >= s.options.MaxParallel {
		if s.deferred.Has(key) {
			return
		}
		s.deferred.Set(key, s.clock.AfterFunc(s.options.ParallelDelay, func() {
			s.Act(nil, func() {
				s.deferred.Delete(key)
				s._connect(info)
			})
		}))
		return
	}
	if timer, ok := s.deferred.Get(key); ok {
		timer.Stop()
		s.deferred.Delete(key)
	}
	if timer, ok := s.retries.Get(key); ok {
		timer.Stop()
		s.retries.Delete(key)
	}

	a := &attempt{info: info, initiator: true, direction: telemetry.DirectionOutbound}
	if err := s._begin(a); err != nil {
		s.logger.Warn("starting outbound session failed", "peer", key.String(), "error", err)
		return
	}
	info.SetRole(peer.RoleResponder)
	s.logger.Debug("dialing peer", "peer", key.String(), "attempt", info.Attempts()+1)
}

// _accept starts the responder side of a negotiation opened by remote
// and applies its first signal.
func (s *Swarm) _accept(info *peer.Info, signal transport.Signal, relayed bool) (*attempt, error) {
	a := &attempt{info: info, direction: telemetry.DirectionInbound}
	if relayed {
		a.answered = make(chan struct{})
		a.ended = make(chan struct{})
	}
	if err := s._begin(a); err != nil {
		return nil, err
	}
	info.SetRole(peer.RoleInitiator)
	if err := a.session.Signal(signal); err != nil {
		s._onAttemptFailed(a, err)
		return nil, err
	}
	return a, nil
}

// _begin creates the transport session for a and arms its timeout.
// Inbound attempts add jitter to the timeout so both ends of a failed
// negotiation do not give up in lockstep.
func (s *Swarm) _begin(a *attempt) error {
	session, err := s.sessions.NewSession(a.initiator, transport.Callbacks{
		OnSignal:  func(signal transport.Signal) { s.Act(nil, func() { s._onLocalSignal(a, signal) }) },
		OnConnect: func(conn net.Conn) { s.Act(nil, func() { s._onSessionConnect(a, conn) }) },
		OnError:   func(err error) { s.Act(nil, func() { s._onAttemptFailed(a, err) }) },
	})
	if err != nil {
		telemetry.Attempts.WithLabelValues(a.direction, "failed").Inc()
		return err
	}
	a.session = session
	s.attempts.Set(a.info.PublicKey, a)
	s.registry.Hold(a.info)

	timeout := s.options.ConnectionTimeout
	if a.direction == telemetry.DirectionInbound {
		timeout += s._jitter()
	}
	a.timer = s.clock.AfterFunc(timeout, func() {
		s.Act(nil, func() { s._onAttemptFailed(a, ErrConnectionTimeout) })
	})
	return nil
}

// _current reports whether a is still the live attempt for its peer.
func (s *Swarm) _current(a *attempt) bool {
	current, ok := s.attempts.Get(a.info.PublicKey)
	return ok && current == a && !s.closed
}

// _end removes a from the attempts table and releases its hold.
func (s *Swarm) _end(a *attempt) {
	a.timer.Stop()
	s.attempts.Delete(a.info.PublicKey)
	s.registry.Release(a.info)
}

func (s *Swarm) _settle(a *attempt, err error) {
	if a.done != nil {
		a.done <- err
		a.done = nil
	}
	if a.ended != nil {
		select {
		case <-a.ended:
		default:
			a.err = err
			close(a.ended)
		}
	}
}

// _abandon drops a without counting it against the peer's retry budget.
func (s *Swarm) _abandon(a *attempt, reason error) {
	if !s._current(a) {
		return
	}
	s._end(a)
	a.session.Close()
	s._settle(a, reason)
	s.logger.Debug("attempt abandoned", "peer", a.info.PublicKey.String(), "reason", reason)
}

// _onLocalSignal delivers a signal produced by our session: to the
// waiting HTTP exchange for relay attempts on either end, otherwise
// encrypted through gossip.
func (s *Swarm) _onLocalSignal(a *attempt, signal transport.Signal) {
	if !s._current(a) {
		return
	}
	if a.answered != nil {
		select {
		case <-a.answered:
			s.logger.Debug("dropping extra relayed signal", "peer", a.info.PublicKey.String(), "type", signal.Type)
		default:
			a.answer = signal
			close(a.answered)
		}
		return
	}
	if a.sideband != nil {
		select {
		case a.sideband <- signal:
		default:
			s.logger.Debug("dropping extra sideband signal", "peer", a.info.PublicKey.String(), "type", signal.Type)
		}
		return
	}

	encoded, err := codec.Marshal(signal)
	if err != nil {
		s._onAttemptFailed(a, fmt.Errorf("encoding signal: %w", err))
		return
	}
	payload := &wire.SignalPayload{
		Capabilities: s.capabilities,
		Topics:       s.topics.Slice(),
		Initiator:    a.initiator,
		Signal:       encoded,
	}
	if err := s.gossip.Signal(a.info.PublicKey, payload); err != nil {
		s._onAttemptFailed(a, err)
	}
}

// _onSignal handles a decrypted signal addressed to us.
func (s *Swarm) _onSignal(origin keyed.Key, payload *wire.SignalPayload) {
	var signal transport.Signal
	if err := codec.Unmarshal(payload.Signal, &signal); err != nil {
		s.logger.Debug("dropping malformed signal", "origin", origin.String(), "error", err)
		return
	}
	info, created, _ := s.registry.Upsert(origin, payload.Capabilities, payload.Topics)
	if created {
		s._emitPeer(info)
	}

	if a, ok := s.attempts.Get(origin); ok {
		switch {
		case a.initiator && payload.Initiator:
			// Both sides dialed. The smaller key keeps its offer.
			if keyed.Compare(s.self, origin) < 0 {
				s.logger.Debug("ignoring crossed offer", "peer", origin.String())
				return
			}
			s._abandon(a, errSuperseded)
		case a.initiator != payload.Initiator:
			if err := a.session.Signal(signal); err != nil {
				s._onAttemptFailed(a, err)
			}
			return
		default:
			s.logger.Debug("dropping answer for a responder attempt", "peer", origin.String())
			return
		}
	}

	if !payload.Initiator {
		s.logger.Debug("dropping answer with no attempt", "peer", origin.String())
		return
	}
	if !s._shouldAccept(origin) {
		s.logger.Debug("rejecting inbound offer", "peer", origin.String())
		telemetry.Attempts.WithLabelValues(telemetry.DirectionInbound, "rejected").Inc()
		return
	}
	if _, err := s._accept(info, signal, false); err != nil {
		s.logger.Debug("accepting offer failed", "peer", origin.String(), "error", err)
	}
}

// _onSessionConnect authenticates a connected stream off the actor.
func (s *Swarm) _onSessionConnect(a *attempt, conn net.Conn) {
	if !s._current(a) || a.connected {
		conn.Close()
		return
	}
	a.connected = true
	remote := a.info.PublicKey
	go func() {
		err := transport.Authenticate(conn, s.keyPair, s.self, remote)
		s.Act(nil, func() { s._onAuthenticated(a, conn, err) })
	}()
}

func (s *Swarm) _onAuthenticated(a *attempt, conn net.Conn, err error) {
	if !s._current(a) {
		conn.Close()
		return
	}
	if err != nil {
		conn.Close()
		s._onAttemptFailed(a, err)
		return
	}

	// The connection takes its own hold before the attempt drops its.
	_, err = s._promote(conn, a.info, a.initiator, TypeRTC)
	s._end(a)
	if err != nil {
		conn.Close()
		telemetry.Attempts.WithLabelValues(a.direction, "failed").Inc()
		s._settle(a, err)
		return
	}
	a.info.ResetAttempts()
	telemetry.Attempts.WithLabelValues(a.direction, "connected").Inc()
	s._settle(a, nil)
	if a.node != nil {
		node := *a.node
		s.logger.Info("bootstrapped", "relay", node.PublicKey.String(), "url", node.URL)
		s.events.emit(func(o Observer) { o.OnBootstrap(node) })
	}
}

// _onAttemptFailed tears a down. Failed outbound dials are retried
// after RetryTimeout plus jitter until MaxAttempts is reached.
func (s *Swarm) _onAttemptFailed(a *attempt, err error) {
	if !s._current(a) {
		return
	}
	s._end(a)
	a.session.Close()
	telemetry.Attempts.WithLabelValues(a.direction, "failed").Inc()
	s._settle(a, err)

	key := a.info.PublicKey
	if a.direction != telemetry.DirectionOutbound {
		s.logger.Debug("attempt failed", "peer", key.String(), "direction", a.direction, "error", err)
		return
	}
	attempts := a.info.IncrementAttempts()
	if attempts >= s.options.MaxAttempts {
		s.logger.Info("giving up on peer", "peer", key.String(), "attempts", attempts, "error", err)
		return
	}
	delay := s.options.RetryTimeout + s._jitter()
	s.logger.Debug("attempt failed, retrying", "peer", key.String(), "attempts", attempts, "delay", delay, "error", err)
	if timer, ok := s.retries.Get(key); ok {
		timer.Stop()
	}
	info := a.info
	s.retries.Set(key, s.clock.AfterFunc(delay, func() {
		s.Act(nil, func() {
			s.retries.Delete(key)
			s._connect(info)
		})
	}))
}

// _promote turns an authenticated stream into an open connection.
func (s *Swarm) _promote(stream net.Conn, info *peer.Info, initiator bool, kind ConnectionType) (*Connection, error) {
	key := info.PublicKey
	if s.connections.Has(key) {
		return nil, fmt.Errorf("%w: already connected to %s", ErrRejected, key.Short())
	}
	// Attempts run in parallel and capacity was only checked when each
	// began, so check it again now that one has finished.
	if kind == TypeRTC && !s._hasCapacity() {
		return nil, fmt.Errorf("%w: peer limit reached", ErrRejected)
	}
	c, err := newConnection(s, stream, info, initiator, kind)
	if err != nil {
		return nil, err
	}
	s.connections.Set(key, c)
	s.registry.Hold(info)
	c.start()

	telemetry.Connections.WithLabelValues("opened").Inc()
	telemetry.OpenConnections.Inc()
	s.logger.Info("connection opened",
		"peer", key.String(),
		"initiator", initiator,
		"type", kind.String(),
	)
	s.events.emit(func(o Observer) { o.OnConnection(c, info) })
	s._notifyFlushes()
	s._announce()
	return c, nil
}

// _onConnectionClosed forgets a connection whose stream ended and
// bootstraps again if the node is becoming isolated.
func (s *Swarm) _onConnectionClosed(c *Connection, err error) {
	if current, ok := s.connections.Get(c.remote); !ok || current != c {
		return
	}
	s.connections.Delete(c.remote)
	s.registry.Release(c.info)
	telemetry.Connections.WithLabelValues("closed").Inc()
	telemetry.OpenConnections.Dec()
	s.logger.Info("connection closed", "peer", c.remote.String(), "error", err)
	s._checkConnectivity()
}

// _checkConnectivity bootstraps when fewer than minConnections remain
// and none of them is to a relay.
func (s *Swarm) _checkConnectivity() {
	if s.closed || s.options.relay || len(s.options.Bootstrap) == 0 {
		return
	}
	if s.connections.Len() >= minConnections {
		return
	}
	for _, node := range s.options.Bootstrap {
		if s.connections.Has(node.PublicKey) {
			return
		}
	}
	s._startBootstrap()
}
