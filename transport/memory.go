// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

const memoryTokenPrefix = "memory:"

var _ SessionFactory = (*MemoryFabric)(nil)

// MemoryFabric is an in-process SessionFactory for tests. Sessions from
// the same fabric connect over net.Pipe. The initiator's offer is a
// token naming a pipe; the responder that applies it takes the other
// end and answers with the same token.
//
// Callbacks run on their own goroutines, as they would with a real
// network transport.
type MemoryFabric struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*memoryLink
	failure error
	silent  bool
}

type memoryLink struct {
	initiator *memorySession
	near, far net.Conn
}

// NewMemoryFabric creates an empty fabric.
func NewMemoryFabric() *MemoryFabric {
	return &MemoryFabric{pending: make(map[uint64]*memoryLink)}
}

// SetFailure makes every new session fail with err. nil restores
// normal operation.
func (f *MemoryFabric) SetFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failure = err
}

// SetSilent makes new initiators never emit an offer, as if the remote
// side were unreachable. The session stays pending until closed.
func (f *MemoryFabric) SetSilent(silent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = silent
}

// Pending returns the number of offers not yet answered.
func (f *MemoryFabric) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// NewSession implements SessionFactory.
func (f *MemoryFabric) NewSession(initiator bool, callbacks Callbacks) (Session, error) {
	session := &memorySession{
		fabric:    f,
		initiator: initiator,
		events:    newSessionEvents(callbacks),
	}

	f.mu.Lock()
	failure, silent := f.failure, f.silent
	if failure == nil && initiator {
		f.nextID++
		session.id = f.nextID
		near, far := net.Pipe()
		f.pending[session.id] = &memoryLink{initiator: session, near: near, far: far}
	}
	f.mu.Unlock()

	switch {
	case failure != nil:
		go session.events.fail(failure)
	case initiator && !silent:
		token := memoryTokenPrefix + strconv.FormatUint(session.id, 10)
		go session.events.signal(Signal{Type: SignalOffer, SDP: token})
	}
	return session, nil
}

// take removes a pending link. Returns nil if the token is unknown or
// already answered.
func (f *MemoryFabric) take(id uint64) *memoryLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.pending[id]
	if !ok {
		return nil
	}
	delete(f.pending, id)
	return link
}

type memorySession struct {
	fabric    *MemoryFabric
	initiator bool
	id        uint64
	events    *sessionEvents

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func parseMemoryToken(sdp string) (uint64, error) {
	raw, ok := strings.CutPrefix(sdp, memoryTokenPrefix)
	if !ok {
		return 0, fmt.Errorf("not a memory fabric token: %q", sdp)
	}
	return strconv.ParseUint(raw, 10, 64)
}

// Signal implements Session.
func (s *memorySession) Signal(signal Signal) error {
	switch {
	case signal.Type == SignalOffer && !s.initiator:
		id, err := parseMemoryToken(signal.SDP)
		if err != nil {
			return err
		}
		link := s.fabric.take(id)
		if link == nil {
			return fmt.Errorf("%w: offer %d is unknown or already answered", ErrUnexpectedSignal, id)
		}
		if !s.adopt(link.far) {
			link.far.Close()
			link.near.Close()
			return net.ErrClosed
		}
		if !link.initiator.adopt(link.near) {
			link.far.Close()
			link.near.Close()
			return net.ErrClosed
		}
		go func() {
			s.events.signal(Signal{Type: SignalAnswer, SDP: signal.SDP})
			s.events.connect(link.far)
		}()
		return nil

	case signal.Type == SignalAnswer && s.initiator:
		id, err := parseMemoryToken(signal.SDP)
		if err != nil {
			return err
		}
		if id != s.id {
			return fmt.Errorf("%w: answer for offer %d, expected %d", ErrUnexpectedSignal, id, s.id)
		}
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("%w: answer before the offer was taken", ErrUnexpectedSignal)
		}
		go s.events.connect(conn)
		return nil
	}
	return fmt.Errorf("%w: %q for initiator=%t", ErrUnexpectedSignal, signal.Type, s.initiator)
}

// adopt records the session's pipe end. Returns false if the session
// was closed first.
func (s *memorySession) adopt(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

// Close implements Session.
func (s *memorySession) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if s.initiator {
		if link := s.fabric.take(s.id); link != nil {
			link.near.Close()
			link.far.Close()
		}
	}
	if conn != nil {
		conn.Close()
	}
	s.events.settle()
	return nil
}
