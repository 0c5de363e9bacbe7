// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"net"
)

// Signal types.
const (
	SignalOffer  = "offer"
	SignalAnswer = "answer"
)

// ErrUnexpectedSignal is returned by Session.Signal for a signal the
// session cannot apply in its current role.
var ErrUnexpectedSignal = errors.New("transport: unexpected signal")

// Signal is one unit of negotiation data exchanged out of band. It is
// JSON in the bootstrap relay exchange and CBOR inside gossip signals.
type Signal struct {
	Type string `json:"type" cbor:"1,keyasint"`
	SDP  string `json:"sdp" cbor:"2,keyasint"`
}

// Callbacks receive session events. Any may be nil.
type Callbacks struct {
	// OnSignal delivers local negotiation data for the remote peer.
	OnSignal func(Signal)

	// OnConnect delivers the established stream. Called at most once.
	OnConnect func(net.Conn)

	// OnError reports a failure before the stream was established.
	// Called at most once, and never after OnConnect.
	OnError func(error)
}

// Session is one connection attempt.
type Session interface {
	// Signal applies remote negotiation data.
	Signal(Signal) error

	// Close abandons the attempt, or closes the stream if it was
	// established.
	Close() error
}

// SessionFactory creates sessions. initiator selects the offering role.
type SessionFactory interface {
	NewSession(initiator bool, callbacks Callbacks) (Session, error)
}

// sessionEvents enforces the at-most-once callback rules.
type sessionEvents struct {
	callbacks Callbacks
	settled   chan struct{}
}

func newSessionEvents(callbacks Callbacks) *sessionEvents {
	return &sessionEvents{callbacks: callbacks, settled: make(chan struct{}, 1)}
}

func (e *sessionEvents) signal(signal Signal) {
	if e.callbacks.OnSignal != nil {
		e.callbacks.OnSignal(signal)
	}
}

// settle claims the single terminal event. Returns false if another
// event already claimed it.
func (e *sessionEvents) settle() bool {
	select {
	case e.settled <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *sessionEvents) connect(conn net.Conn) bool {
	if !e.settle() {
		return false
	}
	if e.callbacks.OnConnect != nil {
		e.callbacks.OnConnect(conn)
	}
	return true
}

func (e *sessionEvents) fail(err error) {
	if !e.settle() {
		return
	}
	if e.callbacks.OnError != nil {
		e.callbacks.OnError(err)
	}
}
