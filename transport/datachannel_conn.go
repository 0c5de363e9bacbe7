// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"net"
	"sync"
	"time"
)

const (
	// maxWriteMessage bounds each SCTP message this side sends. Larger
	// writes are split.
	maxWriteMessage = 16 * 1024

	// readBufferSize must hold the largest message a peer can send.
	readBufferSize = 64 * 1024
)

// DataChannelConn wraps a detached pion data channel as a net.Conn.
//
// A detached data channel is message-oriented: each Read returns at
// most one SCTP message and fails if the buffer is too small for it.
// DataChannelConn reads whole messages into a staging buffer and hands
// them out in whatever sizes the caller asks for, so framing code can
// io.ReadFull a 5-byte header without knowing message boundaries.
//
// Deadline support uses timer-based cancellation: when a deadline fires,
// the underlying stream is closed, causing any blocked Read/Write to return
// an error. Once a deadline has fired the conn is permanently broken.
type DataChannelConn struct {
	rwc        io.ReadWriteCloser
	localLabel string
	peerLabel  string

	readMu  sync.Mutex
	staging []byte
	pending []byte

	mu             sync.Mutex
	readTimer      *time.Timer
	writeTimer     *time.Timer
	deadlineClosed bool
}

var _ net.Conn = (*DataChannelConn)(nil)

// NewDataChannelConn wraps a detached pion data channel as a net.Conn.
// localLabel identifies the local endpoint (for logging/addr); peerLabel
// identifies the remote endpoint.
func NewDataChannelConn(rwc io.ReadWriteCloser, localLabel, peerLabel string) *DataChannelConn {
	return &DataChannelConn{
		rwc:        rwc,
		localLabel: localLabel,
		peerLabel:  peerLabel,
	}
}

func (c *DataChannelConn) Read(buffer []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.pending) == 0 {
		if c.staging == nil {
			c.staging = make([]byte, readBufferSize)
		}
		count, err := c.rwc.Read(c.staging)
		if count == 0 {
			return 0, err
		}
		c.pending = c.staging[:count]
	}
	count := copy(buffer, c.pending)
	c.pending = c.pending[count:]
	return count, nil
}

func (c *DataChannelConn) Write(buffer []byte) (int, error) {
	written := 0
	for len(buffer) > 0 {
		chunk := min(len(buffer), maxWriteMessage)
		count, err := c.rwc.Write(buffer[:chunk])
		written += count
		if err != nil {
			return written, err
		}
		buffer = buffer[chunk:]
	}
	return written, nil
}

func (c *DataChannelConn) Close() error {
	c.mu.Lock()
	c.stopTimersLocked()
	c.mu.Unlock()
	return c.rwc.Close()
}

// LocalAddr returns a synthetic address identifying the local data channel endpoint.
func (c *DataChannelConn) LocalAddr() net.Addr {
	return &dataChannelAddr{label: c.localLabel}
}

// RemoteAddr returns a synthetic address identifying the remote data channel endpoint.
func (c *DataChannelConn) RemoteAddr() net.Addr {
	return &dataChannelAddr{label: c.peerLabel}
}

// SetDeadline sets both read and write deadlines. A zero value clears the deadline.
func (c *DataChannelConn) SetDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimer = c.armLocked(c.readTimer, deadline)
	c.writeTimer = c.armLocked(c.writeTimer, deadline)
	return nil
}

// SetReadDeadline sets the read deadline. A zero value clears it.
func (c *DataChannelConn) SetReadDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimer = c.armLocked(c.readTimer, deadline)
	return nil
}

// SetWriteDeadline sets the write deadline. A zero value clears it.
func (c *DataChannelConn) SetWriteDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeTimer = c.armLocked(c.writeTimer, deadline)
	return nil
}

// armLocked replaces timer with one that fires at deadline. Must be
// called with c.mu held.
func (c *DataChannelConn) armLocked(timer *time.Timer, deadline time.Time) *time.Timer {
	if timer != nil {
		timer.Stop()
	}
	if deadline.IsZero() || c.deadlineClosed {
		return nil
	}
	duration := time.Until(deadline)
	if duration <= 0 {
		c.closeFromDeadline()
		return nil
	}
	return time.AfterFunc(duration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.closeFromDeadline()
	})
}

// closeFromDeadline closes the underlying stream to unblock pending I/O.
// Must be called with c.mu held.
func (c *DataChannelConn) closeFromDeadline() {
	if c.deadlineClosed {
		return
	}
	c.deadlineClosed = true
	c.rwc.Close()
}

func (c *DataChannelConn) stopTimersLocked() {
	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
	if c.writeTimer != nil {
		c.writeTimer.Stop()
		c.writeTimer = nil
	}
}

// dataChannelAddr is a synthetic net.Addr for data channel connections.
type dataChannelAddr struct {
	label string
}

func (a *dataChannelAddr) Network() string { return "webrtc" }
func (a *dataChannelAddr) String() string  { return a.label }
