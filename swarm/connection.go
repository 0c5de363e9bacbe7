// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/bureau-foundation/rtcswarm/gossip"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/mux"
	"github.com/bureau-foundation/rtcswarm/peer"
	"github.com/bureau-foundation/rtcswarm/wire"
)

// ConnectionType distinguishes how a connection's stream was made.
type ConnectionType uint8

const (
	// TypeRTC is a WebRTC data channel negotiated by the swarm. Only
	// these count toward MaxRTCPeers.
	TypeRTC ConnectionType = iota + 1
	// TypeStream is a stream the application attached itself.
	TypeStream
)

func (t ConnectionType) String() string {
	switch t {
	case TypeRTC:
		return "rtc"
	case TypeStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Lanes multiplexed over every connection.
const (
	laneData     byte = 1
	laneAnnounce byte = 2
	laneSignal   byte = 3
)

// maxDataFrame bounds each data-lane frame written by Connection.Write.
const maxDataFrame = 64 * 1024

var _ gossip.Link = (*Connection)(nil)

// Connection is an open, authenticated link to one peer. It is an
// io.ReadWriteCloser for application bytes; gossip traffic shares the
// stream on separate lanes.
//
// Read must be drained: inbound frames are dispatched in order, so
// unread application data stalls gossip on this connection too.
type Connection struct {
	swarm     *Swarm
	info      *peer.Info
	remote    keyed.Key
	initiator bool
	kind      ConnectionType
	stream    net.Conn

	channel  *mux.Channel
	data     *mux.Message[[]byte]
	announce *mux.Message[*wire.TopicMessage]
	signal   *mux.Message[*wire.SignalMessage]

	reader *io.PipeReader
	writer *io.PipeWriter

	closeOnce sync.Once
}

// newConnection wraps an authenticated stream. Lanes are live after start.
func newConnection(s *Swarm, stream net.Conn, info *peer.Info, initiator bool, kind ConnectionType) (*Connection, error) {
	reader, writer := io.Pipe()
	c := &Connection{
		swarm:     s,
		info:      info,
		remote:    info.PublicKey,
		initiator: initiator,
		kind:      kind,
		stream:    stream,
		reader:    reader,
		writer:    writer,
	}
	c.channel = mux.New(stream, wire.Protocol, mux.Options{Logger: s.logger.With("peer", c.remote.String())})

	var err error
	c.data, err = mux.AddMessage(c.channel, laneData, mux.Raw, func(payload []byte) {
		// Blocks until the application reads. A closed pipe means the
		// application is done with the data; drop it.
		c.writer.Write(payload)
	})
	if err != nil {
		return nil, err
	}
	c.announce, err = mux.AddMessage(c.channel, laneAnnounce, mux.Binary[wire.TopicMessage](), func(message *wire.TopicMessage) {
		s.Act(nil, func() { s._onAnnounce(c, message) })
	})
	if err != nil {
		return nil, err
	}
	c.signal, err = mux.AddMessage(c.channel, laneSignal, mux.Binary[wire.SignalMessage](), func(message *wire.SignalMessage) {
		s.Act(nil, func() { s._onGossipSignal(c, message) })
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// start opens the channel and watches for it to end.
func (c *Connection) start() {
	c.channel.Start()
	go func() {
		<-c.channel.Done()
		err := c.channel.Err()
		if err == nil {
			err = io.EOF
		}
		c.writer.CloseWithError(err)
		c.swarm.Act(nil, func() { c.swarm._onConnectionClosed(c, err) })
	}()
}

// RemotePublicKey returns the peer's identity.
func (c *Connection) RemotePublicKey() keyed.Key { return c.remote }

// Info returns the peer's record.
func (c *Connection) Info() *peer.Info { return c.info }

// Initiator reports whether this side dialed.
func (c *Connection) Initiator() bool { return c.initiator }

// Type returns how the stream was established.
func (c *Connection) Type() ConnectionType { return c.kind }

// LocalAddr and RemoteAddr describe the underlying stream.
func (c *Connection) LocalAddr() net.Addr  { return c.stream.LocalAddr() }
func (c *Connection) RemoteAddr() net.Addr { return c.stream.RemoteAddr() }

// Done is closed when the connection has ended.
func (c *Connection) Done() <-chan struct{} { return c.channel.Done() }

// Read reads application data sent by the peer. Returns io.EOF after
// the connection closes cleanly.
func (c *Connection) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

// Write sends application data, split into frames. It blocks while the
// outbound queue is full.
func (c *Connection) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		chunk := min(len(p), maxDataFrame)
		// The frame is queued, not copied, so hand mux its own slice.
		frame := append([]byte(nil), p[:chunk]...)
		if err := c.data.SendWait(context.Background(), frame); err != nil {
			if errors.Is(err, mux.ErrClosed) {
				return written, net.ErrClosed
			}
			return written, err
		}
		written += chunk
		p = p[chunk:]
	}
	return written, nil
}

// Close tears the connection down. The swarm forgets it once the
// stream has closed.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.reader.Close()
		c.channel.Close()
	})
	return nil
}

// SendAnnounce queues an announcement without blocking.
func (c *Connection) SendAnnounce(message *wire.TopicMessage) error {
	return c.announce.Send(message)
}

// SendSignal queues a signal without blocking.
func (c *Connection) SendSignal(message *wire.SignalMessage) error {
	return c.signal.Send(message)
}
