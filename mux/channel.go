// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// DefaultQueueSize is the number of outbound frames buffered per channel.
const DefaultQueueSize = 256

var (
	// ErrProtocolMismatch is returned when the remote side opens with a
	// different protocol name.
	ErrProtocolMismatch = errors.New("mux: protocol mismatch")

	// ErrClosed is returned by sends on a closed channel.
	ErrClosed = errors.New("mux: channel closed")

	// ErrQueueFull is returned by Send when the outbound queue is full.
	ErrQueueFull = errors.New("mux: outbound queue full")

	// ErrLaneInUse is returned when a lane is registered twice.
	ErrLaneInUse = errors.New("mux: lane already registered")
)

// Options configures a Channel.
type Options struct {
	// QueueSize bounds buffered outbound frames. Zero uses
	// DefaultQueueSize.
	QueueSize int

	// Logger receives debug logs for dropped frames. Nil discards.
	Logger *slog.Logger
}

// Channel multiplexes lanes over one stream.
type Channel struct {
	stream   io.ReadWriteCloser
	protocol string
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[byte]func([]byte) error
	started  bool

	queue  chan []byte
	opened chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	err       error
}

// New creates a channel over stream. Register lanes, then call Start.
func New(stream io.ReadWriteCloser, protocol string, options Options) *Channel {
	size := options.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Channel{
		stream:   stream,
		protocol: protocol,
		logger:   logger,
		handlers: make(map[byte]func([]byte) error),
		queue:    make(chan []byte, size),
		opened:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Handle registers a raw handler for lane. A handler error drops that
// frame and is logged; it does not close the channel.
func (c *Channel) Handle(lane byte, handler func(payload []byte) error) error {
	if lane == ControlLane {
		return fmt.Errorf("%w: lane 0 is reserved", ErrLaneInUse)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("mux: cannot register lanes after Start")
	}
	if _, exists := c.handlers[lane]; exists {
		return fmt.Errorf("%w: %d", ErrLaneInUse, lane)
	}
	c.handlers[lane] = handler
	return nil
}

// Start sends the open frame and begins reading and writing.
func (c *Channel) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	open, _ := encodeFrame(ControlLane, []byte(c.protocol))
	c.queue <- open

	go c.writeLoop()
	go c.readLoop()
}

// Opened is closed once the remote side's open frame has been accepted.
func (c *Channel) Opened() <-chan struct{} { return c.opened }

// Done is closed when the channel shuts down for any reason.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns why the channel closed: nil for a local Close, io.EOF for
// a clean remote close, or the failure.
func (c *Channel) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close shuts down the channel and the underlying stream.
func (c *Channel) Close() error {
	c.fail(nil)
	return nil
}

func (c *Channel) fail(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.stream.Close()
	})
}

func (c *Channel) enqueue(ctx context.Context, lane byte, payload []byte, wait bool) error {
	frame, err := encodeFrame(lane, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if !wait {
		select {
		case c.queue <- frame:
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case c.queue <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.queue:
			if _, err := c.stream.Write(frame); err != nil {
				c.fail(fmt.Errorf("write frame: %w", err))
				return
			}
		}
	}
}

func (c *Channel) readLoop() {
	first, err := ReadFrame(c.stream)
	if err != nil {
		c.fail(err)
		return
	}
	if first.Lane != ControlLane || string(first.Payload) != c.protocol {
		c.fail(fmt.Errorf("%w: remote opened %q on lane %d", ErrProtocolMismatch, first.Payload, first.Lane))
		return
	}
	close(c.opened)

	for {
		frame, err := ReadFrame(c.stream)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			c.fail(err)
			return
		}
		if frame.Lane == ControlLane {
			continue
		}
		c.mu.Lock()
		handler := c.handlers[frame.Lane]
		c.mu.Unlock()
		if handler == nil {
			c.logger.Debug("dropping frame on unregistered lane", "lane", frame.Lane)
			continue
		}
		if err := handler(frame.Payload); err != nil {
			c.logger.Debug("dropping undecodable frame", "lane", frame.Lane, "error", err)
		}
	}
}
