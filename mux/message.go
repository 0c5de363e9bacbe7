// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"context"
	"encoding"
)

// Encoding converts lane messages to and from bytes.
type Encoding[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// Raw is the identity encoding for byte lanes.
var Raw = Encoding[[]byte]{
	Encode: func(b []byte) ([]byte, error) { return b, nil },
	Decode: func(b []byte) ([]byte, error) { return b, nil },
}

// Binary builds an Encoding for pointer types that implement
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler.
func Binary[T any, P interface {
	*T
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}]() Encoding[P] {
	return Encoding[P]{
		Encode: func(value P) ([]byte, error) { return value.MarshalBinary() },
		Decode: func(data []byte) (P, error) {
			value := P(new(T))
			if err := value.UnmarshalBinary(data); err != nil {
				return nil, err
			}
			return value, nil
		},
	}
}

// Message is a typed lane.
type Message[T any] struct {
	channel  *Channel
	lane     byte
	encoding Encoding[T]
}

// AddMessage registers a typed lane on c. onmessage runs on the
// channel's reader goroutine for every decoded inbound message.
func AddMessage[T any](c *Channel, lane byte, encoding Encoding[T], onmessage func(T)) (*Message[T], error) {
	err := c.Handle(lane, func(payload []byte) error {
		value, err := encoding.Decode(payload)
		if err != nil {
			return err
		}
		if onmessage != nil {
			onmessage(value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Message[T]{channel: c, lane: lane, encoding: encoding}, nil
}

// Send queues value without blocking. Returns ErrQueueFull when the
// outbound queue is full and ErrClosed after the channel closes.
func (m *Message[T]) Send(value T) error {
	payload, err := m.encoding.Encode(value)
	if err != nil {
		return err
	}
	return m.channel.enqueue(context.Background(), m.lane, payload, false)
}

// SendWait queues value, blocking until there is room, the channel
// closes, or ctx is done.
func (m *Message[T]) SendWait(ctx context.Context, value T) error {
	payload, err := m.encoding.Encode(value)
	if err != nil {
		return err
	}
	return m.channel.enqueue(ctx, m.lane, payload, true)
}
