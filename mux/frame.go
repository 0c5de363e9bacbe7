// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderLength is 1 byte lane + 4 bytes payload length.
const frameHeaderLength = 5

// MaxPayload bounds a single frame's payload. Larger data-lane writes
// are split by the caller.
const MaxPayload = 1 << 20

// ControlLane is reserved for the open handshake.
const ControlLane byte = 0

// Frame is one lane-tagged message.
type Frame struct {
	Lane    byte
	Payload []byte
}

// encodeFrame returns the header and payload as one buffer, so the
// frame reaches the stream in a single Write.
func encodeFrame(lane byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("frame payload of %d bytes exceeds maximum %d", len(payload), MaxPayload)
	}
	buffer := make([]byte, frameHeaderLength+len(payload))
	buffer[0] = lane
	binary.BigEndian.PutUint32(buffer[1:frameHeaderLength], uint32(len(payload)))
	copy(buffer[frameHeaderLength:], payload)
	return buffer, nil
}

// WriteFrame writes a framed message to w.
func WriteFrame(w io.Writer, frame Frame) error {
	buffer, err := encodeFrame(frame.Lane, frame.Payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buffer); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one framed message from r. Returns an error if the
// stream is malformed or the payload exceeds MaxPayload.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	payloadLength := binary.BigEndian.Uint32(header[1:frameHeaderLength])
	if payloadLength > MaxPayload {
		return Frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, MaxPayload)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return Frame{Lane: header[0], Payload: payload}, nil
}
