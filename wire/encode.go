// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bureau-foundation/rtcswarm/lib/keyed"
)

const (
	// HeaderSize is the encoded length of a Header.
	HeaderSize = keyed.Size + 32 + 1

	// MaxTopics bounds the topic list of a single payload.
	MaxTopics = 1024

	// MaxPayload bounds any variable-length byte field.
	MaxPayload = 64 * 1024

	signatureSize = 64
)

var (
	// ErrTruncated is returned when input ends before a field is complete.
	ErrTruncated = errors.New("wire: truncated message")

	// ErrOversized is returned when a length or count exceeds the limits,
	// or bytes remain after the last field.
	ErrOversized = errors.New("wire: oversized message")
)

func chopSlice(out []byte, data *[]byte) bool {
	if len(*data) < len(out) {
		return false
	}
	copy(out, *data)
	*data = (*data)[len(out):]
	return true
}

func chopByte(out *byte, data *[]byte) bool {
	if len(*data) < 1 {
		return false
	}
	*out = (*data)[0]
	*data = (*data)[1:]
	return true
}

func chopUvarint(out *uint64, data *[]byte) bool {
	u, l := binary.Uvarint(*data)
	if l <= 0 {
		return false
	}
	*out, *data = u, (*data)[l:]
	return true
}

func chopBytes(out *[]byte, data *[]byte) error {
	var length uint64
	if !chopUvarint(&length, data) {
		return ErrTruncated
	}
	if length > MaxPayload {
		return fmt.Errorf("%w: field of %d bytes", ErrOversized, length)
	}
	if uint64(len(*data)) < length {
		return ErrTruncated
	}
	*out = append([]byte(nil), (*data)[:length]...)
	*data = (*data)[length:]
	return nil
}

func chopTopics(out *[]keyed.Key, data *[]byte) error {
	var count uint64
	if !chopUvarint(&count, data) {
		return ErrTruncated
	}
	if count > MaxTopics {
		return fmt.Errorf("%w: %d topics", ErrOversized, count)
	}
	if uint64(len(*data)) < count*keyed.Size {
		return ErrTruncated
	}
	topics := make([]keyed.Key, count)
	for i := range topics {
		chopSlice(topics[i][:], data)
	}
	*out = topics
	return nil
}

func chopHeader(out *Header, data *[]byte) error {
	if !chopSlice(out.Origin[:], data) ||
		!chopSlice(out.MessageID[:], data) ||
		!chopByte(&out.TTL, data) {
		return ErrTruncated
	}
	return nil
}

func finish(data []byte) error {
	if len(data) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrOversized, len(data))
	}
	return nil
}

func appendBytes(out, field []byte) []byte {
	out = binary.AppendUvarint(out, uint64(len(field)))
	return append(out, field...)
}

func appendTopics(out []byte, topics []keyed.Key) []byte {
	out = binary.AppendUvarint(out, uint64(len(topics)))
	for _, topic := range topics {
		out = append(out, topic[:]...)
	}
	return out
}

func appendHeader(out []byte, h *Header) []byte {
	out = append(out, h.Origin[:]...)
	out = append(out, h.MessageID[:]...)
	return append(out, h.TTL)
}

func checkLimits(topics int, fields ...[]byte) error {
	if topics > MaxTopics {
		return fmt.Errorf("%w: %d topics", ErrOversized, topics)
	}
	for _, field := range fields {
		if len(field) > MaxPayload {
			return fmt.Errorf("%w: field of %d bytes", ErrOversized, len(field))
		}
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *TopicMessage) MarshalBinary() ([]byte, error) {
	if err := checkLimits(0, m.Payload); err != nil {
		return nil, err
	}
	out := make([]byte, 0, HeaderSize+binary.MaxVarintLen64+len(m.Payload)+signatureSize)
	out = appendHeader(out, &m.Header)
	out = appendBytes(out, m.Payload)
	return append(out, m.Signature[:]...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *TopicMessage) UnmarshalBinary(data []byte) error {
	var decoded TopicMessage
	if err := chopHeader(&decoded.Header, &data); err != nil {
		return err
	}
	if err := chopBytes(&decoded.Payload, &data); err != nil {
		return err
	}
	if !chopSlice(decoded.Signature[:], &data) {
		return ErrTruncated
	}
	if err := finish(data); err != nil {
		return err
	}
	*m = decoded
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *TopicPayload) MarshalBinary() ([]byte, error) {
	if err := checkLimits(len(p.Topics)); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(p.Topics)*keyed.Size)
	out = append(out, byte(p.Capabilities))
	return appendTopics(out, p.Topics), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *TopicPayload) UnmarshalBinary(data []byte) error {
	var decoded TopicPayload
	var capabilities byte
	if !chopByte(&capabilities, &data) {
		return ErrTruncated
	}
	decoded.Capabilities = Capabilities(capabilities)
	if err := chopTopics(&decoded.Topics, &data); err != nil {
		return err
	}
	if err := finish(data); err != nil {
		return err
	}
	*p = decoded
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *SignalMessage) MarshalBinary() ([]byte, error) {
	if err := checkLimits(0, m.Payload); err != nil {
		return nil, err
	}
	out := make([]byte, 0, HeaderSize+keyed.Size+binary.MaxVarintLen64+len(m.Payload))
	out = appendHeader(out, &m.Header)
	out = append(out, m.Target[:]...)
	return appendBytes(out, m.Payload), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *SignalMessage) UnmarshalBinary(data []byte) error {
	var decoded SignalMessage
	if err := chopHeader(&decoded.Header, &data); err != nil {
		return err
	}
	if !chopSlice(decoded.Target[:], &data) {
		return ErrTruncated
	}
	if err := chopBytes(&decoded.Payload, &data); err != nil {
		return err
	}
	if err := finish(data); err != nil {
		return err
	}
	*m = decoded
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *SignalPayload) MarshalBinary() ([]byte, error) {
	if err := checkLimits(len(p.Topics), p.Signal); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+2*binary.MaxVarintLen64+len(p.Topics)*keyed.Size+len(p.Signal))
	out = append(out, byte(p.Capabilities))
	out = appendTopics(out, p.Topics)
	var initiator byte
	if p.Initiator {
		initiator = 1
	}
	out = append(out, initiator)
	return appendBytes(out, p.Signal), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *SignalPayload) UnmarshalBinary(data []byte) error {
	var decoded SignalPayload
	var capabilities, initiator byte
	if !chopByte(&capabilities, &data) {
		return ErrTruncated
	}
	decoded.Capabilities = Capabilities(capabilities)
	if err := chopTopics(&decoded.Topics, &data); err != nil {
		return err
	}
	if !chopByte(&initiator, &data) {
		return ErrTruncated
	}
	if initiator > 1 {
		return fmt.Errorf("wire: initiator flag %d is not a boolean", initiator)
	}
	decoded.Initiator = initiator == 1
	if err := chopBytes(&decoded.Signal, &data); err != nil {
		return err
	}
	if err := finish(data); err != nil {
		return err
	}
	*p = decoded
	return nil
}
