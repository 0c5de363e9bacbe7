// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxEnvelopeData bounds the ciphertext length accepted by
// Envelope.UnmarshalBinary.
const MaxEnvelopeData = 1 << 20

// ErrMalformedEnvelope is returned when envelope bytes cannot be decoded.
var ErrMalformedEnvelope = errors.New("identity: malformed envelope")

// Envelope is the wire form of an encrypted message:
//
//	uvarint(len(Data)) || Data || Nonce[24] || Signature[64]
type Envelope struct {
	Data      []byte
	Nonce     [NonceSize]byte
	Signature [SignatureSize]byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, binary.MaxVarintLen64+len(e.Data)+NonceSize+SignatureSize)
	out = binary.AppendUvarint(out, uint64(len(e.Data)))
	out = append(out, e.Data...)
	out = append(out, e.Nonce[:]...)
	out = append(out, e.Signature[:]...)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Trailing bytes
// are rejected.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	length, n := binary.Uvarint(data)
	if n <= 0 {
		return fmt.Errorf("%w: bad data length", ErrMalformedEnvelope)
	}
	if length > MaxEnvelopeData {
		return fmt.Errorf("%w: data length %d exceeds %d", ErrMalformedEnvelope, length, MaxEnvelopeData)
	}
	data = data[n:]
	if uint64(len(data)) != length+NonceSize+SignatureSize {
		return fmt.Errorf("%w: have %d bytes after length, want %d", ErrMalformedEnvelope, len(data), length+NonceSize+SignatureSize)
	}
	e.Data = append([]byte(nil), data[:length]...)
	data = data[length:]
	copy(e.Nonce[:], data[:NonceSize])
	copy(e.Signature[:], data[NonceSize:])
	return nil
}
