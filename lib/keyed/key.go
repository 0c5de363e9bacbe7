// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyed

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Size is the length of a Key in bytes.
const Size = 32

// Key is a 32-byte identity or topic.
type Key [Size]byte

// FromBytes copies b into a Key. Returns an error unless len(b) == Size.
func FromBytes(b []byte) (Key, error) {
	var key Key
	if len(b) != Size {
		return key, fmt.Errorf("key must be %d bytes, got %d", Size, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// Parse decodes a hex-encoded key.
func Parse(s string) (Key, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("decoding key %q: %w", s, err)
	}
	return FromBytes(raw)
}

// Fill returns a Key with every byte set to b.
func Fill(b byte) Key {
	var key Key
	for i := range key {
		key[i] = b
	}
	return key
}

// String returns the lowercase hex encoding of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first eight hex characters, for log lines.
func (k Key) Short() string {
	return hex.EncodeToString(k[:4])
}

// Bytes returns a copy of the key as a slice.
func (k Key) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, k[:])
	return out
}

// IsZero reports whether every byte of the key is zero.
func (k Key) IsZero() bool {
	return k == Key{}
}

// Compare orders keys bytewise, like bytes.Compare.
func Compare(a, b Key) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText implements encoding.TextMarshaler as lowercase hex.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler from hex.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
