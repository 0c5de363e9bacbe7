// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// Decoder limits. A session description with a full candidate list is a
// few kilobytes; these leave generous headroom without letting a peer
// make us allocate unbounded memory.
const (
	maxNestedLevels  = 16
	maxArrayElements = 1024
	maxMapPairs      = 256
	maxMessage       = 1 << 20
)

// ErrTooLarge is returned by Unmarshal for input over the size bound.
var ErrTooLarge = errors.New("codec: CBOR input exceeds 1 MiB")

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// keyed.Key and friends encode as text via MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxNestedLevels:  maxNestedLevels,
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxMapPairs,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		TextUnmarshaler:  cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Trailing bytes are an error, as
// is input larger than 1 MiB.
func Unmarshal(data []byte, v any) error {
	if len(data) > maxMessage {
		return ErrTooLarge
	}
	return decMode.Unmarshal(data, v)
}
