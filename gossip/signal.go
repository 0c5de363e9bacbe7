// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"fmt"

	"github.com/bureau-foundation/rtcswarm/lib/identity"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/wire"
)

// EncryptSignal encodes payload and seals it for target.
func EncryptSignal(keyPair identity.KeyPair, target keyed.Key, payload *wire.SignalPayload) ([]byte, error) {
	encoded, err := payload.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding signal payload: %w", err)
	}
	sealed, err := keyPair.Encrypt(encoded, target[:])
	if err != nil {
		return nil, fmt.Errorf("encrypting signal for %s: %w", target.Short(), err)
	}
	return sealed, nil
}

// DecryptSignal opens a payload that origin sealed for keyPair.
// Returns an error wrapping identity.ErrAuthenticationFailed if origin
// did not produce it.
func DecryptSignal(keyPair identity.KeyPair, origin keyed.Key, sealed []byte) (*wire.SignalPayload, error) {
	plaintext, err := keyPair.Decrypt(sealed, origin[:])
	if err != nil {
		return nil, err
	}
	var payload wire.SignalPayload
	if err := payload.UnmarshalBinary(plaintext); err != nil {
		return nil, fmt.Errorf("decoding signal payload: %w", err)
	}
	return &payload, nil
}
