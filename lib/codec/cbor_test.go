// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/rtcswarm/lib/keyed"
)

// sessionDescription mirrors the shape of a WebRTC signal, which uses
// json tags because it also crosses the relay's JSON boundary.
type sessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type handshake struct {
	Nonce []byte    `cbor:"nonce"`
	Key   keyed.Key `cbor:"key"`
}

func TestMarshalUnmarshalJSONTagged(t *testing.T) {
	original := sessionDescription{Type: "offer", SDP: "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\n"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sessionDescription
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("decoded %+v, want %+v", decoded, original)
	}

	// json tag names are used as CBOR map keys.
	var generic map[string]string
	if err := Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	if generic["type"] != "offer" {
		t.Errorf(`generic["type"] = %q, want "offer"`, generic["type"])
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, _ := Marshal(value)
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestKeyRoundtrip(t *testing.T) {
	original := handshake{Nonce: []byte{1, 2, 3}, Key: keyed.Fill(0xcd)}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded handshake
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Key != original.Key || !bytes.Equal(decoded.Nonce, original.Nonce) {
		t.Errorf("decoded %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var decoded sessionDescription
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &decoded); err == nil {
		t.Error("Unmarshal of garbage succeeded")
	}
}

func TestUnmarshalRejectsOversizedInput(t *testing.T) {
	// A byte string header claiming maxMessage bytes, followed by them.
	data := append([]byte{0x5a, 0x00, 0x10, 0x00, 0x00}, make([]byte, maxMessage)...)
	var decoded []byte
	if err := Unmarshal(data, &decoded); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Unmarshal = %v, want ErrTooLarge", err)
	}
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {"type": "a", "type": "b"}
	data := []byte{0xa2, 0x64, 't', 'y', 'p', 'e', 0x61, 'a', 0x64, 't', 'y', 'p', 'e', 0x61, 'b'}
	var decoded sessionDescription
	if err := Unmarshal(data, &decoded); err == nil {
		t.Error("Unmarshal accepted duplicate map keys")
	}
}
