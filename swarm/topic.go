// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/rtcswarm/lib/keyed"
)

// topicDomainKey keys the BLAKE3 hash that turns a topic name into a
// topic identifier. The bytes are the ASCII domain name, zero-padded.
var topicDomainKey = [32]byte{
	'r', 't', 'c', 's', 'w', 'a', 'r', 'm', '.', 't', 'o', 'p', 'i', 'c', 0, 0,
}

// TopicFromString returns the topic named by s. A 64-character hex
// string is taken as the identifier itself; anything else is hashed.
func TopicFromString(s string) keyed.Key {
	if len(s) == 2*len(keyed.Key{}) {
		if raw, err := hex.DecodeString(s); err == nil {
			topic, _ := keyed.FromBytes(raw)
			return topic
		}
	}
	hasher, err := blake3.NewKeyed(topicDomainKey[:])
	if err != nil {
		panic("swarm: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(s))
	var topic keyed.Key
	copy(topic[:], hasher.Sum(nil))
	return topic
}
