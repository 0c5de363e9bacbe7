// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity holds a swarm node's Ed25519 identity and the
// primitives built on it: detached signatures, a pairwise shared
// secret, and the encrypt-then-sign envelope used for signaling
// payloads relayed through untrusted peers.
//
// The shared secret between two identities converts both Ed25519 keys
// to their Curve25519 equivalents, performs X25519, and hashes the
// result together with both curve public keys (sorted bytewise) with
// BLAKE2b-256. Sorting makes the secret symmetric: A computing with B's
// public key yields the same bytes as B computing with A's.
//
// An envelope is the XSalsa20 keystream XOR of the plaintext under the
// shared secret and a random 24-byte nonce, plus an Ed25519 signature
// over the plaintext by the sender. The stream cipher alone provides
// no integrity; the signature check after decryption is what rejects
// tampered or misaddressed envelopes, reported as
// [ErrAuthenticationFailed].
package identity
