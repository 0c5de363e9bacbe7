// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"slices"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/salsa20"
)

const (
	// NonceSize is the XSalsa20 nonce length carried in each envelope.
	NonceSize = 24

	// SignatureSize is the Ed25519 detached signature length.
	SignatureSize = ed25519.SignatureSize

	// SecretSize is the length of a pairwise shared secret.
	SecretSize = 32
)

// ErrAuthenticationFailed is returned by Decrypt when the recovered
// plaintext does not verify against the claimed sender.
var ErrAuthenticationFailed = errors.New("identity: authentication failed")

// Sign returns a detached Ed25519 signature of data.
func (kp KeyPair) Sign(data []byte) []byte {
	return ed25519.Sign(kp.SecretKey, data)
}

// Verify reports whether signature is a valid signature of data by
// publicKey. Malformed keys or signatures verify as false.
func Verify(data, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, data, signature)
}

// curvePublicKey converts an Ed25519 public key to its birationally
// equivalent Montgomery u-coordinate.
func curvePublicKey(publicKey []byte) ([]byte, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key has %d bytes", ErrInvalidKey, len(publicKey))
	}
	point, err := new(edwards25519.Point).SetBytes(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return point.BytesMontgomery(), nil
}

// curveSecretKey derives the X25519 scalar from an Ed25519 private key:
// the clamped low half of SHA-512(seed).
func curveSecretKey(secretKey ed25519.PrivateKey) ([]byte, error) {
	if len(secretKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: secret key has %d bytes", ErrInvalidKey, len(secretKey))
	}
	digest := sha512.Sum512(secretKey.Seed())
	scalar := digest[:32]
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return scalar, nil
}

// SharedSecret computes the symmetric pairwise secret between kp and
// the identity publicKey.
func (kp KeyPair) SharedSecret(publicKey []byte) ([]byte, error) {
	remote, err := curvePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	local, err := curvePublicKey(kp.PublicKey)
	if err != nil {
		return nil, err
	}
	scalar, err := curveSecretKey(kp.SecretKey)
	if err != nil {
		return nil, err
	}
	product, err := curve25519.X25519(scalar, remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	batch := [][]byte{remote, local}
	slices.SortFunc(batch, bytes.Compare)

	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	hash.Write(batch[0])
	hash.Write(batch[1])
	hash.Write(product)
	return hash.Sum(nil), nil
}

// Encrypt seals data for the identity publicKey. The result is an
// encoded [Envelope].
func (kp KeyPair) Encrypt(data, publicKey []byte) ([]byte, error) {
	secret, err := kp.SharedSecret(publicKey)
	if err != nil {
		return nil, err
	}
	var envelope Envelope
	copy(envelope.Signature[:], kp.Sign(data))
	if _, err := rand.Read(envelope.Nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	envelope.Data = xorStream(data, &envelope.Nonce, secret)
	return envelope.MarshalBinary()
}

// Decrypt opens an envelope that publicKey sealed for kp. Returns
// ErrAuthenticationFailed if the plaintext's signature does not verify
// against publicKey.
func (kp KeyPair) Decrypt(message, publicKey []byte) ([]byte, error) {
	secret, err := kp.SharedSecret(publicKey)
	if err != nil {
		return nil, err
	}
	var envelope Envelope
	if err := envelope.UnmarshalBinary(message); err != nil {
		return nil, err
	}
	plaintext := xorStream(envelope.Data, &envelope.Nonce, secret)
	if !Verify(plaintext, envelope.Signature[:], publicKey) {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func xorStream(in []byte, nonce *[NonceSize]byte, secret []byte) []byte {
	var key [32]byte
	copy(key[:], secret)
	out := make([]byte, len(in))
	salsa20.XORKeyStream(out, in, nonce[:], &key)
	return out
}
