// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/rtcswarm/lib/keyed"
)

const (
	privateKeyFile = "swarm-identity"
	publicKeyFile  = "swarm-identity.pub"
)

// passphraseDomainKey keys the BLAKE3 hash that turns a passphrase into
// an Ed25519 seed. The bytes are the ASCII domain name, zero-padded.
var passphraseDomainKey = [32]byte{
	'r', 't', 'c', 's', 'w', 'a', 'r', 'm', '.', 'i', 'd', 'e', 'n', 't', 'i', 't',
	'y', '.', 's', 'e', 'e', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ErrInvalidKey is returned when key material has the wrong length or
// does not decode to a valid curve point.
var ErrInvalidKey = errors.New("identity: invalid key")

// KeyPair is an Ed25519 identity. PublicKey is the node's swarm
// identity; SecretKey is the 64-byte seed||public form.
type KeyPair struct {
	PublicKey ed25519.PublicKey
	SecretKey ed25519.PrivateKey
}

// Generate creates a random keypair.
func Generate() (KeyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return KeyPair{PublicKey: public, SecretKey: private}, nil
}

// FromSeed deterministically derives a keypair from a 32-byte seed.
func FromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, fmt.Errorf("%w: seed has %d bytes, want %d", ErrInvalidKey, len(seed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(seed)
	return KeyPair{PublicKey: private.Public().(ed25519.PublicKey), SecretKey: private}, nil
}

// FromPassphrase derives a keypair from a human-memorable passphrase.
// The same passphrase always yields the same identity.
func FromPassphrase(passphrase string) (KeyPair, error) {
	if passphrase == "" {
		return KeyPair{}, fmt.Errorf("%w: empty passphrase", ErrInvalidKey)
	}
	hasher, err := blake3.NewKeyed(passphraseDomainKey[:])
	if err != nil {
		panic("identity: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(passphrase))
	return FromSeed(hasher.Sum(nil))
}

// ID returns the public key as a keyed.Key.
func (kp KeyPair) ID() keyed.Key {
	var key keyed.Key
	copy(key[:], kp.PublicKey)
	return key
}

// Valid reports whether the keypair has correctly sized halves that
// belong together.
func (kp KeyPair) Valid() bool {
	if len(kp.PublicKey) != ed25519.PublicKeySize || len(kp.SecretKey) != ed25519.PrivateKeySize {
		return false
	}
	return kp.PublicKey.Equal(kp.SecretKey.Public())
}

// Save writes the keypair to stateDir. The private key file has 0600
// permissions; the public key file has 0644.
func Save(stateDir string, kp KeyPair) error {
	privatePath := filepath.Join(stateDir, privateKeyFile)
	if err := os.WriteFile(privatePath, kp.SecretKey, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	publicPath := filepath.Join(stateDir, publicKeyFile)
	if err := os.WriteFile(publicPath, kp.PublicKey, 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	return nil
}

// Load reads a keypair from stateDir. Returns an error if either file
// is missing, has an unexpected size, or the halves don't match.
func Load(stateDir string) (KeyPair, error) {
	privatePath := filepath.Join(stateDir, privateKeyFile)
	privateBytes, err := os.ReadFile(privatePath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("reading private key: %w", err)
	}
	if len(privateBytes) != ed25519.PrivateKeySize {
		return KeyPair{}, fmt.Errorf("private key has %d bytes, want %d", len(privateBytes), ed25519.PrivateKeySize)
	}

	publicPath := filepath.Join(stateDir, publicKeyFile)
	publicBytes, err := os.ReadFile(publicPath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("reading public key: %w", err)
	}
	if len(publicBytes) != ed25519.PublicKeySize {
		return KeyPair{}, fmt.Errorf("public key has %d bytes, want %d", len(publicBytes), ed25519.PublicKeySize)
	}

	kp := KeyPair{PublicKey: publicBytes, SecretKey: privateBytes}
	if !kp.Valid() {
		return KeyPair{}, fmt.Errorf("%w: public key does not match private key in %s", ErrInvalidKey, stateDir)
	}
	return kp, nil
}

// LoadOrGenerate loads an existing keypair from stateDir, or generates
// and saves a new one if the files don't exist. Returns the keypair and
// whether it was newly generated.
func LoadOrGenerate(stateDir string) (KeyPair, bool, error) {
	kp, err := Load(stateDir)
	if err == nil {
		return kp, false, nil
	}

	// A present-but-unreadable key is corruption, not first boot.
	privatePath := filepath.Join(stateDir, privateKeyFile)
	if _, statErr := os.Stat(privatePath); statErr == nil {
		return KeyPair{}, false, err
	}

	kp, err = Generate()
	if err != nil {
		return KeyPair{}, false, err
	}
	if err := Save(stateDir, kp); err != nil {
		return KeyPair{}, false, err
	}
	return kp, true, nil
}
