// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/rtcswarm/lib/identity"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
)

// authNonceSize is the size of the random challenge nonce in bytes.
const authNonceSize = 32

// authSignatureSize is the size of an Ed25519 signature in bytes.
const authSignatureSize = 64

// AuthTimeout bounds the whole handshake.
const AuthTimeout = 10 * time.Second

// ErrAuthentication is returned when the remote peer fails to prove it
// holds the identity it claimed.
var ErrAuthentication = errors.New("transport: peer authentication failed")

// Signer signs with the local identity's Ed25519 key. identity.KeyPair
// satisfies it.
type Signer interface {
	Sign(message []byte) []byte
}

// Authenticate runs mutual authentication on a freshly connected stream.
// Both peers run it simultaneously. local is this side's identity and
// remote the identity the caller expects on the other end. The protocol:
//
//  1. Send a 32-byte random nonce
//  2. Read the peer's 32-byte nonce
//  3. Sign (peerNonce || remote) and send the 64-byte signature
//  4. Read the peer's signature
//  5. Verify it against (ownNonce || local) with remote as the key
//
// Binding the challenger's identity into the signed message prevents a
// valid response for peer A from being replayed to authenticate against
// peer B.
//
// Writes run on a background goroutine so that synchronous streams
// (net.Pipe) do not deadlock with both sides blocked in Write.
//
// The handshake sets a deadline on conn and clears it on return. The
// caller closes conn on error.
func Authenticate(conn net.Conn, signer Signer, local, remote keyed.Key) error {
	if err := conn.SetDeadline(time.Now().Add(AuthTimeout)); err != nil {
		return fmt.Errorf("setting auth deadline: %w", err)
	}
	if err := runPeerAuth(conn, signer, local, remote); err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clearing auth deadline: %w", err)
	}
	return nil
}

func runPeerAuth(channel io.ReadWriter, signer Signer, local, remote keyed.Key) error {
	nonce := make([]byte, authNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating auth nonce: %w", err)
	}

	writeErrors := make(chan error, 1)
	signatureToSend := make(chan []byte, 1)

	go func() {
		if _, err := channel.Write(nonce); err != nil {
			writeErrors <- fmt.Errorf("sending auth nonce: %w", err)
			return
		}
		signature, ok := <-signatureToSend
		if !ok {
			writeErrors <- nil
			return
		}
		if _, err := channel.Write(signature); err != nil {
			writeErrors <- fmt.Errorf("sending auth signature: %w", err)
			return
		}
		writeErrors <- nil
	}()

	peerNonce := make([]byte, authNonceSize)
	if _, err := io.ReadFull(channel, peerNonce); err != nil {
		close(signatureToSend)
		return fmt.Errorf("reading peer nonce: %w", err)
	}

	signedMessage := make([]byte, 0, authNonceSize+keyed.Size)
	signedMessage = append(signedMessage, peerNonce...)
	signedMessage = append(signedMessage, remote[:]...)
	signatureToSend <- signer.Sign(signedMessage)

	peerSignature := make([]byte, authSignatureSize)
	if _, err := io.ReadFull(channel, peerSignature); err != nil {
		return fmt.Errorf("reading peer signature: %w", err)
	}

	if err := <-writeErrors; err != nil {
		return err
	}

	verifyMessage := make([]byte, 0, authNonceSize+keyed.Size)
	verifyMessage = append(verifyMessage, nonce...)
	verifyMessage = append(verifyMessage, local[:]...)
	if !identity.Verify(verifyMessage, peerSignature, remote[:]) {
		return fmt.Errorf("%w: %s", ErrAuthentication, remote.Short())
	}
	return nil
}
