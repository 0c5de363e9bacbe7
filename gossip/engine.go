// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bureau-foundation/rtcswarm/lib/identity"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/lib/telemetry"
	"github.com/bureau-foundation/rtcswarm/peer"
	"github.com/bureau-foundation/rtcswarm/wire"
)

// DefaultCacheSize is the number of (origin, messageID) pairs
// remembered for duplicate suppression.
const DefaultCacheSize = 255

// Reasons a received message was not processed. The swarm ignores them;
// they exist for logging and tests.
var (
	ErrOwnMessage    = errors.New("gossip: message originated locally")
	ErrDuplicate     = errors.New("gossip: duplicate message")
	ErrBadSignature  = errors.New("gossip: announcement signature invalid")
	ErrMalformed     = errors.New("gossip: malformed payload")
	ErrUndecryptable = errors.New("gossip: signal addressed to us failed to decrypt")
)

// Link is one open connection as the engine sees it.
type Link interface {
	RemotePublicKey() keyed.Key
	SendAnnounce(*wire.TopicMessage) error
	SendSignal(*wire.SignalMessage) error
}

// Host is the swarm side of the engine: local state the engine reads
// and the callbacks it drives.
type Host interface {
	// Capabilities returns the local capability bitmask.
	Capabilities() wire.Capabilities

	// Topics returns the locally joined topics.
	Topics() []keyed.Key

	// Links returns the currently open connections.
	Links() []Link

	// OnPeerAnnounce is called after an announcement has been verified
	// and recorded in the registry.
	OnPeerAnnounce(info *peer.Info, created, changed bool)

	// OnSignal is called with a decrypted signal addressed to us.
	OnSignal(origin keyed.Key, payload *wire.SignalPayload)
}

// Options configures an Engine.
type Options struct {
	// CacheSize bounds the duplicate cache. Zero uses DefaultCacheSize.
	CacheSize int

	// Logger receives debug logs for dropped messages. Nil discards.
	Logger *slog.Logger
}

// Engine is the gossip protocol state for one swarm.
type Engine struct {
	keyPair   identity.KeyPair
	self      keyed.Key
	host      Host
	registry  *peer.Registry
	cache     *lru.Cache[[64]byte, struct{}]
	messageID wire.MessageID
	logger    *slog.Logger
}

// NewEngine creates an engine that signs as keyPair, records peers in
// registry, and reports to host.
func NewEngine(keyPair identity.KeyPair, host Host, registry *peer.Registry, options Options) (*Engine, error) {
	if !keyPair.Valid() {
		return nil, fmt.Errorf("gossip: %w", identity.ErrInvalidKey)
	}
	size := options.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[[64]byte, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("gossip: creating duplicate cache: %w", err)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		keyPair:   keyPair,
		self:      keyPair.ID(),
		host:      host,
		registry:  registry,
		cache:     cache,
		messageID: wire.NewMessageID(),
		logger:    logger,
	}, nil
}

// seen records the header in the duplicate cache and reports whether
// it was already present.
func (e *Engine) seen(header *wire.Header) bool {
	key := header.CacheKey()
	if _, ok := e.cache.Get(key); ok {
		return true
	}
	e.cache.Add(key, struct{}{})
	return false
}

func (e *Engine) nextHeader() wire.Header {
	e.messageID = e.messageID.Next()
	return wire.Header{Origin: e.self, MessageID: e.messageID, TTL: wire.MaxTTL}
}

func drop(kind, outcome string, err error) error {
	telemetry.GossipMessages.WithLabelValues(kind, outcome).Inc()
	return err
}

// OnAnnounce handles an announcement received from the connection to
// source. Returns nil if the announcement was consumed, or one of the
// package's sentinel errors explaining why it was dropped.
func (e *Engine) OnAnnounce(message *wire.TopicMessage, source keyed.Key) error {
	const kind = telemetry.KindAnnounce
	if message.Origin == e.self {
		return drop(kind, telemetry.OutcomeSelf, ErrOwnMessage)
	}
	if e.seen(&message.Header) {
		return drop(kind, telemetry.OutcomeDuplicate, ErrDuplicate)
	}
	if !identity.Verify(message.Payload, message.Signature[:], message.Origin[:]) {
		e.logger.Debug("dropping announcement with bad signature",
			"origin", message.Origin.String(), "source", source.String())
		return drop(kind, telemetry.OutcomeInvalid, ErrBadSignature)
	}
	var payload wire.TopicPayload
	if err := payload.UnmarshalBinary(message.Payload); err != nil {
		e.logger.Debug("dropping malformed announcement",
			"origin", message.Origin.String(), "error", err)
		return drop(kind, telemetry.OutcomeInvalid, fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	info, created, changed := e.registry.Upsert(message.Origin, payload.Capabilities, payload.Topics)
	e.host.OnPeerAnnounce(info, created, changed)

	if message.TTL == 0 {
		return drop(kind, telemetry.OutcomeExpired, nil)
	}
	telemetry.GossipMessages.WithLabelValues(kind, telemetry.OutcomeAccepted).Inc()
	e.forwardAnnounce(message.Forwarded(), source)
	return nil
}

// Announce signs the local capabilities and topics and sends them to
// every open connection with a full TTL.
func (e *Engine) Announce() error {
	payload := wire.TopicPayload{
		Capabilities: e.host.Capabilities(),
		Topics:       e.host.Topics(),
	}
	encoded, err := payload.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding announcement: %w", err)
	}
	message := &wire.TopicMessage{
		Header:  e.nextHeader(),
		Payload: encoded,
	}
	copy(message.Signature[:], e.keyPair.Sign(encoded))

	telemetry.Announces.Inc()
	for _, link := range e.host.Links() {
		if err := link.SendAnnounce(message); err != nil {
			e.logger.Debug("announce send failed",
				"peer", link.RemotePublicKey().String(), "error", err)
		}
	}
	return nil
}

// OnSignal handles a signal received from the connection to source. A
// signal addressed to us is decrypted and handed to the host; if
// decryption fails the message is dropped without forwarding.
func (e *Engine) OnSignal(message *wire.SignalMessage, source keyed.Key) error {
	const kind = telemetry.KindSignal
	if message.Origin == e.self {
		return drop(kind, telemetry.OutcomeSelf, ErrOwnMessage)
	}
	if e.seen(&message.Header) {
		return drop(kind, telemetry.OutcomeDuplicate, ErrDuplicate)
	}

	if message.Target == e.self {
		payload, err := DecryptSignal(e.keyPair, message.Origin, message.Payload)
		if err != nil {
			e.logger.Debug("dropping undecryptable signal",
				"origin", message.Origin.String(), "error", err)
			return drop(kind, telemetry.OutcomeInvalid, fmt.Errorf("%w: %v", ErrUndecryptable, err))
		}
		e.host.OnSignal(message.Origin, payload)
	}

	if message.TTL == 0 {
		return drop(kind, telemetry.OutcomeExpired, nil)
	}
	telemetry.GossipMessages.WithLabelValues(kind, telemetry.OutcomeAccepted).Inc()
	e.forwardSignal(message.Forwarded(), source)
	return nil
}

// Signal encrypts payload for target and floods it to every open
// connection.
func (e *Engine) Signal(target keyed.Key, payload *wire.SignalPayload) error {
	sealed, err := EncryptSignal(e.keyPair, target, payload)
	if err != nil {
		return err
	}
	message := &wire.SignalMessage{
		Header:  e.nextHeader(),
		Target:  target,
		Payload: sealed,
	}
	for _, link := range e.host.Links() {
		if err := link.SendSignal(message); err != nil {
			e.logger.Debug("signal send failed",
				"peer", link.RemotePublicKey().String(), "error", err)
		}
	}
	return nil
}

func (e *Engine) forwardAnnounce(message *wire.TopicMessage, source keyed.Key) {
	for _, link := range e.host.Links() {
		remote := link.RemotePublicKey()
		if remote == message.Origin || remote == source {
			continue
		}
		telemetry.GossipForwards.WithLabelValues(telemetry.KindAnnounce).Inc()
		if err := link.SendAnnounce(message); err != nil {
			e.logger.Debug("announce forward failed", "peer", remote.String(), "error", err)
		}
	}
}

func (e *Engine) forwardSignal(message *wire.SignalMessage, source keyed.Key) {
	for _, link := range e.host.Links() {
		remote := link.RemotePublicKey()
		if remote == message.Origin || remote == source {
			continue
		}
		telemetry.GossipForwards.WithLabelValues(telemetry.KindSignal).Inc()
		if err := link.SendSignal(message); err != nil {
			e.logger.Debug("signal forward failed", "peer", remote.String(), "error", err)
		}
	}
}
