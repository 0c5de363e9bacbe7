// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/rtcswarm/lib/clock"
	"github.com/bureau-foundation/rtcswarm/lib/identity"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/transport"
)

// Defaults for zero-valued Options fields.
const (
	DefaultMaxPeers          = 64
	DefaultMaxParallel       = 5
	DefaultMaxAttempts       = 5
	DefaultAnnounceInterval  = 15 * time.Minute
	DefaultConnectionTimeout = 30 * time.Second
	DefaultRetryTimeout      = 5 * time.Minute
	DefaultJitter            = 2 * time.Minute
	DefaultFlushTimeout      = 30 * time.Second
	DefaultParallelDelay     = time.Second
)

// minConnections is the connectivity floor below which a node without a
// relay connection bootstraps again.
const minConnections = 3

// flushTarget is how many new connections satisfy a flush early.
const flushTarget = 3

// BootstrapNode is a relay the swarm may contact when isolated.
type BootstrapNode struct {
	PublicKey keyed.Key
	URL       string
}

// Firewall vetoes connections. Returning true rejects the identity.
type Firewall func(remote keyed.Key) bool

// Options configures a Swarm.
type Options struct {
	// KeyPair is the swarm identity. When zero, Seed is used, and when
	// that is empty a fresh identity is generated.
	KeyPair identity.KeyPair
	Seed    []byte

	// Sessions creates transport sessions. Required.
	Sessions transport.SessionFactory

	// MaxPeers caps open connections of every type. MaxRTCPeers caps
	// WebRTC connections and defaults to MaxPeers/2.
	MaxPeers    int
	MaxRTCPeers int

	// MaxParallel caps in-progress attempts. MaxAttempts is the retry
	// budget per peer.
	MaxParallel int
	MaxAttempts int

	AnnounceInterval  time.Duration
	ConnectionTimeout time.Duration
	RetryTimeout      time.Duration
	// Jitter is the upper bound of the random delay added to retries
	// and announcements. Negative disables it.
	Jitter        time.Duration
	FlushTimeout  time.Duration
	ParallelDelay time.Duration

	// PeerIdleTimeout is how long an unreferenced peer record survives.
	PeerIdleTimeout time.Duration

	// Firewall, when set, is consulted before every dial and accept.
	Firewall Firewall

	// Bootstrap lists relays contacted on startup and when isolated.
	Bootstrap []BootstrapNode

	// HTTPClient performs bootstrap exchanges. Nil uses a client with
	// ConnectionTimeout as its timeout.
	HTTPClient *http.Client

	// Clock schedules every timer. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives lifecycle logs. Nil discards.
	Logger *slog.Logger

	// relay marks the swarm as a bootstrap relay: it never dials and
	// advertises every capability.
	relay bool
}

// withDefaults returns a copy with zero fields filled in.
func (o Options) withDefaults() (Options, error) {
	if o.Sessions == nil {
		return o, fmt.Errorf("swarm: Options.Sessions is required")
	}
	if o.MaxPeers <= 0 {
		o.MaxPeers = DefaultMaxPeers
	}
	if o.MaxRTCPeers <= 0 {
		o.MaxRTCPeers = o.MaxPeers / 2
	}
	if o.MaxParallel <= 0 {
		o.MaxParallel = DefaultMaxParallel
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.AnnounceInterval <= 0 {
		o.AnnounceInterval = DefaultAnnounceInterval
	}
	if o.ConnectionTimeout <= 0 {
		o.ConnectionTimeout = DefaultConnectionTimeout
	}
	if o.RetryTimeout <= 0 {
		o.RetryTimeout = DefaultRetryTimeout
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	} else if o.Jitter == 0 {
		o.Jitter = DefaultJitter
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}
	if o.ParallelDelay <= 0 {
		o.ParallelDelay = DefaultParallelDelay
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.ConnectionTimeout}
	}

	if !o.KeyPair.Valid() {
		var (
			keyPair identity.KeyPair
			err     error
		)
		if len(o.Seed) > 0 {
			keyPair, err = identity.FromSeed(o.Seed)
		} else {
			keyPair, err = identity.Generate()
		}
		if err != nil {
			return o, fmt.Errorf("swarm: %w", err)
		}
		o.KeyPair = keyPair
	}
	return o, nil
}
