// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/Arceliar/phony"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/lib/telemetry"
	"github.com/bureau-foundation/rtcswarm/transport"
	"github.com/bureau-foundation/rtcswarm/wire"
)

// noSlots is the body of every admission refusal.
const noSlots = "No more slots"

var errNoSlots = errors.New(noSlots)

// Relay is a bootstrap relay: a swarm that never dials and instead
// accepts connections negotiated over HTTP by isolated peers. It serves
// the exchange as an http.Handler.
type Relay struct {
	*Swarm
	limiter *rate.Limiter
	handler http.Handler
}

var _ http.Handler = (*Relay)(nil)

// NewRelay creates a relay swarm. limiter, when non-nil, bounds the
// rate of accepted requests; excess requests are refused like a full
// relay.
func NewRelay(options Options, limiter *rate.Limiter) (*Relay, error) {
	options.relay = true
	options.Bootstrap = nil
	s, err := New(options)
	if err != nil {
		return nil, err
	}
	r := &Relay{Swarm: s, limiter: limiter}
	r.handler = telemetry.InstrumentRelay(http.HandlerFunc(r.serve))
	return r, nil
}

// ServeHTTP implements http.Handler.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	remote, offer, err := parseRelayRequest(w, req)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.limiter != nil && !r.limiter.Allow() {
		writeText(w, http.StatusServiceUnavailable, noSlots)
		return
	}

	var a *attempt
	err = r.run(func() error {
		var err error
		a, err = r._acceptRelayed(remote, offer)
		return err
	})
	switch {
	case errors.Is(err, errNoSlots), errors.Is(err, ErrClosed):
		writeText(w, http.StatusServiceUnavailable, noSlots)
		return
	case err != nil:
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	select {
	case <-a.answered:
	case <-a.ended:
		// The answer may have been produced just before the attempt
		// settled.
		select {
		case <-a.answered:
		default:
			err := a.err
			if err == nil {
				err = errors.New("connected without an answer")
			}
			writeText(w, http.StatusInternalServerError, err.Error())
			return
		}
	case <-req.Context().Done():
		r.Act(nil, func() { r._abandon(a, req.Context().Err()) })
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(a.answer)
}

// _acceptRelayed admits remote and applies its offer. A repeated
// request from a peer whose relayed attempt is still in progress joins
// that attempt and receives the same answer; its offer is not applied
// again.
func (s *Swarm) _acceptRelayed(remote keyed.Key, offer transport.Signal) (*attempt, error) {
	if !s._shouldAccept(remote) {
		telemetry.Attempts.WithLabelValues(telemetry.DirectionInbound, "rejected").Inc()
		return nil, errNoSlots
	}
	if a, ok := s.attempts.Get(remote); ok {
		if a.answered != nil {
			return a, nil
		}
		// A gossip negotiation was overtaken by a direct request.
		s._abandon(a, errSuperseded)
	}

	info, created := s.registry.Lookup(remote)
	if created {
		info.Update(wire.CapabilityRTC, nil)
		s._emitPeer(info)
	}
	return s._accept(info, offer, true)
}

// parseRelayRequest validates the request and decodes its body.
func parseRelayRequest(w http.ResponseWriter, req *http.Request) (keyed.Key, transport.Signal, error) {
	if req.Method != http.MethodPost {
		return keyed.Key{}, transport.Signal{}, fmt.Errorf("method %s not allowed", req.Method)
	}
	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return keyed.Key{}, transport.Signal{}, errors.New("Content-Type must be application/json")
	}

	var body relayRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRelayBody))
	if err := decoder.Decode(&body); err != nil {
		return keyed.Key{}, transport.Signal{}, fmt.Errorf("decoding request body: %w", err)
	}
	if body.PublicKey == "" {
		return keyed.Key{}, transport.Signal{}, errors.New("missing publicKey")
	}
	if body.Signal == nil {
		return keyed.Key{}, transport.Signal{}, errors.New("missing signal")
	}
	remote, err := keyed.Parse(body.PublicKey)
	if err != nil {
		return keyed.Key{}, transport.Signal{}, fmt.Errorf("invalid publicKey: %w", err)
	}
	return remote, *body.Signal, nil
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, text)
}

// Load returns the relay's in-progress attempt count and open
// connection count.
func (r *Relay) Load() (attempts, connections int) {
	phony.Block(r.Swarm, func() {
		attempts = r.attempts.Len()
		connections = r.connections.Len()
	})
	return attempts, connections
}
