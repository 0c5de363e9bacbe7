// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/rtcswarm/lib/telemetry"
	"github.com/bureau-foundation/rtcswarm/transport"
	"github.com/bureau-foundation/rtcswarm/wire"
)

// maxRelayBody bounds relay request and response bodies.
const maxRelayBody = 64 * 1024

var errAlreadyConnected = errors.New("swarm: already connected")

// relayRequest is the JSON body of a bootstrap exchange.
type relayRequest struct {
	PublicKey string            `json:"publicKey"`
	Signal    *transport.Signal `json:"signal"`
}

// bootstrapRun is one batch over every configured relay. done closes
// when the batch finishes; err is nil if any relay connected.
type bootstrapRun struct {
	done chan struct{}
	err  error
}

// Bootstrap contacts every configured relay concurrently and waits for
// the batch. Returns nil if at least one relay connection succeeded or
// was already open. A failed batch is retried in the background after
// RetryTimeout plus jitter.
func (s *Swarm) Bootstrap(ctx context.Context) error {
	var run *bootstrapRun
	err := s.run(func() error {
		if s.options.relay || len(s.options.Bootstrap) == 0 {
			return ErrNoBootstrap
		}
		run = s._startBootstrap()
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case <-run.done:
		return run.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// _startBootstrap begins a batch unless one is running, and returns it.
func (s *Swarm) _startBootstrap() *bootstrapRun {
	if s.bootstrapRun != nil {
		return s.bootstrapRun
	}
	s.bootstrapTimer.Stop()
	s.bootstrapTimer = nil

	run := &bootstrapRun{done: make(chan struct{})}
	s.bootstrapRun = run
	nodes := slices.Clone(s.options.Bootstrap)
	s.logger.Info("bootstrapping", "relays", len(nodes))
	go func() {
		err := s.bootstrapBatch(s.ctx, nodes)
		s.Act(nil, func() { s._finishBootstrap(run, err) })
	}()
	return run
}

func (s *Swarm) _finishBootstrap(run *bootstrapRun, err error) {
	run.err = err
	close(run.done)
	if s.bootstrapRun == run {
		s.bootstrapRun = nil
	}
	if err == nil || s.closed {
		return
	}
	delay := s.options.RetryTimeout + s._jitter()
	s.logger.Warn("bootstrap failed", "error", err, "retry_in", delay)
	s.bootstrapTimer = s.clock.AfterFunc(delay, func() {
		s.Act(nil, func() {
			s.bootstrapTimer = nil
			if !s.closed {
				s._startBootstrap()
			}
		})
	})
}

// bootstrapBatch runs one exchange per relay, at most MaxParallel at a
// time.
func (s *Swarm) bootstrapBatch(ctx context.Context, nodes []BootstrapNode) error {
	var (
		group     errgroup.Group
		connected atomic.Int32
	)
	group.SetLimit(s.options.MaxParallel)
	failures := make([]error, len(nodes))
	for index, node := range nodes {
		group.Go(func() error {
			if err := s.dialRelay(ctx, node); err != nil {
				failures[index] = fmt.Errorf("relay %s: %w", node.URL, err)
				return nil
			}
			connected.Add(1)
			return nil
		})
	}
	group.Wait()
	if connected.Load() > 0 {
		return nil
	}
	return errors.Join(failures...)
}

// dialRelay negotiates a connection to node over its HTTP endpoint.
func (s *Swarm) dialRelay(ctx context.Context, node BootstrapNode) error {
	var (
		a    *attempt
		done chan error
	)
	err := s.run(func() error {
		var err error
		a, err = s._beginBootstrap(node)
		if a != nil {
			done = a.done
		}
		return err
	})
	if errors.Is(err, errAlreadyConnected) {
		return nil
	}
	if err != nil {
		return err
	}

	var offer transport.Signal
	select {
	case offer = <-a.sideband:
	case err := <-done:
		return err
	case <-ctx.Done():
		s.Act(nil, func() { s._abandon(a, ctx.Err()) })
		return ctx.Err()
	}

	answer, err := s.exchange(ctx, node, offer)
	if err != nil {
		s.Act(nil, func() { s._onAttemptFailed(a, err) })
		return err
	}
	s.Act(nil, func() {
		if !s._current(a) {
			return
		}
		if err := a.session.Signal(answer); err != nil {
			s._onAttemptFailed(a, err)
		}
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.Act(nil, func() { s._abandon(a, ctx.Err()) })
		return ctx.Err()
	}
}

// _beginBootstrap starts an initiator attempt whose offer is delivered
// over the sideband.
func (s *Swarm) _beginBootstrap(node BootstrapNode) (*attempt, error) {
	key := node.PublicKey
	if s.connections.Has(key) {
		return nil, errAlreadyConnected
	}
	if !s._admit(key) {
		return nil, ErrRejected
	}
	if s.attempts.Has(key) {
		return nil, fmt.Errorf("%w: attempt already in progress", ErrRejected)
	}
	info, created := s.registry.Lookup(key)
	if created {
		info.Update(wire.CapabilitiesFull, nil)
		s._emitPeer(info)
	}
	a := &attempt{
		info:      info,
		initiator: true,
		direction: telemetry.DirectionBootstrap,
		node:      &node,
		sideband:  make(chan transport.Signal, 1),
		done:      make(chan error, 1),
	}
	if err := s._begin(a); err != nil {
		return nil, err
	}
	return a, nil
}

// exchange posts offer to the relay and returns its answer.
func (s *Swarm) exchange(ctx context.Context, node BootstrapNode, offer transport.Signal) (transport.Signal, error) {
	body, err := json.Marshal(relayRequest{PublicKey: s.self.String(), Signal: &offer})
	if err != nil {
		return transport.Signal{}, fmt.Errorf("encoding relay request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, node.URL, bytes.NewReader(body))
	if err != nil {
		return transport.Signal{}, fmt.Errorf("building relay request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.options.HTTPClient.Do(request)
	if err != nil {
		return transport.Signal{}, err
	}
	defer response.Body.Close()

	reader := io.LimitReader(response.Body, maxRelayBody)
	if response.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(reader)
		return transport.Signal{}, fmt.Errorf("relay answered %d: %s", response.StatusCode, strings.TrimSpace(string(text)))
	}
	var answer transport.Signal
	if err := json.NewDecoder(reader).Decode(&answer); err != nil {
		return transport.Signal{}, fmt.Errorf("decoding relay answer: %w", err)
	}
	return answer, nil
}
