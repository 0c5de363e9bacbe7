// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"context"
	"slices"

	"github.com/bureau-foundation/rtcswarm/lib/clock"
)

// flushWaiter counts connections opened since a flush began.
type flushWaiter struct {
	connections int
	timer       *clock.Timer
	done        chan bool
}

// Flush reports whether the swarm has made a reasonable discovery
// effort. With topics joined it announces and waits for flushTarget
// new connections or FlushTimeout, returning true if any connection
// opened. With no topics and no connections it bootstraps instead.
// Otherwise it returns true immediately.
func (s *Swarm) Flush(ctx context.Context) (bool, error) {
	var (
		waiter *flushWaiter
		run    *bootstrapRun
	)
	err := s.run(func() error {
		switch {
		case s.topics.Len() > 0:
			s._announce()
			waiter = &flushWaiter{done: make(chan bool, 1)}
			waiter.timer = s.clock.AfterFunc(s.options.FlushTimeout, func() {
				s.Act(nil, func() { s._resolveFlush(waiter) })
			})
			s.flushes = append(s.flushes, waiter)
		case s.connections.Len() == 0:
			if s.options.relay || len(s.options.Bootstrap) == 0 {
				return ErrNoBootstrap
			}
			run = s._startBootstrap()
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	switch {
	case waiter != nil:
		select {
		case ok := <-waiter.done:
			return ok, nil
		case <-ctx.Done():
			s.Act(nil, func() { s._dropFlush(waiter) })
			return false, ctx.Err()
		}
	case run != nil:
		select {
		case <-run.done:
			return run.err == nil, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	default:
		return true, nil
	}
}

func (s *Swarm) _notifyFlushes() {
	for _, waiter := range slices.Clone(s.flushes) {
		waiter.connections++
		if waiter.connections >= flushTarget {
			s._resolveFlush(waiter)
		}
	}
}

func (s *Swarm) _resolveFlush(waiter *flushWaiter) {
	if s._dropFlush(waiter) {
		waiter.done <- waiter.connections > 0
	}
}

// _dropFlush removes waiter. Returns false if it was already resolved.
func (s *Swarm) _dropFlush(waiter *flushWaiter) bool {
	index := slices.Index(s.flushes, waiter)
	if index < 0 {
		return false
	}
	s.flushes = slices.Delete(s.flushes, index, index+1)
	waiter.timer.Stop()
	return true
}
