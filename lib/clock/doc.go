// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the swarm's
// timers: announce scheduling, connection timeouts, retry backoff,
// parallel-attempt deferral, flush deadlines, and idle peer eviction.
//
// Production code uses Real(). Tests use Fake(), which stands still
// until Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := swarm.New(swarm.Options{Clock: c, ...})
//	c.WaitForTimers(1)          // wait for the swarm to arm a timer
//	c.Advance(30 * time.Second) // fire it deterministically
//
// AfterFunc callbacks on a FakeClock run synchronously inside Advance.
// Callers that hand the callback to an actor (the swarm does) must
// still wait for the actor to drain before asserting.
package clock
