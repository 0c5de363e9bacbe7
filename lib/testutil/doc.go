// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireClosed], and [Eventually] encapsulate the
// timeout safety valve pattern so individual tests do not need direct
// time.After calls. They are the only place in the test suite where
// real wall-clock timeouts are used; protocol timers in tests run on
// clock.Fake.
//
// [Logger] returns a slog.Logger that writes through t.Log, so swarm
// and relay logs appear only for failing tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
