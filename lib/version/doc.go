// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the rtcswarm binaries.
//
// [Commit], [Dirty] and [BuildTime] are injected with -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/rtcswarm/lib/version.Commit=$(git rev-parse --short HEAD)"
//
// Development builds and tests see the defaults. [String] is what
// --version prints.
package version
