// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the startup sequence shared by the swarm-node
// and swarm-relay binaries.
//
// A binary registers [CommonFlags] on its pflag set, parses, and calls
// [Bootstrap]. Bootstrap loads and validates the YAML configuration,
// builds the slog logger, resolves the node identity and turns the
// swarm section into [swarm.Options] backed by a WebRTC session
// factory. The binary then creates its swarm (or relay) from the
// result and calls [Apply] to join the configured topics and peers.
package service
