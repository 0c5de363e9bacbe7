// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for swarm nodes
// and bootstrap relays.
//
// Configuration is loaded from a single file specified by either the
// RTCSWARM_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no file discovery and no environment
// override of individual values.
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. Production
// defaults log at info level in JSON.
//
// ${HOME}, ${RTCSWARM_STATE}, and ${VAR:-default} patterns are expanded
// in the identity state directory after loading.
//
// Key material is kept as hex strings here and parsed by the commands.
// This package depends on no other module packages.
package config
