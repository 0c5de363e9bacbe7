// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"
)

// ICEConfig holds ICE server configuration for WebRTC PeerConnections.
type ICEConfig struct {
	// Servers is the list of ICE servers (STUN + TURN) to use during
	// candidate gathering.
	Servers []webrtc.ICEServer

	// IncludeLoopback gathers loopback candidates, needed when both
	// peers run on the same host with no other interface.
	IncludeLoopback bool
}

// ICEServer is one STUN or TURN server in plain form.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// NewICEConfig converts plain server entries into an ICEConfig. Entries
// without URLs are skipped. With no servers the config gathers host
// candidates only, which is enough for same-LAN peers.
func NewICEConfig(servers []ICEServer, includeLoopback bool) ICEConfig {
	config := ICEConfig{IncludeLoopback: includeLoopback}
	for _, server := range servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" || server.Credential != "" {
			entry.Username = server.Username
			entry.Credential = server.Credential
		}
		config.Servers = append(config.Servers, entry)
	}
	return config
}
