// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"testing"
)

func TestNewICEConfig_Nil(t *testing.T) {
	config := NewICEConfig(nil, false)
	if len(config.Servers) != 0 {
		t.Errorf("expected no ICE servers for nil input, got %d", len(config.Servers))
	}
	if config.IncludeLoopback {
		t.Error("IncludeLoopback = true, want false")
	}
}

func TestNewICEConfig_EmptyURLs(t *testing.T) {
	config := NewICEConfig([]ICEServer{{Username: "user", Credential: "pass"}}, true)
	if len(config.Servers) != 0 {
		t.Errorf("expected no ICE servers for empty URLs, got %d", len(config.Servers))
	}
	if !config.IncludeLoopback {
		t.Error("IncludeLoopback = false, want true")
	}
}

func TestNewICEConfig_WithCredentials(t *testing.T) {
	config := NewICEConfig([]ICEServer{
		{URLs: []string{"stun:stun.example.org:3478"}},
		{
			URLs:       []string{"turn:turn.example.org:3478?transport=udp", "turn:turn.example.org:3478?transport=tcp"},
			Username:   "1234:user",
			Credential: "secret",
		},
	}, false)
	if len(config.Servers) != 2 {
		t.Fatalf("expected 2 ICE server entries, got %d", len(config.Servers))
	}
	if config.Servers[0].Username != "" || config.Servers[0].Credential != nil {
		t.Errorf("STUN entry carries credentials: %+v", config.Servers[0])
	}
	turn := config.Servers[1]
	if len(turn.URLs) != 2 {
		t.Errorf("expected 2 URLs, got %d", len(turn.URLs))
	}
	if turn.Username != "1234:user" {
		t.Errorf("username = %q, want %q", turn.Username, "1234:user")
	}
	if turn.Credential != "secret" {
		t.Errorf("credential = %v, want %q", turn.Credential, "secret")
	}
}
