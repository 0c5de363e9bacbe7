// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/rtcswarm/lib/config"
	"github.com/bureau-foundation/rtcswarm/lib/identity"
	"github.com/bureau-foundation/rtcswarm/lib/keyed"
	"github.com/bureau-foundation/rtcswarm/swarm"
	"github.com/bureau-foundation/rtcswarm/transport"
)

// BootstrapResult is everything a binary needs to start its swarm.
type BootstrapResult struct {
	Config  *config.Config
	Logger  *slog.Logger
	KeyPair identity.KeyPair

	// Options is ready for swarm.New or swarm.NewRelay. Its Sessions
	// field is Factory.
	Options swarm.Options
	Factory *transport.RTCFactory
}

// Bootstrap performs the shared startup sequence: load and validate the
// config, apply flag overrides, build the logger, resolve the identity
// and assemble swarm options over a WebRTC session factory.
func Bootstrap(flags CommonFlags) (*BootstrapResult, error) {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	keyPair, generated, err := LoadIdentity(cfg)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Info("generated new identity",
			"public_key", keyPair.ID().String(),
			"state_dir", cfg.Identity.StateDir,
		)
	}

	options, err := SwarmOptions(cfg, keyPair, logger)
	if err != nil {
		return nil, err
	}
	factory := transport.NewRTCFactory(ICEConfig(cfg), logger)
	options.Sessions = factory

	return &BootstrapResult{
		Config:  cfg,
		Logger:  logger,
		KeyPair: keyPair,
		Options: options,
		Factory: factory,
	}, nil
}

// LoadConfig reads the file named by --config, or by RTCSWARM_CONFIG
// when the flag is empty, applies flag overrides and validates.
func LoadConfig(flags CommonFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.ConfigPath != "" {
		cfg, err = config.LoadFile(flags.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadIdentity resolves the node keypair from the seed, the passphrase
// or the state directory, in that order. generated reports that a new
// identity was written to the state directory.
func LoadIdentity(cfg *config.Config) (keyPair identity.KeyPair, generated bool, err error) {
	switch {
	case cfg.Identity.Seed != "":
		seed, err := hex.DecodeString(cfg.Identity.Seed)
		if err != nil {
			return identity.KeyPair{}, false, fmt.Errorf("identity.seed: %w", err)
		}
		keyPair, err = identity.FromSeed(seed)
		return keyPair, false, err
	case cfg.Identity.Passphrase != "":
		keyPair, err = identity.FromPassphrase(cfg.Identity.Passphrase)
		return keyPair, false, err
	}
	if err := cfg.EnsureStateDir(); err != nil {
		return identity.KeyPair{}, false, err
	}
	return identity.LoadOrGenerate(cfg.Identity.StateDir)
}

// SwarmOptions maps the swarm and bootstrap sections onto swarm.Options.
// Sessions is left for the caller.
func SwarmOptions(cfg *config.Config, keyPair identity.KeyPair, logger *slog.Logger) (swarm.Options, error) {
	s := cfg.Swarm
	options := swarm.Options{
		KeyPair:           keyPair,
		MaxPeers:          s.MaxPeers,
		MaxRTCPeers:       s.MaxRTCPeers,
		MaxParallel:       s.MaxParallel,
		MaxAttempts:       s.MaxAttempts,
		AnnounceInterval:  s.AnnounceInterval,
		ConnectionTimeout: s.ConnectionTimeout,
		RetryTimeout:      s.RetryTimeout,
		Jitter:            s.Jitter,
		FlushTimeout:      s.FlushTimeout,
		PeerIdleTimeout:   s.PeerIdleTimeout,
		Logger:            logger,
	}
	if s.Jitter == 0 {
		// Zero in the file means no jitter; zero in Options means the
		// default.
		options.Jitter = -1
	}
	for i, node := range cfg.Bootstrap {
		publicKey, err := keyed.Parse(node.PublicKey)
		if err != nil {
			return swarm.Options{}, fmt.Errorf("bootstrap[%d].public_key: %w", i, err)
		}
		options.Bootstrap = append(options.Bootstrap, swarm.BootstrapNode{PublicKey: publicKey, URL: node.URL})
	}
	return options, nil
}

// ICEConfig converts the ice section for the WebRTC factory.
func ICEConfig(cfg *config.Config) transport.ICEConfig {
	servers := make([]transport.ICEServer, 0, len(cfg.ICE.Servers))
	for _, server := range cfg.ICE.Servers {
		servers = append(servers, transport.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return transport.NewICEConfig(servers, cfg.ICE.IncludeLoopback)
}

// ReloadICE re-reads the config and hands its ice section to factory.
// Sessions already negotiating keep the servers they started with.
func ReloadICE(flags CommonFlags, factory *transport.RTCFactory) error {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return err
	}
	factory.UpdateICEConfig(ICEConfig(cfg))
	return nil
}

// Apply bans, joins explicit peers and joins topics as listed in the
// swarm section. The returned discovery sessions stay open for the life
// of the swarm.
func Apply(s *swarm.Swarm, cfg *config.Config) ([]*swarm.DiscoverySession, error) {
	for _, hexKey := range cfg.Swarm.Banned {
		remote, err := keyed.Parse(hexKey)
		if err != nil {
			return nil, fmt.Errorf("swarm.banned: %w", err)
		}
		if err := s.Ban(remote); err != nil {
			return nil, err
		}
	}
	for _, hexKey := range cfg.Swarm.Peers {
		remote, err := keyed.Parse(hexKey)
		if err != nil {
			return nil, fmt.Errorf("swarm.peers: %w", err)
		}
		if err := s.JoinPeer(remote); err != nil {
			return nil, fmt.Errorf("joining peer %s: %w", remote.Short(), err)
		}
	}
	sessions := make([]*swarm.DiscoverySession, 0, len(cfg.Swarm.Topics))
	for _, name := range cfg.Swarm.Topics {
		session, err := s.Join(swarm.TopicFromString(name))
		if err != nil {
			return nil, fmt.Errorf("joining topic %q: %w", name, err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
