// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// swarm-node runs a single swarm peer. It joins the topics and explicit
// peers listed in its config, contacts the configured bootstrap relays
// when isolated, and logs peers and connections as they appear until it
// receives SIGINT or SIGTERM. SIGHUP re-reads the ICE servers from the
// config file for sessions started afterwards.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rtcswarm/lib/service"
	"github.com/bureau-foundation/rtcswarm/lib/version"
	"github.com/bureau-foundation/rtcswarm/peer"
	"github.com/bureau-foundation/rtcswarm/swarm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var flags service.CommonFlags
	flagSet := pflag.NewFlagSet("swarm-node", pflag.ContinueOnError)
	service.RegisterCommonFlags(flagSet, &flags)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if flags.ShowHelp {
		printHelp(flagSet)
		return nil
	}
	if flags.ShowVersion {
		version.Print(os.Stdout, "swarm-node")
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	result, err := service.Bootstrap(flags)
	if err != nil {
		return err
	}
	logger := result.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := swarm.New(result.Options)
	if err != nil {
		return err
	}
	defer node.Close()

	unsubscribe := node.Subscribe(logEvents(logger))
	defer unsubscribe()

	if _, err := service.Apply(node, result.Config); err != nil {
		return err
	}

	logger.Info("swarm node started",
		"public_key", node.PublicKey().String(),
		"topics", len(result.Config.Swarm.Topics),
		"relays", len(result.Options.Bootstrap),
		"version", version.String(),
	)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for {
		select {
		case <-reload:
			if err := service.ReloadICE(flags, result.Factory); err != nil {
				logger.Error("reloading ICE servers", "error", err)
				continue
			}
			logger.Info("reloaded ICE servers")
		case <-ctx.Done():
			logger.Info("shutting down", "connections", len(node.Connections()))
			return nil
		}
	}
}

// logEvents reports swarm events to logger.
func logEvents(logger *slog.Logger) swarm.Observer {
	return swarm.ObserverFuncs{
		Peer: func(info *peer.Info) {
			logger.Debug("discovered peer",
				"peer", info.PublicKey.Short(),
				"capabilities", info.Capabilities().String(),
			)
		},
		Connection: func(conn *swarm.Connection, info *peer.Info) {
			logger.Info("connected",
				"peer", info.PublicKey.Short(),
				"type", conn.Type().String(),
				"initiator", conn.Initiator(),
			)
		},
		Bootstrap: func(node swarm.BootstrapNode) {
			logger.Info("bootstrapped", "relay", node.PublicKey.Short(), "url", node.URL)
		},
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `swarm-node runs one peer of a WebRTC swarm.

The config file (--config or $RTCSWARM_CONFIG) names the identity,
topics, explicit peers, bootstrap relays and ICE servers.

Usage:
  swarm-node [flags]

Flags:
%s`, flagSet.FlagUsages())
}
