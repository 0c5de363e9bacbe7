// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// swarm-relay runs a bootstrap relay. Isolated nodes POST their WebRTC
// offer and public key to it over HTTP and receive an answer; once the
// connection is up the relay gossips for them like any other peer. The
// relay never dials on its own.
//
// Requests beyond relay.requests_per_second (with relay.burst) and
// requests arriving while the relay is full are answered 503. When
// relay.metrics_path is set, Prometheus metrics are served there on the
// same listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/rtcswarm/lib/service"
	"github.com/bureau-foundation/rtcswarm/lib/telemetry"
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
	var (
		flags  service.CommonFlags
		listen string
	)
	flagSet := pflag.NewFlagSet("swarm-relay", pflag.ContinueOnError)
	service.RegisterCommonFlags(flagSet, &flags)
	flagSet.StringVar(&listen, "listen", "", "override relay.listen")

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
		version.Print(os.Stdout, "swarm-relay")
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	result, err := service.Bootstrap(flags)
	if err != nil {
		return err
	}
	cfg, logger := result.Config, result.Logger
	if listen != "" {
		cfg.Relay.Listen = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := rate.NewLimiter(rate.Limit(cfg.Relay.RequestsPerSecond), cfg.Relay.Burst)
	relay, err := swarm.NewRelay(result.Options, limiter)
	if err != nil {
		return err
	}
	defer relay.Close()

	unsubscribe := relay.Subscribe(swarm.ObserverFuncs{
		Connection: func(conn *swarm.Connection, info *peer.Info) {
			attempts, connections := relay.Load()
			logger.Info("relayed peer connected",
				"peer", info.PublicKey.Short(),
				"type", conn.Type().String(),
				"attempts", attempts,
				"connections", connections,
			)
		},
	})
	defer unsubscribe()

	// Relays still carry topic traffic for the peers they hold.
	if _, err := service.Apply(relay.Swarm, cfg); err != nil {
		return err
	}

	mux := http.NewServeMux()
	if cfg.Relay.MetricsPath != "" {
		mux.Handle(cfg.Relay.MetricsPath, telemetry.MetricsHandler())
	}
	mux.Handle("/", relay)

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:      cfg.Relay.Listen,
		Handler:      mux,
		WriteTimeout: cfg.Swarm.ConnectionTimeout + cfg.Swarm.ConnectionTimeout/2,
		Logger:       logger,
	})

	logger.Info("swarm relay started",
		"public_key", relay.PublicKey().String(),
		"listen", cfg.Relay.Listen,
		"requests_per_second", cfg.Relay.RequestsPerSecond,
		"burst", cfg.Relay.Burst,
		"version", version.String(),
	)
	return server.Serve(ctx)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `swarm-relay runs a bootstrap relay for a WebRTC swarm.

Isolated nodes list the relay's public key and URL under "bootstrap"
in their config. Print the key from the relay's startup log.

Usage:
  swarm-relay [flags]

Flags:
%s`, flagSet.FlagUsages())
}
