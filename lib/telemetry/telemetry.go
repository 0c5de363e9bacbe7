// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the Prometheus collectors shared by swarm
// nodes and relays. Collectors are registered on a package Registry
// rather than the global default so tests can read them in isolation.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rtcswarm"

// Label values shared by callers.
const (
	KindAnnounce = "announce"
	KindSignal   = "signal"

	OutcomeAccepted  = "accepted"
	OutcomeSelf      = "self"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeExpired   = "expired"

	DirectionOutbound  = "outbound"
	DirectionInbound   = "inbound"
	DirectionBootstrap = "bootstrap"
)

var (
	Registry = prometheus.NewRegistry()

	GossipMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_messages_total",
			Help:      "Gossip messages received, by kind and handling outcome.",
		},
		[]string{"kind", "outcome"},
	)

	GossipForwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_forwards_total",
			Help:      "Gossip messages forwarded to a neighbour.",
		},
		[]string{"kind"},
	)

	Attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Connection attempts, by direction and outcome.",
		},
		[]string{"direction", "outcome"},
	)

	Connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connection lifecycle events (opened, closed).",
		},
		[]string{"event"},
	)

	OpenConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Currently open connections across all swarms in the process.",
		},
	)

	Announces = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announces_total",
			Help:      "Local topic announcements sent.",
		},
	)

	RelayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Bootstrap relay HTTP requests, by status class.",
		},
		[]string{"status"},
	)

	RelayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_request_duration_seconds",
			Help:      "Latency of bootstrap relay requests, including ICE gathering.",
			// 10ms .. ~40s; gathering against unreachable STUN servers is slow.
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 13),
		},
	)

	RelayInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_in_flight_requests",
			Help:      "Current number of in-flight bootstrap relay requests.",
		},
	)
)

func init() {
	Registry.MustRegister(
		GossipMessages,
		GossipForwards,
		Attempts,
		Connections,
		OpenConnections,
		Announces,
		RelayRequests,
		RelayDuration,
		RelayInFlight,
	)
}

// MetricsHandler exposes the registry. Mount it with
// mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// InstrumentRelay wraps the relay handler to record request counts by
// status class, latency, and in-flight requests.
func InstrumentRelay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		RelayInFlight.Inc()
		defer RelayInFlight.Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RelayRequests.WithLabelValues(class).Inc()
		RelayDuration.Observe(time.Since(start).Seconds())
	})
}
