// Package telemetry exposes Prometheus metrics for the gossip subsystem.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds all hearsay metrics.
	Registry = prometheus.NewRegistry()

	// AnnouncesSent counts outbound gossip announces.
	AnnouncesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hearsay",
			Name:      "announces_sent_total",
			Help:      "Total number of gossip announces sent.",
		},
	)

	// AnnouncesReceived counts inbound gossip announces, labeled by whether
	// the item was new to this node.
	AnnouncesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hearsay",
			Name:      "announces_received_total",
			Help:      "Total number of gossip announces received.",
		},
		[]string{"new"},
	)

	// RemaindersSent counts outbound remainder fetches.
	RemaindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hearsay",
			Name:      "remainders_sent_total",
			Help:      "Total number of remainder requests sent.",
		},
	)

	// RemaindersServed counts remainder requests answered, labeled by outcome.
	RemaindersServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hearsay",
			Name:      "remainders_served_total",
			Help:      "Total number of remainder requests served.",
		},
		[]string{"found"},
	)

	// RequestTimeouts counts expired pending requests, labeled by kind.
	RequestTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hearsay",
			Name:      "request_timeouts_total",
			Help:      "Total number of pending requests that hit their deadline.",
		},
		[]string{"kind"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "hearsay",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		AnnouncesSent,
		AnnouncesReceived,
		RemaindersSent,
		RemaindersServed,
		RequestTimeouts,
		uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
