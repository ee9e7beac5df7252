// Package metrics holds the prometheus collectors of the realtime hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of open websocket sessions",
		},
		[]string{"kind"},
	)

	ChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_channels_active",
			Help: "Number of channels with at least one member",
		},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Total number of broadcast calls by channel purpose",
		},
		[]string{"purpose"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Total number of per-connection deliveries by result",
		},
		[]string{"result"}, // "queued", "dropped"
	)

	InboundFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_inbound_frames_total",
			Help: "Total number of frames received from clients by result",
		},
		[]string{"result"}, // "relayed", "malformed", "rate_limited", "ignored"
	)

	AuthRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_auth_rejections_total",
			Help: "Total number of rejected handshakes by reason",
		},
		[]string{"reason"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
