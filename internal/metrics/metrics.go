// Package metrics holds the Prometheus collectors for the messaging service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practicechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "practicechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Messaging metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "practicechat_messages_sent_total",
			Help: "Messages persisted",
		},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practicechat_messages_rejected_total",
			Help: "Send attempts that failed before persistence",
		},
		[]string{"reason"}, // invalid_input, content_blocked, unauthorized, not_found, storage
	)

	AnnouncementsProvisioned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "practicechat_announcements_provisioned_total",
			Help: "Announcements conversations created",
		},
	)

	// Realtime metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "practicechat_ws_connections_active",
			Help: "Open realtime connections",
		},
	)

	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "practicechat_broadcast_deliveries_total",
			Help: "new_message frames queued to connections",
		},
	)

	BroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "practicechat_broadcast_failures_total",
			Help: "Broadcast calls that returned an error",
		},
	)

	WSFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practicechat_ws_frames_dropped_total",
			Help: "Realtime frames dropped",
		},
		[]string{"direction", "reason"},
	)
)
