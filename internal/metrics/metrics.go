// Package metrics declares the Prometheus collectors exported by the hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection and drop reasons used as label values.
const (
	ReasonDecode      = "decode"
	ReasonInvalid     = "invalid"
	ReasonRateLimited = "rate_limited"
	ReasonBacklogFull = "backlog_full"
	ReasonEncode      = "encode"
)

var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chathub_sessions_active",
			Help: "Live sessions currently attached to the hub",
		},
	)

	FramesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chathub_frames_received_total",
			Help: "Inbound frames read from client connections",
		},
	)

	FramesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chathub_frames_rejected_total",
			Help: "Inbound frames discarded before dispatch",
		},
		[]string{"reason"},
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chathub_messages_persisted_total",
			Help: "Messages written by the message store during fan-out",
		},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chathub_persist_failures_total",
			Help: "Messages skipped because persistence failed",
		},
	)

	DispatchAborted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chathub_dispatch_aborted_total",
			Help: "Batches abandoned because membership lookup failed",
		},
	)

	FramesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chathub_frames_delivered_total",
			Help: "Outbound frames enqueued for a recipient",
		},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chathub_frames_dropped_total",
			Help: "Outbound frames that never reached a recipient connection",
		},
		[]string{"reason"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chathub_dispatch_duration_seconds",
			Help:    "Time spent fanning out one inbound batch",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)
