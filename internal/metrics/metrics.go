// Package metrics defines the Prometheus collectors of the quiz server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partyquiz_transitions_total",
			Help: "Progression triggers by kind and outcome (applied, noop, rejected, error)",
		},
		[]string{"trigger", "result"},
	)

	Answers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partyquiz_answers_total",
			Help: "Landed answers by correctness",
		},
		[]string{"correct"},
	)

	Joins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partyquiz_joins_total",
			Help: "Join attempts by outcome",
		},
		[]string{"result"},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partyquiz_sessions_created_total",
			Help: "Sessions created",
		},
	)

	WriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partyquiz_session_write_duration_seconds",
			Help:    "Latency of guarded session writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	Conflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partyquiz_cas_conflicts_total",
			Help: "Optimistic session writes retried after a concurrent write",
		},
	)

	ActiveCoordinators = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partyquiz_display_coordinators",
			Help: "Display coordinators currently driving sessions",
		},
	)

	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partyquiz_ws_connections",
			Help: "Open websocket connections by role",
		},
		[]string{"role"},
	)
)
