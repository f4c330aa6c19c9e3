// Package metrics holds the Prometheus collectors of the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeConfirmed  = "confirmed"
	OutcomeRolledBack = "rolled_back"
	OutcomeSuperseded = "superseded"
	OutcomeStale      = "stale"
	OutcomeFailed     = "failed"
)

var (
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_mutations_total",
			Help: "Task store mutations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	Rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_rollbacks_total",
			Help: "Optimistic changes reverted after a failed remote write",
		},
		[]string{"kind"},
	)
	Reloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_reloads_total",
			Help: "Full task collection reloads by reason",
		},
		[]string{"reason"},
	)
	PushEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskboard_push_events_total",
			Help: "Remote change notifications received",
		},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskboard_sessions_active",
			Help: "Board sessions currently held in memory",
		},
	)
)

func init() {
	prometheus.MustRegister(Mutations)
	prometheus.MustRegister(Rollbacks)
	prometheus.MustRegister(Reloads)
	prometheus.MustRegister(PushEvents)
	prometheus.MustRegister(SessionsActive)
}
